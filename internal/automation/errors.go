package automation

import "errors"

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrNotConnected     = errors.New("mqtt client is not connected")
	ErrPublishFailed    = errors.New("mqtt publish failed")
	ErrSubscribeFailed  = errors.New("mqtt subscribe failed")
	ErrInvalidTopic     = errors.New("mqtt topic is empty")
	ErrInvalidQoS       = errors.New("mqtt qos must be 0, 1 or 2")
)
