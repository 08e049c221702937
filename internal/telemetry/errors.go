package telemetry

import "errors"

var (
	ErrDisabled         = errors.New("influx telemetry is disabled")
	ErrConnectionFailed = errors.New("influx connection failed")
	ErrNotConnected     = errors.New("influx client is not connected")
)
