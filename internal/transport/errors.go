package transport

import "errors"

var ErrNotConnected = errors.New("transport is not connected")
