package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrInvalidJSON      = errors.New("failed to marshal message")
	ErrWriteTimeout     = errors.New("write timed out")
)
