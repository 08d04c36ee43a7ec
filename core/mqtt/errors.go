package mqtt

import "errors"

var (
	// ErrConnect is returned when the broker session cannot be established.
	ErrConnect = errors.New("mqtt connect failed")
	// ErrNotConnected is returned by Publish before Connect succeeded or after Disconnect.
	ErrNotConnected = errors.New("mqtt client not connected")
	// ErrPublishTimeout is returned when the client does not complete a publish in time.
	ErrPublishTimeout = errors.New("timeout waiting for publish")
)
