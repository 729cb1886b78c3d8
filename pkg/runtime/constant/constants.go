package constant

import "errors"

var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceExists        = errors.New("device already exists")
	ErrDeviceNameEmpty     = errors.New("device name is empty")
	ErrDuplicateDeviceName = errors.New("duplicate device name")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrNotConnected        = errors.New("session not connected")
	ErrUnreachable         = errors.New("device unreachable")
	ErrResultMismatch      = errors.New("result count does not match request")
	ErrCollectorRunning    = errors.New("device collector already running")
	ErrCollectorStopped    = errors.New("device collector not running")
)
