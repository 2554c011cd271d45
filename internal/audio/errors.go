package audio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStreamEnded is reported when an input stream terminates without being closed.
var ErrStreamEnded = errors.New("audio stream ended unexpectedly")

// DeviceErrorKind classifies why an input device could not be acquired.
type DeviceErrorKind int

const (
	PermissionDenied DeviceErrorKind = iota
	NoDevice
	Unsupported
)

func (k DeviceErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case NoDevice:
		return "no device"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// DeviceError is returned by Source.Open when no live session could be created.
type DeviceError struct {
	Kind DeviceErrorKind
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio device error: %s", e.Kind)
	}
	return fmt.Sprintf("audio device error (%s): %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// IsDeviceError reports whether err carries a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// classifyDeviceError maps backend error text onto a DeviceErrorKind.
func classifyDeviceError(err error) *DeviceError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "access denied"):
		return &DeviceError{Kind: PermissionDenied, Err: err}
	case strings.Contains(msg, "no device"), strings.Contains(msg, "does not exist"), strings.Contains(msg, "not found"):
		return &DeviceError{Kind: NoDevice, Err: err}
	default:
		return &DeviceError{Kind: Unsupported, Err: err}
	}
}
