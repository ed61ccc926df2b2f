// Package camera defines how a pipeline session obtains live video. A Source
// hands out Streams; a Stream is owned by exactly one session until stopped.
package camera

import (
	"context"
	"fmt"
	"image"
)

const (
	FacingUser         = "user"
	DefaultIdealWidth  = 1280
	DefaultIdealHeight = 720
)

// Constraints mirror the browser's getUserMedia request. Ideal values are
// hints; a source may deliver any resolution.
type Constraints struct {
	FacingMode  string
	IdealWidth  int
	IdealHeight int
	DeviceID    string
}

func DefaultConstraints() Constraints {
	return Constraints{
		FacingMode:  FacingUser,
		IdealWidth:  DefaultIdealWidth,
		IdealHeight: DefaultIdealHeight,
	}
}

type Stream interface {
	ID() string
	// Ready is closed once the stream has produced a frame with valid
	// dimensions.
	Ready() <-chan struct{}
	Dimensions() (width, height int)
	Snapshot() (image.Image, error)
	// Done is closed once the stream has ended, whether Stop was called or
	// the device went away on its own.
	Done() <-chan struct{}
	// Stop releases the device. Calling it more than once is a no-op.
	Stop()
}

type Source interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, c Constraints) (Stream, error)

func (f SourceFunc) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	return f(ctx, c)
}

// AccessError is returned when a device cannot be opened: permission denied,
// no device, or the device is held by another session.
type AccessError struct {
	Device string
	Reason string
	Err    error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("camera access %s: %s: %v", e.Device, e.Reason, e.Err)
	}
	return fmt.Sprintf("camera access %s: %s", e.Device, e.Reason)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}
