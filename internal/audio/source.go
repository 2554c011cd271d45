package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/dooshek/candleblow/internal/types"
)

// Source acquires a live audio input. Open may block while the user grants
// access or the backend negotiates a device.
type Source interface {
	Open(ctx context.Context) (Session, error)
}

// Session is one live input stream. It owns the underlying device until Close.
type Session interface {
	// Window copies the latest analysis window, normalized to [-1,1], into
	// dst and returns the number of samples written.
	Window(dst []float64) int
	// Done is closed when the stream ends, either by Close or on its own.
	Done() <-chan struct{}
	// Err reports why the stream ended on its own; nil while live or after Close.
	Err() error
	// Close releases the device. Safe to call more than once.
	Close() error
}

// checkConstraints refuses any processing that would flatten the loudness
// the detector measures. The capture backends here deliver raw samples and
// cannot honour these flags.
func checkConstraints(cfg types.CaptureConfig) error {
	switch {
	case cfg.EchoCancellation:
		return &DeviceError{Kind: Unsupported, Err: fmt.Errorf("echo cancellation must be disabled")}
	case cfg.NoiseSuppression:
		return &DeviceError{Kind: Unsupported, Err: fmt.Errorf("noise suppression must be disabled")}
	case cfg.AutoGainControl:
		return &DeviceError{Kind: Unsupported, Err: fmt.Errorf("auto gain control must be disabled")}
	}
	return nil
}

// stream carries the lifecycle bookkeeping shared by the session types.
type stream struct {
	window *Window

	done      chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	release   func() error
	closeErr  error
}

func newStream(windowSize int, release func() error) *stream {
	return &stream{
		window:  NewWindow(windowSize),
		done:    make(chan struct{}),
		release: release,
	}
}

func (s *stream) Window(dst []float64) int {
	return s.window.Samples(dst)
}

func (s *stream) Done() <-chan struct{} {
	return s.done
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// end marks the stream finished. Only the first call has an effect.
func (s *stream) end(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *stream) Close() error {
	s.end(nil)
	s.closeOnce.Do(func() {
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}
