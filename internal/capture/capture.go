// Package capture obtains query encodings from outside the core: a face-embedding
// server fed with images, or pre-computed encoding files.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/biometric"
)

var (
	// ErrCaptureUnavailable means no encoding could be obtained at all: the
	// source is unreachable, missing, or did not answer before the timeout.
	ErrCaptureUnavailable = errors.New("capture unavailable")
	// ErrNoFace is wrapped in a CaptureError when the image contains no face.
	ErrNoFace = errors.New("no face detected")
)

// Capturer produces one query encoding per call.
type Capturer interface {
	Capture(ctx context.Context) (biometric.Encoding, error)
}

// CapturerFunc adapts a function to the Capturer interface.
type CapturerFunc func(ctx context.Context) (biometric.Encoding, error)

// Capture calls f.
func (f CapturerFunc) Capture(ctx context.Context) (biometric.Encoding, error) {
	return f(ctx)
}

// Static always returns a copy of enc.
func Static(enc biometric.Encoding) Capturer {
	return CapturerFunc(func(ctx context.Context) (biometric.Encoding, error) {
		return enc.Clone(), nil
	})
}

// CaptureError reports a capture that ran but produced nothing usable.
type CaptureError struct {
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// IsCaptureError reports whether err wraps a *CaptureError.
func IsCaptureError(err error) bool {
	var ce *CaptureError
	return errors.As(err, &ce)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrCaptureUnavailable, err)
}
