package capture

import (
	"context"
	"errors"
	"os"

	"github.com/kozaktomas/facegate/internal/biometric"
)

// FileSource reads a pre-computed encoding from a file holding a JSON array
// (or the "[f1, f2, ...]" text used in members.csv).
type FileSource struct {
	Path string
}

// Capture reads and parses the file.
func (s FileSource) Capture(ctx context.Context) (biometric.Encoding, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("read encoding", err)
	}
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, unavailable("read encoding", err)
	}
	if err != nil {
		return nil, &CaptureError{Op: "read encoding", Err: err}
	}

	enc, err := biometric.Parse(string(data))
	if err != nil {
		return nil, &CaptureError{Op: "parse encoding", Err: err}
	}
	return enc, nil
}
