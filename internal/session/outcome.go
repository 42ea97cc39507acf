package session

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/capture"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/registry"
	"github.com/kozaktomas/facegate/internal/store"
)

// Kind is the category of an Outcome.
type Kind int

const (
	// CheckedIn means a new session was opened.
	CheckedIn Kind = iota + 1
	// AlreadyPresent means the member already had an open session; nothing changed.
	AlreadyPresent
	// Unrecognized means the capture matched nobody.
	Unrecognized
	// CheckedOut means an open session was closed.
	CheckedOut
	// Failed means the operation did not complete; see Outcome.Err.
	Failed
)

func (k Kind) String() string {
	switch k {
	case CheckedIn:
		return "checked_in"
	case AlreadyPresent:
		return "already_present"
	case Unrecognized:
		return "unrecognized"
	case CheckedOut:
		return "checked_out"
	case Failed:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrorKind classifies the error behind a Failed outcome.
type ErrorKind int

const (
	ErrKindNone ErrorKind = iota
	ErrKindOther
	ErrKindInvalidInput
	ErrKindAlreadyIn
	ErrKindNotIn
	ErrKindNotFound
	ErrKindDuplicateName
	ErrKindDimensionMismatch
	ErrKindCaptureUnavailable
	ErrKindCapture
	ErrKindPersistence
)

// Process exit codes, shared by the CLI commands.
const (
	ExitOK                 = 0
	ExitOther              = 1
	ExitUnrecognized       = 2
	ExitAlreadyPresent     = 3
	ExitNotIn              = 4
	ExitNotFound           = 5
	ExitDuplicateName      = 6
	ExitDimensionMismatch  = 7
	ExitCaptureUnavailable = 8
	ExitCaptureError       = 9
	ExitPersistence        = 10
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNone:
		return "none"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindAlreadyIn:
		return "already_in"
	case ErrKindNotIn:
		return "not_in"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindDuplicateName:
		return "duplicate_name"
	case ErrKindDimensionMismatch:
		return "dimension_mismatch"
	case ErrKindCaptureUnavailable:
		return "capture_unavailable"
	case ErrKindCapture:
		return "capture_error"
	case ErrKindPersistence:
		return "persistence"
	default:
		return "other"
	}
}

// ExitCode is the process exit status for the error kind.
func (k ErrorKind) ExitCode() int {
	switch k {
	case ErrKindNone:
		return ExitOK
	case ErrKindAlreadyIn:
		return ExitAlreadyPresent
	case ErrKindNotIn:
		return ExitNotIn
	case ErrKindNotFound:
		return ExitNotFound
	case ErrKindDuplicateName:
		return ExitDuplicateName
	case ErrKindDimensionMismatch:
		return ExitDimensionMismatch
	case ErrKindCaptureUnavailable:
		return ExitCaptureUnavailable
	case ErrKindCapture:
		return ExitCaptureError
	case ErrKindPersistence:
		return ExitPersistence
	default:
		return ExitOther
	}
}

// Classify maps an error from any core component to its ErrorKind.
// Persistence is checked first: a failed write is reported as such even when
// the store error mentions something else.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrKindNone
	case errors.Is(err, store.ErrPersistence), errors.Is(err, store.ErrCorrupt):
		return ErrKindPersistence
	case errors.Is(err, capture.ErrCaptureUnavailable):
		return ErrKindCaptureUnavailable
	case capture.IsCaptureError(err):
		return ErrKindCapture
	case errors.Is(err, registry.ErrDuplicateName):
		return ErrKindDuplicateName
	case errors.Is(err, biometric.ErrDimensionMismatch):
		return ErrKindDimensionMismatch
	case errors.Is(err, registry.ErrNotFound):
		return ErrKindNotFound
	case errors.Is(err, attendance.ErrAlreadyIn):
		return ErrKindAlreadyIn
	case errors.Is(err, attendance.ErrNotIn):
		return ErrKindNotIn
	case errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, attendance.ErrInvalidName),
		errors.Is(err, attendance.ErrInvalidTime),
		errors.Is(err, matcher.ErrInvalidThreshold),
		errors.Is(err, biometric.ErrInvalidEncoding):
		return ErrKindInvalidInput
	default:
		return ErrKindOther
	}
}

// ExitCode returns the exit status for err.
func ExitCode(err error) int {
	return Classify(err).ExitCode()
}

// Outcome is the result of one orchestrated operation.
type Outcome struct {
	Kind     Kind
	Name     string
	Distance float64
	// Event is the opened, already-open or closed session, when there is one.
	Event store.AttendanceEvent
	Err   error
}

// ErrorKind returns the classification of o.Err.
func (o Outcome) ErrorKind() ErrorKind {
	return Classify(o.Err)
}

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case CheckedIn, CheckedOut:
		return ExitOK
	case AlreadyPresent:
		return ExitAlreadyPresent
	case Unrecognized:
		return ExitUnrecognized
	default:
		if o.Err == nil {
			return ExitOther
		}
		return o.ErrorKind().ExitCode()
	}
}

func (o Outcome) String() string {
	switch o.Kind {
	case CheckedIn:
		return fmt.Sprintf("%s checked in", o.Name)
	case AlreadyPresent:
		return fmt.Sprintf("%s is already checked in", o.Name)
	case Unrecognized:
		return "face not recognized"
	case CheckedOut:
		return fmt.Sprintf("%s checked out", o.Name)
	default:
		if o.Err == nil {
			return "failed"
		}
		return o.Err.Error()
	}
}
