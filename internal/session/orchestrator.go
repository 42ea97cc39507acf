// Package session turns captured faces into attendance events. The Orchestrator
// composes the registry, the matcher and the attendance ledger; it owns no state
// of its own beyond the duration of one call.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/capture"
	"github.com/kozaktomas/facegate/internal/logger"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/registry"
)

// DefaultCaptureTimeout bounds a single call to the capture service.
const DefaultCaptureTimeout = 10 * time.Second

// Orchestrator drives identification and the explicit attendance paths.
type Orchestrator struct {
	registry       *registry.Registry
	matcher        *matcher.Matcher
	ledger         *attendance.Ledger
	captureTimeout time.Duration
	log            zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCaptureTimeout overrides DefaultCaptureTimeout.
func WithCaptureTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.captureTimeout = d
		}
	}
}

// WithLogger sets the logger used for operational messages.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// New creates an orchestrator over the given components.
func New(reg *registry.Registry, m *matcher.Matcher, l *attendance.Ledger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:       reg,
		matcher:        m,
		ledger:         l,
		captureTimeout: DefaultCaptureTimeout,
		log:            logger.Get(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the member registry.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Ledger returns the attendance ledger.
func (o *Orchestrator) Ledger() *attendance.Ledger { return o.ledger }

// Matcher returns the configured matcher.
func (o *Orchestrator) Matcher() *matcher.Matcher { return o.matcher }

// ProcessCapture identifies query and checks the member in. Presenting the face
// of a member who is already in yields AlreadyPresent and changes nothing.
func (o *Orchestrator) ProcessCapture(ctx context.Context, query biometric.Encoding) Outcome {
	if err := query.Validate(); err != nil {
		return o.identified(Outcome{Kind: Failed, Err: fmt.Errorf("process capture: %w", err)})
	}

	res, err := o.matcher.Identify(ctx, query, o.registry)
	if err != nil {
		return o.identified(Outcome{Kind: Failed, Err: fmt.Errorf("identify: %w", err)})
	}
	if !res.Identified {
		return o.identified(Outcome{Kind: Unrecognized})
	}

	out := o.checkIn(ctx, res.Name)
	out.Distance = res.Distance
	return o.identified(out)
}

// CaptureAndProcess obtains an encoding from c and processes it. The capture is
// bounded by the configured timeout; on timeout the result is a Failed outcome
// wrapping capture.ErrCaptureUnavailable and neither registry nor ledger change.
func (o *Orchestrator) CaptureAndProcess(ctx context.Context, c capture.Capturer) Outcome {
	query, err := o.Capture(ctx, c)
	if err != nil {
		return o.record(Outcome{Kind: Failed, Err: err})
	}
	return o.ProcessCapture(ctx, query)
}

// Capture obtains one encoding from c within the configured timeout. c runs in
// its own goroutine so that a capturer ignoring its context still cannot hold
// the caller past the timeout.
func (o *Orchestrator) Capture(ctx context.Context, c capture.Capturer) (biometric.Encoding, error) {
	ctx, cancel := context.WithTimeout(ctx, o.captureTimeout)
	defer cancel()

	type result struct {
		enc biometric.Encoding
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		enc, err := c.Capture(ctx)
		done <- result{enc: enc, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	metrics.CaptureDuration.Observe(time.Since(start).Seconds())

	switch {
	case r.err == nil:
		return r.enc, nil
	case errors.Is(r.err, capture.ErrCaptureUnavailable), capture.IsCaptureError(r.err):
		return nil, r.err
	case errors.Is(r.err, context.DeadlineExceeded), errors.Is(r.err, context.Canceled):
		return nil, fmt.Errorf("capture: %w: %w", capture.ErrCaptureUnavailable, r.err)
	default:
		return nil, &capture.CaptureError{Op: "capture", Err: r.err}
	}
}

// CheckIn opens a session for an enrolled member without identification.
func (o *Orchestrator) CheckIn(ctx context.Context, name string) Outcome {
	if _, ok := o.registry.Get(name); !ok {
		return o.record(Outcome{Kind: Failed, Name: name, Err: fmt.Errorf("check in %q: %w", name, registry.ErrNotFound)})
	}
	return o.record(o.checkIn(ctx, name))
}

func (o *Orchestrator) checkIn(ctx context.Context, name string) Outcome {
	ev, err := o.ledger.CheckIn(ctx, name, time.Time{})
	switch {
	case err == nil:
		return Outcome{Kind: CheckedIn, Name: name, Event: ev}
	case errors.Is(err, attendance.ErrAlreadyIn):
		return Outcome{Kind: AlreadyPresent, Name: name, Event: ev}
	default:
		return Outcome{Kind: Failed, Name: name, Err: err}
	}
}

// CheckOut closes the open session of name. A member without one yields a
// Failed outcome wrapping attendance.ErrNotIn.
func (o *Orchestrator) CheckOut(ctx context.Context, name string) Outcome {
	ev, err := o.ledger.CheckOut(ctx, name, time.Time{})
	if err != nil {
		return o.record(Outcome{Kind: Failed, Name: name, Err: err})
	}
	return o.record(Outcome{Kind: CheckedOut, Name: name, Event: ev})
}

// identified records an outcome that came out of face identification.
func (o *Orchestrator) identified(out Outcome) Outcome {
	label := out.Kind.String()
	if out.Kind == Failed {
		label = "error"
	}
	metrics.IdentificationsTotal.WithLabelValues(label).Inc()
	return o.record(out)
}

// record updates metrics and logs the outcome.
func (o *Orchestrator) record(out Outcome) Outcome {
	switch out.Kind {
	case CheckedIn:
		metrics.AttendanceTransitionsTotal.WithLabelValues("check_in").Inc()
		o.log.Info().Str("member", out.Name).Str("event", out.Event.ID).Msg("member checked in")
	case CheckedOut:
		metrics.AttendanceTransitionsTotal.WithLabelValues("check_out").Inc()
		o.log.Info().Str("member", out.Name).Str("event", out.Event.ID).Msg("member checked out")
	case AlreadyPresent, Unrecognized:
		o.log.Debug().Str("outcome", out.Kind.String()).Str("member", out.Name).Msg("capture processed")
	case Failed:
		kind := out.ErrorKind()
		metrics.ErrorsTotal.WithLabelValues(kind.String()).Inc()
		ev := o.log.Warn()
		if kind == ErrKindPersistence || kind == ErrKindOther {
			ev = o.log.Error()
		}
		ev.Err(out.Err).Str("kind", kind.String()).Str("member", out.Name).Msg("operation failed")
	}
	return out
}
