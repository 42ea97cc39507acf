package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/capture"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/registry"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/store/mock"
)

type fixture struct {
	orch    *Orchestrator
	members *mock.MockMemberStore
	events  *mock.MockEventStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	members := mock.NewMockMemberStore()
	events := mock.NewMockEventStore()
	m, err := matcher.New(matcher.DefaultThreshold)
	if err != nil {
		t.Fatalf("matcher.New failed: %v", err)
	}
	orch := New(registry.New(members), m, attendance.New(events), opts...)
	return &fixture{orch: orch, members: members, events: events}
}

func (f *fixture) enroll(t *testing.T, name string, enc biometric.Encoding) {
	t.Helper()
	if err := f.orch.Registry().Enroll(context.Background(), name, enc, store.Profile{}); err != nil {
		t.Fatalf("Enroll %s failed: %v", name, err)
	}
}

func TestAliceEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := biometric.Encoding{0.1, 0.2, 0.3}
	f.enroll(t, "Alice", alice)

	out := f.orch.ProcessCapture(ctx, alice)
	if out.Kind != CheckedIn || out.Name != "Alice" {
		t.Fatalf("expected CheckedIn(Alice), got %v (%v)", out.Kind, out)
	}
	if out.ExitCode() != ExitOK {
		t.Errorf("expected exit 0, got %d", out.ExitCode())
	}

	out = f.orch.ProcessCapture(ctx, alice)
	if out.Kind != AlreadyPresent || out.Name != "Alice" {
		t.Fatalf("expected AlreadyPresent(Alice), got %v", out.Kind)
	}
	if out.Err != nil {
		t.Errorf("AlreadyPresent must not carry an error, got %v", out.Err)
	}
	if len(f.events.Events()) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(f.events.Events()))
	}

	out = f.orch.CheckOut(ctx, "Alice")
	if out.Kind != CheckedOut {
		t.Fatalf("expected CheckedOut, got %v (%v)", out.Kind, out.Err)
	}
	hist := f.orch.Ledger().History("Alice")
	if len(hist) != 1 || hist[0].IsOpen() {
		t.Errorf("expected one closed session, got %+v", hist)
	}

	out = f.orch.CheckOut(ctx, "Alice")
	if out.Kind != Failed || !errors.Is(out.Err, attendance.ErrNotIn) {
		t.Fatalf("expected NotIn, got %v (%v)", out.Kind, out.Err)
	}
	if out.ExitCode() != ExitNotIn {
		t.Errorf("expected exit %d, got %d", ExitNotIn, out.ExitCode())
	}
}

func TestProcessCapture_Unrecognized(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "Alice", biometric.Encoding{0, 0})

	out := f.orch.ProcessCapture(context.Background(), biometric.Encoding{5, 5})
	if out.Kind != Unrecognized {
		t.Fatalf("expected Unrecognized, got %v", out.Kind)
	}
	if out.ExitCode() != ExitUnrecognized {
		t.Errorf("expected exit %d, got %d", ExitUnrecognized, out.ExitCode())
	}
	if f.events.AppendCalls != 0 {
		t.Error("unrecognized capture must not touch the ledger")
	}
}

func TestProcessCapture_EmptyRegistry(t *testing.T) {
	f := newFixture(t)
	if out := f.orch.ProcessCapture(context.Background(), biometric.Encoding{0.1}); out.Kind != Unrecognized {
		t.Errorf("expected Unrecognized, got %v", out.Kind)
	}
}

func TestProcessCapture_Failures(t *testing.T) {
	tests := []struct {
		name     string
		query    biometric.Encoding
		setup    func(f *fixture)
		wantKind ErrorKind
		wantExit int
	}{
		{
			name:     "dimension mismatch",
			query:    biometric.Encoding{0.1, 0.2},
			wantKind: ErrKindDimensionMismatch,
			wantExit: ExitDimensionMismatch,
		},
		{
			name:     "empty query",
			query:    biometric.Encoding{},
			wantKind: ErrKindInvalidInput,
			wantExit: ExitOther,
		},
		{
			name:     "ledger write fails",
			query:    biometric.Encoding{0.1, 0.2, 0.3},
			setup:    func(f *fixture) { f.events.AppendError = errors.New("disk full") },
			wantKind: ErrKindPersistence,
			wantExit: ExitPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.enroll(t, "Alice", biometric.Encoding{0.1, 0.2, 0.3})
			if tt.setup != nil {
				tt.setup(f)
			}

			out := f.orch.ProcessCapture(context.Background(), tt.query)
			if out.Kind != Failed {
				t.Fatalf("expected Failed, got %v", out.Kind)
			}
			if out.ErrorKind() != tt.wantKind {
				t.Errorf("expected %v, got %v (%v)", tt.wantKind, out.ErrorKind(), out.Err)
			}
			if out.ExitCode() != tt.wantExit {
				t.Errorf("expected exit %d, got %d", tt.wantExit, out.ExitCode())
			}
			if f.orch.Ledger().IsIn("Alice") {
				t.Error("failed capture must leave Alice out")
			}
		})
	}
}

func TestCheckInByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "Bob", biometric.Encoding{1, 1})

	if out := f.orch.CheckIn(ctx, "Bob"); out.Kind != CheckedIn {
		t.Fatalf("expected CheckedIn, got %v (%v)", out.Kind, out.Err)
	}
	if out := f.orch.CheckIn(ctx, "Bob"); out.Kind != AlreadyPresent {
		t.Errorf("expected AlreadyPresent, got %v", out.Kind)
	}

	out := f.orch.CheckIn(ctx, "Nobody")
	if !errors.Is(out.Err, registry.ErrNotFound) || out.ExitCode() != ExitNotFound {
		t.Errorf("expected NotFound with exit %d, got %v exit %d", ExitNotFound, out.Err, out.ExitCode())
	}
	if f.orch.Ledger().IsIn("Nobody") {
		t.Error("unknown member must not be checked in")
	}
}

func TestCheckInByName_NotCountedAsIdentification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "Bob", biometric.Encoding{1, 1})

	identified := metrics.IdentificationsTotal.WithLabelValues("checked_in")
	transitions := metrics.AttendanceTransitionsTotal.WithLabelValues("check_in")
	idBefore := testutil.ToFloat64(identified)
	trBefore := testutil.ToFloat64(transitions)

	if out := f.orch.CheckIn(ctx, "Bob"); out.Kind != CheckedIn {
		t.Fatalf("expected CheckedIn, got %v (%v)", out.Kind, out.Err)
	}
	if got := testutil.ToFloat64(identified); got != idBefore {
		t.Errorf("manual check-in changed identifications from %v to %v", idBefore, got)
	}
	if got := testutil.ToFloat64(transitions); got != trBefore+1 {
		t.Errorf("expected check_in transitions %v, got %v", trBefore+1, got)
	}

	f.enroll(t, "Alice", biometric.Encoding{0.1, 0.2})
	if out := f.orch.ProcessCapture(ctx, biometric.Encoding{0.1, 0.2}); out.Kind != CheckedIn {
		t.Fatalf("expected CheckedIn, got %v (%v)", out.Kind, out.Err)
	}
	if got := testutil.ToFloat64(identified); got != idBefore+1 {
		t.Errorf("expected identifications %v after capture, got %v", idBefore+1, got)
	}
}

func TestProcessCapture_FailureCountedAsIdentificationError(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "Bob", biometric.Encoding{1, 1})

	counter := metrics.IdentificationsTotal.WithLabelValues("error")
	before := testutil.ToFloat64(counter)
	out := f.orch.ProcessCapture(context.Background(), biometric.Encoding{math.NaN(), 1})
	if !errors.Is(out.Err, biometric.ErrInvalidEncoding) {
		t.Fatalf("expected ErrInvalidEncoding, got %v", out.Err)
	}
	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Errorf("expected error identifications %v, got %v", before+1, got)
	}
}

func TestCapture_BoundedByTimeout(t *testing.T) {
	f := newFixture(t, WithCaptureTimeout(20*time.Millisecond))

	release := make(chan struct{})
	defer close(release)
	stuck := capture.CapturerFunc(func(ctx context.Context) (biometric.Encoding, error) {
		<-release
		return biometric.Encoding{0.1}, nil
	})

	start := time.Now()
	enc, err := f.orch.Capture(context.Background(), stuck)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("capture was not bounded by the timeout, took %v", elapsed)
	}
	if !errors.Is(err, capture.ErrCaptureUnavailable) || enc != nil {
		t.Fatalf("expected ErrCaptureUnavailable and no encoding, got %v, %v", enc, err)
	}
	if Classify(err).ExitCode() != ExitCaptureUnavailable {
		t.Errorf("expected exit %d, got %d", ExitCaptureUnavailable, Classify(err).ExitCode())
	}
}

func TestCaptureAndProcess(t *testing.T) {
	f := newFixture(t)
	alice := biometric.Encoding{0.1, 0.2, 0.3}
	f.enroll(t, "Alice", alice)

	out := f.orch.CaptureAndProcess(context.Background(), capture.Static(alice))
	if out.Kind != CheckedIn {
		t.Fatalf("expected CheckedIn, got %v (%v)", out.Kind, out.Err)
	}
}

func TestCaptureAndProcess_Timeout(t *testing.T) {
	f := newFixture(t, WithCaptureTimeout(20*time.Millisecond))
	f.enroll(t, "Alice", biometric.Encoding{0.1, 0.2, 0.3})

	release := make(chan struct{})
	defer close(release)
	stuck := capture.CapturerFunc(func(ctx context.Context) (biometric.Encoding, error) {
		<-release // ignores ctx on purpose
		return biometric.Encoding{0.1, 0.2, 0.3}, nil
	})

	start := time.Now()
	out := f.orch.CaptureAndProcess(context.Background(), stuck)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("capture was not bounded by the timeout, took %v", elapsed)
	}
	if !errors.Is(out.Err, capture.ErrCaptureUnavailable) {
		t.Fatalf("expected ErrCaptureUnavailable, got %v", out.Err)
	}
	if out.ExitCode() != ExitCaptureUnavailable {
		t.Errorf("expected exit %d, got %d", ExitCaptureUnavailable, out.ExitCode())
	}
	if f.events.AppendCalls != 0 || f.orch.Ledger().IsIn("Alice") {
		t.Error("aborted capture must leave the ledger unchanged")
	}
}

func TestCaptureAndProcess_CaptureErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantExit int
	}{
		{name: "no face", err: &capture.CaptureError{Op: "detect", Err: capture.ErrNoFace}, wantExit: ExitCaptureError},
		{name: "unavailable", err: fmt.Errorf("camera: %w", capture.ErrCaptureUnavailable), wantExit: ExitCaptureUnavailable},
		{name: "context expired inside capturer", err: context.DeadlineExceeded, wantExit: ExitCaptureUnavailable},
		{name: "arbitrary failure", err: errors.New("usb reset"), wantExit: ExitCaptureError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			c := capture.CapturerFunc(func(ctx context.Context) (biometric.Encoding, error) {
				return nil, tt.err
			})
			out := f.orch.CaptureAndProcess(context.Background(), c)
			if out.Kind != Failed {
				t.Fatalf("expected Failed, got %v", out.Kind)
			}
			if out.ExitCode() != tt.wantExit {
				t.Errorf("expected exit %d, got %d (%v)", tt.wantExit, out.ExitCode(), out.Err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, ErrKindNone},
		{fmt.Errorf("x: %w", registry.ErrDuplicateName), ErrKindDuplicateName},
		{fmt.Errorf("x: %w", biometric.ErrDimensionMismatch), ErrKindDimensionMismatch},
		{fmt.Errorf("x: %w", registry.ErrNotFound), ErrKindNotFound},
		{fmt.Errorf("x: %w", attendance.ErrAlreadyIn), ErrKindAlreadyIn},
		{fmt.Errorf("x: %w", attendance.ErrNotIn), ErrKindNotIn},
		{store.Wrap("save", errors.New("disk full")), ErrKindPersistence},
		{fmt.Errorf("load attendance: %w: two open sessions", store.ErrCorrupt), ErrKindPersistence},
		{fmt.Errorf("load members: %w: %w", store.ErrCorrupt, registry.ErrDuplicateName), ErrKindPersistence},
		{attendance.ErrInvalidTime, ErrKindInvalidInput},
		{errors.New("boom"), ErrKindOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestExitCodesAreDistinct(t *testing.T) {
	kinds := []ErrorKind{
		ErrKindNotIn, ErrKindNotFound, ErrKindDuplicateName, ErrKindDimensionMismatch,
		ErrKindCaptureUnavailable, ErrKindCapture, ErrKindPersistence,
	}
	seen := map[int]ErrorKind{ExitOK: ErrKindNone, ExitUnrecognized: 0, ExitOther: ErrKindOther}
	for _, k := range kinds {
		code := k.ExitCode()
		if prev, dup := seen[code]; dup {
			t.Errorf("%v and %v share exit code %d", k, prev, code)
		}
		seen[code] = k
	}
	if ErrKindAlreadyIn.ExitCode() != (Outcome{Kind: AlreadyPresent}).ExitCode() {
		t.Error("already-in error and AlreadyPresent outcome must share an exit code")
	}
}
