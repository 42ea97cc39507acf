package attendance

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/store/mock"
)

var base = time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *mock.MockEventStore) {
	t.Helper()
	s := mock.NewMockEventStore()
	seq := 0
	l := New(s,
		WithClock(func() time.Time { return base }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("ev-%d", seq)
		}),
	)
	return l, s
}

// openCount returns the number of open events of name in the persisted store.
func openCount(s *mock.MockEventStore, name string) int {
	n := 0
	for _, ev := range s.Events() {
		if ev.MemberName == name && ev.IsOpen() {
			n++
		}
	}
	return n
}

func TestCheckIn_OpensSession(t *testing.T) {
	l, s := newTestLedger(t)

	ev, err := l.CheckIn(context.Background(), "Alice", time.Time{})
	if err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if ev.ID != "ev-1" || ev.MemberName != "Alice" || !ev.CheckInAt.Equal(base) || !ev.IsOpen() {
		t.Errorf("unexpected event: %+v", ev)
	}
	if !l.IsIn("Alice") {
		t.Error("expected Alice to be in")
	}
	open, ok := l.OpenSession("Alice")
	if !ok || open.ID != ev.ID {
		t.Errorf("expected open session %s, got %+v (ok=%v)", ev.ID, open, ok)
	}
	if s.AppendCalls != 1 {
		t.Errorf("expected 1 append, got %d", s.AppendCalls)
	}
}

func TestCheckIn_TwiceYieldsAlreadyIn(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	first, err := l.CheckIn(ctx, "Alice", time.Time{})
	if err != nil {
		t.Fatalf("first CheckIn failed: %v", err)
	}

	existing, err := l.CheckIn(ctx, "Alice", base.Add(time.Minute))
	if !errors.Is(err, ErrAlreadyIn) {
		t.Fatalf("expected ErrAlreadyIn, got %v", err)
	}
	if existing.ID != first.ID {
		t.Errorf("expected existing open event %s, got %s", first.ID, existing.ID)
	}
	if len(l.Events()) != 1 {
		t.Errorf("expected a single event, got %d", len(l.Events()))
	}
	if s.AppendCalls != 1 {
		t.Errorf("second check-in must not reach the store, got %d appends", s.AppendCalls)
	}
}

func TestCheckOut(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.CheckIn(ctx, "Alice", base); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	outAt := base.Add(90 * time.Minute)
	closed, err := l.CheckOut(ctx, "Alice", outAt)
	if err != nil {
		t.Fatalf("CheckOut failed: %v", err)
	}
	if closed.CheckOutAt == nil || !closed.CheckOutAt.Equal(outAt) {
		t.Errorf("expected checkout %v, got %v", outAt, closed.CheckOutAt)
	}
	if l.IsIn("Alice") {
		t.Error("expected Alice to be out")
	}
	if openCount(s, "Alice") != 0 {
		t.Error("expected stored event to be closed")
	}

	if _, err := l.CheckOut(ctx, "Alice", time.Time{}); !errors.Is(err, ErrNotIn) {
		t.Errorf("expected ErrNotIn on second checkout, got %v", err)
	}
}

func TestCheckOut_NeverCheckedIn(t *testing.T) {
	l, s := newTestLedger(t)
	if _, err := l.CheckOut(context.Background(), "Ghost", time.Time{}); !errors.Is(err, ErrNotIn) {
		t.Errorf("expected ErrNotIn, got %v", err)
	}
	if s.CloseCalls != 0 {
		t.Errorf("expected no store calls, got %d", s.CloseCalls)
	}
}

func TestCheckOut_BeforeCheckIn(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.CheckIn(ctx, "Alice", base); err != nil {
		t.Fatalf("CheckIn failed: %v", err)
	}
	if _, err := l.CheckOut(ctx, "Alice", base.Add(-time.Minute)); !errors.Is(err, ErrInvalidTime) {
		t.Errorf("expected ErrInvalidTime, got %v", err)
	}
	if !l.IsIn("Alice") {
		t.Error("rejected checkout must leave the session open")
	}
}

func TestCheckIn_InvalidName(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.CheckIn(context.Background(), " ", time.Time{}); !errors.Is(err, ErrInvalidName) {
		t.Errorf("expected ErrInvalidName, got %v", err)
	}
}

func TestPersistenceFailures_RollBack(t *testing.T) {
	t.Run("append", func(t *testing.T) {
		l, s := newTestLedger(t)
		s.AppendError = errors.New("disk full")

		if _, err := l.CheckIn(context.Background(), "Alice", time.Time{}); !errors.Is(err, store.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if l.IsIn("Alice") || len(l.Events()) != 0 {
			t.Error("failed check-in must leave the ledger unchanged")
		}
	})

	t.Run("close", func(t *testing.T) {
		l, s := newTestLedger(t)
		ctx := context.Background()
		if _, err := l.CheckIn(ctx, "Alice", time.Time{}); err != nil {
			t.Fatalf("CheckIn failed: %v", err)
		}
		s.CloseError = errors.New("disk full")

		if _, err := l.CheckOut(ctx, "Alice", time.Time{}); !errors.Is(err, store.ErrPersistence) {
			t.Fatalf("expected ErrPersistence, got %v", err)
		}
		if !l.IsIn("Alice") {
			t.Error("failed checkout must keep the session open")
		}
		if ev, _ := l.OpenSession("Alice"); !ev.IsOpen() {
			t.Error("open session lost its open state")
		}
	})
}

func TestSingleOpenSessionInvariant_RandomSequence(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	names := []string{"Alice", "Bob", "Carol"}
	rng := rand.New(rand.NewPCG(1, 2))

	at := base
	for range 500 {
		at = at.Add(time.Minute)
		name := names[rng.IntN(len(names))]
		if rng.IntN(2) == 0 {
			_, err := l.CheckIn(ctx, name, at)
			if err != nil && !errors.Is(err, ErrAlreadyIn) {
				t.Fatalf("unexpected CheckIn error: %v", err)
			}
		} else {
			_, err := l.CheckOut(ctx, name, at)
			if err != nil && !errors.Is(err, ErrNotIn) {
				t.Fatalf("unexpected CheckOut error: %v", err)
			}
		}

		for _, n := range names {
			c := openCount(s, n)
			if c > 1 {
				t.Fatalf("%s has %d open sessions", n, c)
			}
			if (c == 1) != l.IsIn(n) {
				t.Fatalf("%s: store open=%d but IsIn=%v", n, c, l.IsIn(n))
			}
		}
	}
}

func TestHistoryAndOpenSessions(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	mustIn := func(name string, at time.Time) {
		if _, err := l.CheckIn(ctx, name, at); err != nil {
			t.Fatalf("CheckIn %s failed: %v", name, err)
		}
	}
	mustOut := func(name string, at time.Time) {
		if _, err := l.CheckOut(ctx, name, at); err != nil {
			t.Fatalf("CheckOut %s failed: %v", name, err)
		}
	}

	mustIn("Alice", base)
	mustIn("Bob", base.Add(time.Minute))
	mustOut("Alice", base.Add(time.Hour))
	mustIn("Alice", base.Add(2*time.Hour))

	hist := l.History("Alice")
	if len(hist) != 2 {
		t.Fatalf("expected 2 events for Alice, got %d", len(hist))
	}
	if hist[0].IsOpen() || !hist[1].IsOpen() {
		t.Errorf("expected closed then open session, got %+v", hist)
	}

	open := l.OpenSessions()
	if len(open) != 2 || open[0].MemberName != "Bob" || open[1].MemberName != "Alice" {
		t.Errorf("unexpected open sessions: %+v", open)
	}
}

func TestLoad(t *testing.T) {
	s := mock.NewMockEventStore()
	out := base.Add(time.Hour)
	s.AddEvent(store.AttendanceEvent{ID: "1", MemberName: "Alice", CheckInAt: base, CheckOutAt: &out})
	s.AddEvent(store.AttendanceEvent{ID: "2", MemberName: "Alice", CheckInAt: base.Add(2 * time.Hour)})
	s.AddEvent(store.AttendanceEvent{ID: "3", MemberName: "Bob", CheckInAt: base, CheckOutAt: &out})

	l := New(s)
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !l.IsIn("Alice") {
		t.Error("expected Alice in after load")
	}
	if l.IsIn("Bob") {
		t.Error("expected Bob out after load")
	}
	if _, err := l.CheckIn(context.Background(), "Alice", time.Time{}); !errors.Is(err, ErrAlreadyIn) {
		t.Errorf("expected ErrAlreadyIn after load, got %v", err)
	}
}

func TestLoad_RejectsDoubleOpenSession(t *testing.T) {
	s := mock.NewMockEventStore()
	s.AddEvent(store.AttendanceEvent{ID: "1", MemberName: "Alice", CheckInAt: base})
	s.AddEvent(store.AttendanceEvent{ID: "2", MemberName: "Alice", CheckInAt: base.Add(time.Hour)})

	err := New(s).Load(context.Background())
	if !errors.Is(err, store.ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
	if errors.Is(err, ErrAlreadyIn) {
		t.Errorf("a corrupt ledger must not look like a failed check-in: %v", err)
	}
}

func TestLoad_StoreError(t *testing.T) {
	s := mock.NewMockEventStore()
	s.LoadError = errors.New("permission denied")
	if err := New(s).Load(context.Background()); !errors.Is(err, store.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
}
