// Package attendance keeps the check-in / check-out ledger.
//
// Every member is either Out (no open session) or In (exactly one event without a
// checkout). The ledger only ever appends events and sets the checkout of the
// member's own open event; it never deletes history.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/facegate/internal/store"
)

var (
	// ErrAlreadyIn is returned when checking in a member who has an open session.
	ErrAlreadyIn = errors.New("member already checked in")
	// ErrNotIn is returned when checking out a member without an open session.
	ErrNotIn = errors.New("member not checked in")
	// ErrInvalidTime is returned when a checkout would precede its check-in.
	ErrInvalidTime = errors.New("checkout precedes check-in")
	// ErrInvalidName is returned for empty member names.
	ErrInvalidName = errors.New("member name is required")
)

// Ledger is the attendance state machine backed by a store.EventStore.
type Ledger struct {
	mu     sync.RWMutex
	store  store.EventStore
	events []store.AttendanceEvent
	open   map[string]int // member name -> index of the open event
	now    func() time.Time
	newID  func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source used when no explicit time is given.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithIDGenerator overrides event ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		l.newID = gen
	}
}

// New creates an empty ledger persisting through s.
func New(s store.EventStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: s,
		open:  make(map[string]int),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory ledger with the persisted events. A stored ledger
// with more than one open session for the same member is rejected with
// store.ErrCorrupt.
func (l *Ledger) Load(ctx context.Context) error {
	events, err := l.store.LoadEvents(ctx)
	if err != nil {
		return store.Wrap("load attendance", err)
	}

	open := make(map[string]int)
	loaded := make([]store.AttendanceEvent, 0, len(events))
	for _, ev := range events {
		if ev.IsOpen() {
			if _, dup := open[ev.MemberName]; dup {
				return fmt.Errorf("load attendance: %w: %q has several open sessions", store.ErrCorrupt, ev.MemberName)
			}
			open[ev.MemberName] = len(loaded)
		}
		loaded = append(loaded, ev.Clone())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = loaded
	l.open = open
	return nil
}

// timestamp resolves the effective event time; a zero value means now.
func (l *Ledger) timestamp(at time.Time) time.Time {
	if at.IsZero() {
		at = l.now()
	}
	return at.Truncate(time.Second)
}

// CheckIn opens a session for name. It fails with ErrAlreadyIn, without creating
// an event, if the member already has an open session.
func (l *Ledger) CheckIn(ctx context.Context, name string, at time.Time) (store.AttendanceEvent, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.AttendanceEvent{}, ErrInvalidName
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.open[name]; ok {
		return l.events[idx].Clone(), fmt.Errorf("check in %q: %w", name, ErrAlreadyIn)
	}

	ev := store.AttendanceEvent{
		ID:         l.newID(),
		MemberName: name,
		CheckInAt:  l.timestamp(at),
	}
	if err := l.store.AppendEvent(ctx, ev); err != nil {
		return store.AttendanceEvent{}, store.Wrap("check in "+name, err)
	}

	l.open[name] = len(l.events)
	l.events = append(l.events, ev)
	return ev.Clone(), nil
}

// CheckOut closes the open session of name. It fails with ErrNotIn if there is none.
func (l *Ledger) CheckOut(ctx context.Context, name string, at time.Time) (store.AttendanceEvent, error) {
	name = strings.TrimSpace(name)

	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.open[name]
	if !ok {
		return store.AttendanceEvent{}, fmt.Errorf("check out %q: %w", name, ErrNotIn)
	}

	closed := l.events[idx].Clone()
	out := l.timestamp(at)
	if out.Before(closed.CheckInAt) {
		return store.AttendanceEvent{}, fmt.Errorf("check out %q at %s: %w",
			name, out.Format(store.TimestampLayout), ErrInvalidTime)
	}
	closed.CheckOutAt = &out

	if err := l.store.CloseEvent(ctx, closed); err != nil {
		return store.AttendanceEvent{}, store.Wrap("check out "+name, err)
	}

	events := make([]store.AttendanceEvent, len(l.events))
	copy(events, l.events)
	events[idx] = closed
	l.events = events
	delete(l.open, name)
	return closed.Clone(), nil
}

// IsIn reports whether name currently has an open session.
func (l *Ledger) IsIn(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.open[name]
	return ok
}

// OpenSession returns the open event of name, if any.
func (l *Ledger) OpenSession(name string) (store.AttendanceEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.open[name]
	if !ok {
		return store.AttendanceEvent{}, false
	}
	return l.events[idx].Clone(), true
}

// OpenSessions returns every open event in check-in order.
func (l *Ledger) OpenSessions() []store.AttendanceEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []store.AttendanceEvent
	for _, ev := range l.events {
		if ev.IsOpen() {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// History returns all events of name in the order they were recorded.
func (l *Ledger) History(name string) []store.AttendanceEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []store.AttendanceEvent
	for _, ev := range l.events {
		if ev.MemberName == name {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// Events returns the whole ledger in the order events were recorded.
func (l *Ledger) Events() []store.AttendanceEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]store.AttendanceEvent, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Clone()
	}
	return out
}
