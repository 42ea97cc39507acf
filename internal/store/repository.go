// Package store defines the persisted records of the attendance system and the
// interfaces storage backends implement.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrPersistence marks a failed durable write or read. Backends wrap their
// underlying error with it so callers can classify failures with errors.Is.
var ErrPersistence = errors.New("persistence error")

// ErrCorrupt marks stored data that loaded but violates the in-memory
// invariants, such as a duplicate name or a member with two open sessions.
var ErrCorrupt = errors.New("inconsistent stored data")

// MemberStore persists the members table.
type MemberStore interface {
	// LoadMembers returns all members in enrollment order.
	LoadMembers(ctx context.Context) ([]Member, error)
	// InsertMember durably adds a member.
	InsertMember(ctx context.Context, member Member) error
	// UpdateMember durably replaces the stored record of an existing member.
	UpdateMember(ctx context.Context, member Member) error
	// DeleteMember durably removes a member by name.
	DeleteMember(ctx context.Context, name string) error
}

// EventStore persists the attendance table.
type EventStore interface {
	// LoadEvents returns all attendance events in the order they were appended.
	LoadEvents(ctx context.Context) ([]AttendanceEvent, error)
	// AppendEvent durably appends a new, open event.
	AppendEvent(ctx context.Context, event AttendanceEvent) error
	// CloseEvent durably sets the checkout timestamp of a previously appended event.
	CloseEvent(ctx context.Context, event AttendanceEvent) error
}

// Backend bundles both tables of one storage location.
type Backend interface {
	MemberStore
	EventStore
	Close() error
}

// Wrap annotates err with ErrPersistence and the failed operation.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
