// Package mock provides in-memory implementations of the store interfaces for testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/kozaktomas/facegate/internal/store"
)

// MockMemberStore is an in-memory store.MemberStore with error injection.
type MockMemberStore struct {
	mu      sync.RWMutex
	members []store.Member

	// Error injection
	LoadError   error
	InsertError error
	UpdateError error
	DeleteError error

	// Call counters
	InsertCalls int
	UpdateCalls int
	DeleteCalls int
}

// NewMockMemberStore creates an empty mock member store.
func NewMockMemberStore() *MockMemberStore {
	return &MockMemberStore{}
}

// AddMember seeds the store without going through InsertMember.
func (m *MockMemberStore) AddMember(member store.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = append(m.members, member.Clone())
}

// Members returns a copy of the persisted members.
func (m *MockMemberStore) Members() []store.Member {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.Member, len(m.members))
	for i, member := range m.members {
		out[i] = member.Clone()
	}
	return out
}

// LoadMembers returns all seeded members in order.
func (m *MockMemberStore) LoadMembers(ctx context.Context) ([]store.Member, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	return m.Members(), nil
}

// InsertMember appends a member.
func (m *MockMemberStore) InsertMember(ctx context.Context, member store.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	if m.InsertError != nil {
		return m.InsertError
	}
	for _, existing := range m.members {
		if existing.Name == member.Name {
			return fmt.Errorf("member %q already stored", member.Name)
		}
	}
	m.members = append(m.members, member.Clone())
	return nil
}

// UpdateMember replaces a stored member.
func (m *MockMemberStore) UpdateMember(ctx context.Context, member store.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateError != nil {
		return m.UpdateError
	}
	for i := range m.members {
		if m.members[i].Name == member.Name {
			m.members[i] = member.Clone()
			return nil
		}
	}
	return fmt.Errorf("member %q not stored", member.Name)
}

// DeleteMember removes a member.
func (m *MockMemberStore) DeleteMember(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return m.DeleteError
	}
	for i := range m.members {
		if m.members[i].Name == name {
			m.members = append(m.members[:i], m.members[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("member %q not stored", name)
}

// MockEventStore is an in-memory store.EventStore with error injection.
type MockEventStore struct {
	mu     sync.RWMutex
	events []store.AttendanceEvent

	// Error injection
	LoadError   error
	AppendError error
	CloseError  error

	// Call counters
	AppendCalls int
	CloseCalls  int
}

// NewMockEventStore creates an empty mock event store.
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{}
}

// AddEvent seeds the store without going through AppendEvent.
func (m *MockEventStore) AddEvent(event store.AttendanceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event.Clone())
}

// Events returns a copy of the persisted events.
func (m *MockEventStore) Events() []store.AttendanceEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.AttendanceEvent, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Clone()
	}
	return out
}

// LoadEvents returns all events in order.
func (m *MockEventStore) LoadEvents(ctx context.Context) ([]store.AttendanceEvent, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	return m.Events(), nil
}

// AppendEvent appends an event.
func (m *MockEventStore) AppendEvent(ctx context.Context, event store.AttendanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	if m.AppendError != nil {
		return m.AppendError
	}
	m.events = append(m.events, event.Clone())
	return nil
}

// CloseEvent sets the checkout of a stored event.
func (m *MockEventStore) CloseEvent(ctx context.Context, event store.AttendanceEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls++
	if m.CloseError != nil {
		return m.CloseError
	}
	for i := range m.events {
		if m.events[i].ID == event.ID {
			m.events[i] = event.Clone()
			return nil
		}
	}
	return fmt.Errorf("event %q not stored", event.ID)
}

// MockBackend combines both mock stores into a store.Backend.
type MockBackend struct {
	*MockMemberStore
	*MockEventStore
	Closed bool
}

// NewMockBackend creates an empty mock backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		MockMemberStore: NewMockMemberStore(),
		MockEventStore:  NewMockEventStore(),
	}
}

// Close marks the backend closed.
func (b *MockBackend) Close() error {
	b.Closed = true
	return nil
}
