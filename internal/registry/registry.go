// Package registry owns the enrolled members and their face encodings.
//
// All mutations are serialized behind a single writer lock and persisted through a
// store.MemberStore before they become visible; if the durable write fails the
// in-memory state is left untouched.
package registry

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/store"
)

var (
	// ErrDuplicateName is returned when enrolling a name that is already registered.
	ErrDuplicateName = errors.New("member already enrolled")
	// ErrNotFound is returned when a member lookup fails.
	ErrNotFound = errors.New("member not found")
	// ErrInvalidName is returned for empty member names.
	ErrInvalidName = errors.New("member name is required")
)

// Registry holds members in enrollment order.
type Registry struct {
	mu      sync.RWMutex
	store   store.MemberStore
	members []store.Member
	byName  map[string]int // name -> index into members
	dim     int            // 0 until fixed by configuration or the first enrollment
	gen     uint64         // bumped whenever members are added or removed
	now     func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithDim fixes the encoding dimensionality up front instead of deriving it
// from the first enrollment.
func WithDim(dim int) Option {
	return func(r *Registry) {
		if dim > 0 {
			r.dim = dim
		}
	}
}

// WithClock overrides the enrollment timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an empty registry persisting through s.
func New(s store.MemberStore, opts ...Option) *Registry {
	r := &Registry{
		store:  s,
		byName: make(map[string]int),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the in-memory state with the members persisted in the store.
func (r *Registry) Load(ctx context.Context) error {
	members, err := r.store.LoadMembers(ctx)
	if err != nil {
		return store.Wrap("load members", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dim := r.dim
	byName := make(map[string]int, len(members))
	loaded := make([]store.Member, 0, len(members))
	for _, m := range members {
		if _, ok := byName[m.Name]; ok {
			return fmt.Errorf("load members: %w: %w: %q appears twice", store.ErrCorrupt, ErrDuplicateName, m.Name)
		}
		if err := m.Encoding.Validate(); err != nil {
			return fmt.Errorf("load members: %w: member %q: %w", store.ErrCorrupt, m.Name, err)
		}
		if dim == 0 {
			dim = m.Encoding.Dim()
		}
		if m.Encoding.Dim() != dim {
			return fmt.Errorf("load members: %w: %w: %q has %d components, registry has %d",
				store.ErrCorrupt, biometric.ErrDimensionMismatch, m.Name, m.Encoding.Dim(), dim)
		}
		byName[m.Name] = len(loaded)
		loaded = append(loaded, m.Clone())
	}

	r.members = loaded
	r.byName = byName
	r.dim = dim
	r.gen++
	return nil
}

// Enroll registers a new member and persists it.
func (r *Registry) Enroll(ctx context.Context, name string, encoding biometric.Encoding, profile store.Profile) error {
	return r.add(ctx, store.Member{Name: name, Encoding: encoding, Profile: profile})
}

// Import registers a member taken from another registry, keeping its
// enrollment time. A zero EnrolledAt means now.
func (r *Registry) Import(ctx context.Context, m store.Member) error {
	return r.add(ctx, m)
}

func (r *Registry) add(ctx context.Context, m store.Member) error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return ErrInvalidName
	}
	if err := m.Encoding.Validate(); err != nil {
		return fmt.Errorf("enroll %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("enroll %q: %w", name, ErrDuplicateName)
	}
	if r.dim != 0 && m.Encoding.Dim() != r.dim {
		return fmt.Errorf("enroll %q: %w: got %d, registry has %d",
			name, biometric.ErrDimensionMismatch, m.Encoding.Dim(), r.dim)
	}

	enrolledAt := m.EnrolledAt
	if enrolledAt.IsZero() {
		enrolledAt = r.now()
	}
	member := store.Member{
		Name:       name,
		Encoding:   m.Encoding.Clone(),
		Profile:    m.Profile,
		EnrolledAt: enrolledAt.Truncate(time.Second),
	}
	if err := r.store.InsertMember(ctx, member); err != nil {
		return store.Wrap("enroll "+name, err)
	}

	if r.dim == 0 {
		r.dim = member.Encoding.Dim()
	}
	r.byName[name] = len(r.members)
	r.members = append(r.members, member)
	r.gen++
	return nil
}

// UpdateProfile replaces the profile of an enrolled member.
func (r *Registry) UpdateProfile(ctx context.Context, name string, profile store.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("update %q: %w", name, ErrNotFound)
	}

	updated := r.members[idx].Clone()
	updated.Profile = profile
	if err := r.store.UpdateMember(ctx, updated); err != nil {
		return store.Wrap("update "+name, err)
	}
	members := slices.Clone(r.members)
	members[idx] = updated
	r.members = members
	return nil
}

// Remove deletes a member from the registry.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("remove %q: %w", name, ErrNotFound)
	}
	if err := r.store.DeleteMember(ctx, name); err != nil {
		return store.Wrap("remove "+name, err)
	}

	r.members = append(r.members[:idx:idx], r.members[idx+1:]...)
	r.byName = make(map[string]int, len(r.members))
	for i, m := range r.members {
		r.byName[m.Name] = i
	}
	r.gen++
	return nil
}

// Get returns a copy of the member with the exact given name.
func (r *Registry) Get(name string) (store.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byName[name]
	if !ok {
		return store.Member{}, false
	}
	return r.members[idx].Clone(), true
}

// All yields members in enrollment order. Each call starts a fresh pass over a
// snapshot taken when iteration begins, so the sequence is restartable and
// unaffected by concurrent writers.
func (r *Registry) All() iter.Seq[store.Member] {
	return func(yield func(store.Member) bool) {
		r.mu.RLock()
		snapshot := r.members
		r.mu.RUnlock()

		for _, m := range snapshot {
			if !yield(m.Clone()) {
				return
			}
		}
	}
}

// Len returns the number of enrolled members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Dim returns the established encoding dimensionality, or 0 if none is fixed yet.
func (r *Registry) Dim() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dim
}

// Position returns the enrollment position of a member, used to break ties.
func (r *Registry) Position(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	return idx, ok
}

// Generation changes whenever the set of members changes. Index structures use it
// to detect that they must be rebuilt.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gen
}
