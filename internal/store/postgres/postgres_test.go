//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/registry"
	"github.com/kozaktomas/facegate/internal/store"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	s, err := Open(ctx, cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to open store: %v", err)
	}

	cleanup := func() {
		s.Close()
		container.Terminate(ctx)
	}
	return s, cleanup
}

func TestPostgresStore(t *testing.T) {
	s, cleanup := setupTestContainer(t)
	if s == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	enrolled := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	t.Run("MigrationsRecorded", func(t *testing.T) {
		versions, err := s.Pool().MigrationsApplied(ctx)
		if err != nil {
			t.Fatalf("MigrationsApplied failed: %v", err)
		}
		if len(versions) != 2 || versions[0] != "001_members.sql" {
			t.Errorf("unexpected migrations: %v", versions)
		}
		if err := s.Pool().Migrate(ctx); err != nil {
			t.Errorf("second Migrate must be a no-op, got %v", err)
		}
	})

	t.Run("MembersRoundTrip", func(t *testing.T) {
		enc := biometric.Encoding{0.123456789012345, -0.987654321098765, 1e-12}
		m := store.Member{Name: "Alice", Encoding: enc, Profile: store.Profile{Goal: "cardio"}, EnrolledAt: enrolled}
		if err := s.InsertMember(ctx, m); err != nil {
			t.Fatalf("InsertMember failed: %v", err)
		}
		if err := s.InsertMember(ctx, m); !errors.Is(err, store.ErrPersistence) {
			t.Errorf("expected unique violation as ErrPersistence, got %v", err)
		}

		members, err := s.LoadMembers(ctx)
		if err != nil {
			t.Fatalf("LoadMembers failed: %v", err)
		}
		if len(members) != 1 {
			t.Fatalf("expected 1 member, got %d", len(members))
		}
		for i := range enc {
			if members[0].Encoding[i] != enc[i] {
				t.Errorf("component %d: expected %v, got %v", i, enc[i], members[0].Encoding[i])
			}
		}
		if !members[0].EnrolledAt.Equal(enrolled) || members[0].Profile.Goal != "cardio" {
			t.Errorf("unexpected member: %+v", members[0])
		}

		m.Profile.Goal = "strength"
		if err := s.UpdateMember(ctx, m); err != nil {
			t.Fatalf("UpdateMember failed: %v", err)
		}
		if err := s.DeleteMember(ctx, "Nobody"); !errors.Is(err, store.ErrPersistence) {
			t.Errorf("expected ErrPersistence deleting unknown member, got %v", err)
		}
	})

	t.Run("OneOpenSessionEnforcedByDatabase", func(t *testing.T) {
		first := store.AttendanceEvent{ID: "e1", MemberName: "Bob", CheckInAt: enrolled}
		if err := s.AppendEvent(ctx, first); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
		second := store.AttendanceEvent{ID: "e2", MemberName: "Bob", CheckInAt: enrolled.Add(time.Minute)}
		if err := s.AppendEvent(ctx, second); !errors.Is(err, store.ErrPersistence) {
			t.Errorf("expected second open session to be rejected, got %v", err)
		}

		out := enrolled.Add(time.Hour)
		first.CheckOutAt = &out
		if err := s.CloseEvent(ctx, first); err != nil {
			t.Fatalf("CloseEvent failed: %v", err)
		}
		if err := s.CloseEvent(ctx, first); !errors.Is(err, store.ErrPersistence) {
			t.Errorf("closing a closed event must fail, got %v", err)
		}

		events, err := s.LoadEvents(ctx)
		if err != nil {
			t.Fatalf("LoadEvents failed: %v", err)
		}
		if len(events) != 1 || events[0].IsOpen() || !events[0].CheckOutAt.Equal(out) {
			t.Errorf("unexpected events: %+v", events)
		}
	})

	t.Run("LedgerAndVectorIndex", func(t *testing.T) {
		reg := registry.New(s)
		if err := reg.Load(ctx); err != nil {
			t.Fatalf("registry Load failed: %v", err)
		}
		for i := range 20 {
			enc := biometric.Encoding{float64(i), float64(i) / 2, 1}
			if err := reg.Enroll(ctx, fmt.Sprintf("member-%02d", i), enc, store.Profile{}); err != nil {
				t.Fatalf("Enroll failed: %v", err)
			}
		}

		m, err := matcher.New(0.5, matcher.WithIndex(NewVectorIndex(s.Pool()), 5, 0))
		if err != nil {
			t.Fatalf("matcher.New failed: %v", err)
		}
		res, err := m.Identify(ctx, biometric.Encoding{7.1, 3.5, 1}, reg)
		if err != nil {
			t.Fatalf("Identify failed: %v", err)
		}
		if !res.Identified || res.Name != "member-07" {
			t.Fatalf("expected member-07, got %v", res)
		}

		l := attendance.New(s)
		if err := l.Load(ctx); err != nil {
			t.Fatalf("ledger Load failed: %v", err)
		}
		if _, err := l.CheckIn(ctx, res.Name, time.Time{}); err != nil {
			t.Fatalf("CheckIn failed: %v", err)
		}
		if _, err := l.CheckIn(ctx, res.Name, time.Time{}); !errors.Is(err, attendance.ErrAlreadyIn) {
			t.Errorf("expected ErrAlreadyIn, got %v", err)
		}
		if _, err := l.CheckOut(ctx, res.Name, time.Time{}); err != nil {
			t.Fatalf("CheckOut failed: %v", err)
		}
	})
}
