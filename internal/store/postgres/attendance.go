package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/facegate/internal/store"
)

// LoadEvents returns the attendance table in insertion order.
func (s *Store) LoadEvents(ctx context.Context) ([]store.AttendanceEvent, error) {
	rows, err := s.pool.db.QueryContext(ctx, `
		SELECT id, member_name, check_in_at, check_out_at
		FROM attendance
		ORDER BY seq
	`)
	if err != nil {
		return nil, store.Wrap("load attendance", fmt.Errorf("query attendance: %w", err))
	}
	defer rows.Close()

	var events []store.AttendanceEvent
	for rows.Next() {
		var (
			ev  store.AttendanceEvent
			out sql.NullTime
		)
		if err := rows.Scan(&ev.ID, &ev.MemberName, &ev.CheckInAt, &out); err != nil {
			return nil, store.Wrap("load attendance", fmt.Errorf("scan attendance: %w", err))
		}
		if out.Valid {
			t := out.Time
			ev.CheckOutAt = &t
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("load attendance", fmt.Errorf("iterate attendance: %w", err))
	}
	return events, nil
}

// AppendEvent inserts an open session. The partial unique index rejects a
// second open session for the same member.
func (s *Store) AppendEvent(ctx context.Context, ev store.AttendanceEvent) error {
	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO attendance (id, member_name, check_in_at)
		VALUES ($1, $2, $3)
	`, ev.ID, ev.MemberName, ev.CheckInAt)
	if err != nil {
		return store.Wrap("append attendance", fmt.Errorf("insert event %s: %w", ev.ID, err))
	}
	return nil
}

// CloseEvent sets the checkout of a still-open event.
func (s *Store) CloseEvent(ctx context.Context, ev store.AttendanceEvent) error {
	if ev.CheckOutAt == nil {
		return store.Wrap("close attendance", fmt.Errorf("event %s has no checkout time", ev.ID))
	}
	res, err := s.pool.db.ExecContext(ctx, `
		UPDATE attendance SET check_out_at = $2
		WHERE id = $1 AND check_out_at IS NULL
	`, ev.ID, *ev.CheckOutAt)
	if err != nil {
		return store.Wrap("close attendance", fmt.Errorf("update event %s: %w", ev.ID, err))
	}
	return store.Wrap("close attendance", expectOneRow(res, "open event "+ev.ID))
}
