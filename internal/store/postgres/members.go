package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const memberColumns = `name, birth_date, phone, goal, enrolled_at, encoding`

// LoadMembers returns all members in enrollment order.
func (s *Store) LoadMembers(ctx context.Context) ([]store.Member, error) {
	rows, err := s.pool.db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY seq`)
	if err != nil {
		return nil, store.Wrap("load members", fmt.Errorf("query members: %w", err))
	}
	defer rows.Close()

	var members []store.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, store.Wrap("load members", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("load members", fmt.Errorf("iterate members: %w", err))
	}
	return members, nil
}

func scanMember(rows *sql.Rows) (store.Member, error) {
	var (
		m   store.Member
		enc pq.Float64Array
	)
	if err := rows.Scan(&m.Name, &m.Profile.BirthDate, &m.Profile.Phone, &m.Profile.Goal, &m.EnrolledAt, &enc); err != nil {
		return store.Member{}, fmt.Errorf("scan member: %w", err)
	}
	m.Encoding = biometric.Encoding(enc)
	return m, nil
}

// InsertMember stores the exact encoding and its pgvector copy.
func (s *Store) InsertMember(ctx context.Context, m store.Member) error {
	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO members (name, birth_date, phone, goal, enrolled_at, encoding, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.Name, m.Profile.BirthDate, m.Profile.Phone, m.Profile.Goal, m.EnrolledAt,
		pq.Float64Array(m.Encoding), pgvector.NewVector(m.Encoding.Float32()))
	if err != nil {
		return store.Wrap("insert member", fmt.Errorf("insert %q: %w", m.Name, err))
	}
	return nil
}

// UpdateMember rewrites the profile and encoding of an existing row.
func (s *Store) UpdateMember(ctx context.Context, m store.Member) error {
	res, err := s.pool.db.ExecContext(ctx, `
		UPDATE members
		SET birth_date = $2, phone = $3, goal = $4, encoding = $5, embedding = $6
		WHERE name = $1
	`, m.Name, m.Profile.BirthDate, m.Profile.Phone, m.Profile.Goal,
		pq.Float64Array(m.Encoding), pgvector.NewVector(m.Encoding.Float32()))
	if err != nil {
		return store.Wrap("update member", fmt.Errorf("update %q: %w", m.Name, err))
	}
	return store.Wrap("update member", expectOneRow(res, "member "+m.Name))
}

// DeleteMember removes a member row. Attendance history is kept.
func (s *Store) DeleteMember(ctx context.Context, name string) error {
	res, err := s.pool.db.ExecContext(ctx, `DELETE FROM members WHERE name = $1`, name)
	if err != nil {
		return store.Wrap("delete member", fmt.Errorf("delete %q: %w", name, err))
	}
	return store.Wrap("delete member", expectOneRow(res, "member "+name))
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%s: expected 1 row, affected %d", what, n)
	}
	return nil
}
