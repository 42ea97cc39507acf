package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/pgvector/pgvector-go"
)

// VectorIndex implements matcher.Index with a pgvector distance query over the
// members table.
type VectorIndex struct {
	pool *Pool
}

// NewVectorIndex creates a candidate index backed by pool.
func NewVectorIndex(pool *Pool) *VectorIndex {
	return &VectorIndex{pool: pool}
}

// Candidates returns up to k member names ordered by L2 distance to query.
func (x *VectorIndex) Candidates(ctx context.Context, query biometric.Encoding, k int) ([]string, error) {
	if k <= 0 {
		return nil, errors.New("candidate count must be positive")
	}

	rows, err := x.pool.db.QueryContext(ctx, `
		SELECT name FROM members
		ORDER BY embedding <-> $1, seq
		LIMIT $2
	`, pgvector.NewVector(query.Float32()), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest members: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0, k)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan member name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest members: %w", err)
	}
	return names, nil
}
