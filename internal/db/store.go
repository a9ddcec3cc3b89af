package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/metalagman/glimpse/internal/draft"
)

// Store persists committed negotiation records. It is the CommitSink
// behind the privacy guard; nothing else writes to the journal.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open journal database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Apply inserts the record. Records are content-addressed by their id,
// so retrying an identical commit is a no-op.
func (s *Store) Apply(ctx context.Context, rec draft.CommitRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO commits(commit_id, committed_at, text, goal, constraints, sample, essence, delta, elapsed_ms)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(commit_id) DO NOTHING`,
		rec.ID,
		rec.CommittedAt.UTC().Format(time.RFC3339),
		rec.Draft.Text,
		rec.Draft.Goal,
		rec.Draft.Constraints,
		rec.Result.Sample,
		rec.Result.Essence,
		rec.Result.Delta,
		rec.Result.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert commit: %w", err)
	}
	return nil
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]draft.CommitRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT commit_id, committed_at, text, goal, constraints, sample, essence, delta, elapsed_ms
		FROM commits ORDER BY committed_at DESC, commit_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []draft.CommitRecord
	for rows.Next() {
		var rec draft.CommitRecord
		var committedAt string
		var elapsedMS int64
		if err := rows.Scan(&rec.ID, &committedAt, &rec.Draft.Text, &rec.Draft.Goal, &rec.Draft.Constraints,
			&rec.Result.Sample, &rec.Result.Essence, &rec.Result.Delta, &elapsedMS); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		rec.CommittedAt, err = time.Parse(time.RFC3339, committedAt)
		if err != nil {
			return nil, fmt.Errorf("parse committed_at: %w", err)
		}
		rec.Result.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	return out, nil
}
