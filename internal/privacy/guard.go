// Package privacy makes "ephemeral until commit" mechanically true. The
// Guard is the only code path that may reach the CommitSink; nothing
// upstream of it can persist anything.
package privacy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/glimpse/internal/draft"
)

// CommitSink applies a committed record downstream. Implementations must
// be idempotent with respect to identical records if the caller retries;
// retry policy itself belongs to the implementation, not the engine.
type CommitSink interface {
	Apply(ctx context.Context, rec draft.CommitRecord) error
}

// SinkFunc adapts a function to the CommitSink interface.
type SinkFunc func(ctx context.Context, rec draft.CommitRecord) error

func (f SinkFunc) Apply(ctx context.Context, rec draft.CommitRecord) error {
	return f(ctx, rec)
}

// Guard holds the single injected sink. It exposes exactly one method.
type Guard struct {
	sink CommitSink
	now  func() time.Time
}

// NewGuard wraps sink. now defaults to time.Now.
func NewGuard(sink CommitSink) *Guard {
	return &Guard{sink: sink, now: time.Now}
}

// NewGuardWithClock is for tests that need a fixed commit timestamp.
func NewGuardWithClock(sink CommitSink, now func() time.Time) *Guard {
	return &Guard{sink: sink, now: now}
}

// Commit builds the record, hands it to the sink, and returns it on
// success. Sink errors surface unchanged in the chain.
func (g *Guard) Commit(ctx context.Context, d draft.Draft, r draft.PreviewResult) (draft.CommitRecord, error) {
	rec := draft.NewCommitRecord(d, r, g.now())
	if err := g.sink.Apply(ctx, rec); err != nil {
		return draft.CommitRecord{}, fmt.Errorf("commit sink: %w", err)
	}
	log.Info().
		Str("commit_id", rec.ID).
		Time("committed_at", rec.CommittedAt).
		Msg("draft committed")
	return rec, nil
}
