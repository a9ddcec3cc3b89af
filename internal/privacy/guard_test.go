package privacy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/glimpse/internal/draft"
)

func TestCommitReturnsRecordOnSuccess(t *testing.T) {
	t.Parallel()

	var applied []draft.CommitRecord
	sink := SinkFunc(func(_ context.Context, rec draft.CommitRecord) error {
		applied = append(applied, rec)
		return nil
	})
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	g := NewGuardWithClock(sink, func() time.Time { return at })

	d := draft.Draft{Text: "ship it", Goal: "small diff"}
	r := draft.PreviewResult{Essence: "minimal change"}

	rec, err := g.Commit(context.Background(), d, r)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, rec, applied[0])
	assert.Equal(t, d, rec.Draft)
	assert.Equal(t, at, rec.CommittedAt)
	assert.NotEmpty(t, rec.ID)
}

func TestCommitSurfacesSinkError(t *testing.T) {
	t.Parallel()

	sinkErr := errors.New("disk full")
	g := NewGuard(SinkFunc(func(context.Context, draft.CommitRecord) error {
		return sinkErr
	}))

	_, err := g.Commit(context.Background(), draft.Draft{Text: "x"}, draft.PreviewResult{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
}
