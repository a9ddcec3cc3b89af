package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/glimpse/internal/draft"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewStore(database)
}

func testRecord(text string) draft.CommitRecord {
	return draft.NewCommitRecord(
		draft.Draft{Text: text, Goal: "goal", Constraints: "constraints"},
		draft.PreviewResult{Sample: "sample", Essence: "essence", Elapsed: 120 * time.Millisecond},
		time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC),
	)
}

func TestApplyAndList(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Apply(ctx, testRecord("first")))
	require.NoError(t, store.Apply(ctx, testRecord("second")))

	recs, err := store.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "goal", recs[0].Draft.Goal)
	assert.Equal(t, 120*time.Millisecond, recs[0].Result.Elapsed)
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("same")
	require.NoError(t, store.Apply(ctx, rec))
	require.NoError(t, store.Apply(ctx, rec), "identical retry must not fail")

	recs, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
