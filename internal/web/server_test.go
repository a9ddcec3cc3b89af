package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/glimpse/internal/draft"
)

type fakeJournal struct {
	recs []draft.CommitRecord
	err  error
}

func (f *fakeJournal) List(context.Context, int) ([]draft.CommitRecord, error) {
	return f.recs, f.err
}

func TestIndexListsCommits(t *testing.T) {
	t.Parallel()

	journal := &fakeJournal{recs: []draft.CommitRecord{
		draft.NewCommitRecord(
			draft.Draft{Text: "send the invite"},
			draft.PreviewResult{Essence: "casual invite"},
			time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC),
		),
	}}
	srv, err := NewServer(journal)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "send the invite")
	assert.Contains(t, rec.Body.String(), "casual invite")
}

func TestIndexEmptyJournal(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(&fakeJournal{})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No commits yet")
}

func TestIndexJournalError(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(&fakeJournal{err: errors.New("db locked")})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
