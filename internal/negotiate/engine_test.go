package negotiate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/glimpse/internal/draft"
	"github.com/metalagman/glimpse/internal/ladder"
	"github.com/metalagman/glimpse/internal/privacy"
	"github.com/metalagman/glimpse/internal/sampler"
)

type stubSampler struct {
	mu      sync.Mutex
	calls   int
	started chan struct{} // closed on first call, if set
	gate    chan struct{} // blocks the reply until closed, if set
	fn      func(d draft.Draft) (sampler.Output, error)
}

func (s *stubSampler) Sample(ctx context.Context, d draft.Draft) (sampler.Output, error) {
	s.mu.Lock()
	s.calls++
	started := s.started
	s.started = nil
	gate := s.gate
	s.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			// Cancellation-indifferent: finish anyway, like a remote
			// model that cannot be interrupted.
			<-gate
		}
	}
	if s.fn != nil {
		return s.fn(d)
	}
	return sampler.Output{Sample: "sample", Essence: "essence"}, nil
}

func (s *stubSampler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingSink struct {
	mu      sync.Mutex
	applied []draft.CommitRecord
	err     error
}

func (c *countingSink) Apply(_ context.Context, rec draft.CommitRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.applied = append(c.applied, rec)
	return nil
}

func (c *countingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.applied)
}

func (c *countingSink) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func testConfig() Config {
	return Config{Debounce: time.Millisecond}
}

func newTestEngine(t *testing.T, cfg Config, s sampler.Sampler) (*Engine, *countingSink) {
	t.Helper()
	sink := &countingSink{}
	return New(cfg, s, privacy.NewGuard(sink)), sink
}

func alignedDraft() draft.Draft {
	return draft.Draft{Text: "send the invite", Goal: "friendly tone"}
}

func TestThirdPreviewRedialsWithoutSamplerCall(t *testing.T) {
	t.Parallel()

	stub := &stubSampler{}
	e, _ := newTestEngine(t, testConfig(), stub)
	ctx := context.Background()

	_, st, err := e.Preview(ctx, alignedDraft())
	require.NoError(t, err)
	assert.Equal(t, draft.StatusAligned, st)

	require.NoError(t, e.Adjust(alignedDraft()))
	_, st, err = e.Preview(ctx, alignedDraft())
	require.NoError(t, err)
	assert.Equal(t, draft.StatusAligned, st)
	assert.Equal(t, 2, stub.callCount())

	_, st, err = e.Preview(ctx, alignedDraft())
	require.NoError(t, err)
	assert.Equal(t, draft.StatusRedial, st)
	assert.Equal(t, 2, stub.callCount(), "third preview must not reach the sampler")
	assert.Equal(t, 0, e.Attempts(), "cap hit resets for the next negotiation")

	// Next negotiation starts cleanly.
	_, st, err = e.Preview(ctx, alignedDraft())
	require.NoError(t, err)
	assert.Equal(t, draft.StatusAligned, st)
	assert.Equal(t, 1, e.Attempts())
}

func TestNoSideEffectsBeforeCommit(t *testing.T) {
	t.Parallel()

	e, sink := newTestEngine(t, testConfig(), &stubSampler{})
	ctx := context.Background()

	d := alignedDraft()
	res, st, err := e.Preview(ctx, d)
	require.NoError(t, err)
	require.Equal(t, draft.StatusAligned, st)
	require.NoError(t, e.Adjust(d))
	res, st, err = e.Preview(ctx, d)
	require.NoError(t, err)
	require.Equal(t, draft.StatusAligned, st)

	assert.Equal(t, 0, sink.count(), "sink untouched before commit")

	rec, err := e.Commit(ctx, d, res)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, d, rec.Draft)
	assert.Equal(t, 0, e.Attempts(), "state reset after commit")
	assert.Empty(t, e.History())
}

func TestStaleIsolation(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	started := make(chan struct{})
	stub := &stubSampler{gate: gate, started: started}
	e, sink := newTestEngine(t, testConfig(), stub)

	type outcome struct {
		res draft.PreviewResult
		st  draft.AttemptStatus
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, st, err := e.Preview(context.Background(), alignedDraft())
		done <- outcome{res, st, err}
	}()

	<-started
	// Edit while the call is outstanding: cancels its relevance.
	require.NoError(t, e.Adjust(draft.Draft{Text: "send the invite, shorter", Goal: "friendly tone"}))
	close(gate)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, draft.StatusStale, out.st)
	assert.Empty(t, out.res.Sample, "stale payload hidden by default")
	assert.Empty(t, out.res.Essence)
	assert.Equal(t, 0, e.Attempts(), "stale result is not attributed to any attempt")
	assert.Contains(t, e.History(), LineStale)
	assert.Equal(t, 0, sink.count())

	// The parked result is revealed only on explicit request.
	parked, ok := e.StaleResult(out.res.Generation)
	require.True(t, ok)
	assert.Equal(t, "sample", parked.Sample)

	// Committing the stale result is a contract violation.
	_, err := e.Commit(context.Background(), e.Working(), parked)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// A fresh preview of the current draft counts normally.
	_, st, err := e.Preview(context.Background(), e.Working())
	require.NoError(t, err)
	assert.Equal(t, draft.StatusAligned, st)
	assert.Equal(t, 1, e.Attempts())
}

func TestCancelRefundsAttempt(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	started := make(chan struct{})
	stub := &stubSampler{gate: gate, started: started}
	e, _ := newTestEngine(t, testConfig(), stub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := e.Preview(ctx, alignedDraft())
		done <- err
	}()

	<-started
	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, e.Attempts(), "cancel consumes no attempt")
	close(gate)
}

func TestRedialResetsCleanly(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, testConfig(), &stubSampler{})
	_, _, err := e.Preview(context.Background(), alignedDraft())
	require.NoError(t, err)
	require.NotEmpty(t, e.History())

	line := e.Redial()
	assert.Equal(t, LineRedial, line)
	assert.Equal(t, 0, e.Attempts())
	assert.Empty(t, e.History())
}

func TestScenarioConflictThenNarrowedConstraints(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, testConfig(), sampler.NewRules())
	ctx := context.Background()

	d := draft.Draft{
		Text:        "refactor parse_event for None safety",
		Goal:        "safe None handling",
		Constraints: "don't change return schema",
	}
	res, st, err := e.Preview(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, draft.StatusNotAligned, st)
	assert.NotEmpty(t, res.Delta)
	assert.Contains(t, e.History(), LineNotAligned)

	narrowed := d
	narrowed.Constraints = "function body only, no schema or test changes"
	require.NoError(t, e.Adjust(narrowed))

	res, st, err = e.Preview(ctx, narrowed)
	require.NoError(t, err)
	assert.Equal(t, draft.StatusAligned, st)
	assert.Empty(t, res.Delta)
	assert.Contains(t, e.History(), LineAligned)
}

func TestScenarioClarifierNeverChains(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, testConfig(), sampler.NewRules())
	ctx := context.Background()

	d := draft.Draft{Text: "rewrite the greeting message"}
	res, st, err := e.Preview(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, draft.StatusNotAligned, st)
	require.True(t, strings.HasSuffix(res.Delta, "(yes/no)"), "delta is a yes/no question: %q", res.Delta)
	require.NotEmpty(t, e.Question())

	require.NoError(t, e.Adjust(d))
	amended, err := e.Answer(true)
	require.NoError(t, err)
	assert.Contains(t, amended.Constraints, "yes")
	assert.Empty(t, e.Question())

	// Confidence is still low (goal absent), but no second question.
	res, st, err = e.Preview(ctx, amended)
	require.NoError(t, err)
	assert.Equal(t, draft.StatusAligned, st)
	assert.Empty(t, res.Delta)
}

func TestAnswerWithoutPendingQuestion(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, testConfig(), &stubSampler{})
	_, err := e.Answer(true)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAdjustOnlyBetweenAttempts(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, testConfig(), &stubSampler{})
	ctx := context.Background()

	err := e.Adjust(alignedDraft())
	assert.ErrorIs(t, err, ErrInvalidTransition, "no attempt yet")

	_, _, err = e.Preview(ctx, alignedDraft())
	require.NoError(t, err)
	require.NoError(t, e.Adjust(alignedDraft()))

	_, _, err = e.Preview(ctx, alignedDraft())
	require.NoError(t, err)
	err = e.Adjust(alignedDraft())
	assert.ErrorIs(t, err, ErrInvalidTransition, "past the last attempt")
}

func TestSamplerFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	stub := &stubSampler{fn: func(draft.Draft) (sampler.Output, error) {
		return sampler.Output{}, errors.New("model exploded")
	}}
	e, _ := newTestEngine(t, testConfig(), stub)

	res, st, err := e.Preview(context.Background(), alignedDraft())
	require.NoError(t, err, "sampler failure is a status, not an engine error")
	assert.Equal(t, draft.StatusNotAligned, st)
	assert.Equal(t, DeltaUnsafe, res.Delta)
	assert.Equal(t, 1, stub.callCount())
}

func TestCommitSinkFailureKeepsState(t *testing.T) {
	t.Parallel()

	e, sink := newTestEngine(t, testConfig(), &stubSampler{})
	ctx := context.Background()

	d := alignedDraft()
	res, _, err := e.Preview(ctx, d)
	require.NoError(t, err)

	sink.setErr(errors.New("downstream offline"))
	_, err = e.Commit(ctx, d, res)
	require.Error(t, err)
	assert.Equal(t, 1, e.Attempts(), "state kept so commit can be retried")
	assert.NotEmpty(t, e.History())

	sink.setErr(nil)
	rec, err := e.Commit(ctx, d, res)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 0, e.Attempts())
}

func TestCommitRequiresAlignmentUnlessOverridden(t *testing.T) {
	t.Parallel()

	stub := &stubSampler{fn: func(draft.Draft) (sampler.Output, error) {
		return sampler.Output{Sample: "s", Essence: "e", Delta: "tone mismatch"}, nil
	}}
	e, sink := newTestEngine(t, testConfig(), stub)
	ctx := context.Background()

	d := alignedDraft()
	res, st, err := e.Preview(ctx, d)
	require.NoError(t, err)
	require.Equal(t, draft.StatusNotAligned, st)

	_, err = e.Commit(ctx, d, res)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, sink.count())

	rec, err := e.CommitOverride(ctx, d, res)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, "tone mismatch", rec.Result.Delta)
}

func TestCommitWithoutPreview(t *testing.T) {
	t.Parallel()

	e, sink := newTestEngine(t, testConfig(), &stubSampler{})

	rec, err := e.CommitOverride(context.Background(), alignedDraft(), draft.PreviewResult{})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.count())
	assert.Empty(t, rec.Result.Sample)
}

func TestEssenceOnlyIsDisplayPolicy(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, testConfig(), &stubSampler{})
	e.SetEssenceOnly(true)

	res, st, err := e.Preview(context.Background(), alignedDraft())
	require.NoError(t, err)
	assert.Equal(t, draft.StatusAligned, st)
	assert.Empty(t, res.Sample, "sample suppressed from display")
	assert.Equal(t, "essence", res.Essence)
}

func TestLadderCrossingsEscalateHistory(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	started := make(chan struct{})
	stub := &stubSampler{gate: gate, started: started}

	var rungs []ladder.Rung
	var mu sync.Mutex
	cfg := Config{
		Debounce: time.Millisecond,
		Thresholds: ladder.Thresholds{
			T1: 5 * time.Millisecond,
			T2: 10 * time.Millisecond,
			T3: 20 * time.Millisecond,
			T4: 40 * time.Millisecond,
		},
		OnRung: func(r ladder.Rung) {
			mu.Lock()
			rungs = append(rungs, r)
			mu.Unlock()
		},
	}
	e, _ := newTestEngine(t, cfg, stub)

	done := make(chan struct{})
	go func() {
		_, _, _ = e.Preview(context.Background(), alignedDraft())
		close(done)
	}()

	<-started
	time.Sleep(80 * time.Millisecond)
	close(gate)
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, rungs)
	for i := 1; i < len(rungs); i++ {
		assert.GreaterOrEqual(t, rungs[i].Level, rungs[i-1].Level, "ladder never regresses")
	}
	last := rungs[len(rungs)-1]
	assert.Equal(t, ladder.LevelDegraded, last.Level)
	assert.Contains(t, last.Choices, ladder.ChoiceCommitBlind)

	hist := e.History()
	assert.Contains(t, hist, "Glimpse 1…")
	assert.Contains(t, hist, "Glimpse 1… still trying…")
}

func TestDebounceDelaysNextSamplerCall(t *testing.T) {
	t.Parallel()

	var callTimes []time.Time
	var mu sync.Mutex
	stub := &stubSampler{fn: func(draft.Draft) (sampler.Output, error) {
		mu.Lock()
		callTimes = append(callTimes, time.Now())
		mu.Unlock()
		return sampler.Output{Essence: "e"}, nil
	}}
	e, _ := newTestEngine(t, Config{Debounce: 60 * time.Millisecond}, stub)
	ctx := context.Background()

	_, _, err := e.Preview(ctx, alignedDraft())
	require.NoError(t, err)

	edited := time.Now()
	require.NoError(t, e.Adjust(alignedDraft()))
	_, _, err = e.Preview(ctx, alignedDraft())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, callTimes, 2)
	assert.GreaterOrEqual(t, callTimes[1].Sub(edited), 55*time.Millisecond,
		"second call waits out the debounce window")
}

func TestInvalidDraftRejected(t *testing.T) {
	t.Parallel()

	stub := &stubSampler{}
	e, _ := newTestEngine(t, testConfig(), stub)

	_, _, err := e.Preview(context.Background(), draft.Draft{})
	assert.ErrorIs(t, err, ErrInvalidDraft)
	assert.Equal(t, 0, stub.callCount())
}
