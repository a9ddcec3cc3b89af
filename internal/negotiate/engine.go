// Package negotiate implements the preflight negotiation engine: a
// bounded, side-effect-free checkpoint between a draft and the
// irreversible action it would trigger. One Engine instance owns one
// logical negotiation; concurrent negotiations each get their own.
package negotiate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/glimpse/internal/draft"
	"github.com/metalagman/glimpse/internal/ladder"
	"github.com/metalagman/glimpse/internal/privacy"
	"github.com/metalagman/glimpse/internal/sampler"
)

// Status lines are part of the engine contract; callers display them
// verbatim and tests assert on them.
const (
	LineAligned    = "Aligned. Ready to commit."
	LineNotAligned = "Not aligned yet. One adjustment suggested."
	LineRedial     = "Clean reset. Same channel. Let's try again."
	LineStale      = "Stale result (won't count). Re-glimpse?"
)

// DeltaUnsafe is surfaced when the Sampler fails; the engine never
// retries on its own.
const DeltaUnsafe = "Cannot form a safe preview"

const staleCacheSize = 8

// Config holds the recognized engine options.
type Config struct {
	Thresholds  ladder.Thresholds
	Debounce    time.Duration
	EssenceOnly bool
	MaxAttempts int

	// OnRung, when set, is called as threshold crossings are observed
	// during an in-flight preview. Crossings never cancel the call.
	OnRung func(ladder.Rung)
}

func (c Config) withDefaults() Config {
	zero := ladder.Thresholds{}
	if c.Thresholds == zero {
		c.Thresholds = ladder.Defaults()
	}
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	return c
}

// Engine orchestrates at most MaxAttempts Sampler calls per draft,
// reports latency transparently via the ladder, and gates the only
// write path behind the privacy guard.
type Engine struct {
	cfg     Config
	sampler sampler.Sampler
	guard   *privacy.Guard

	mu          sync.Mutex
	attempts    int
	history     []string
	essenceOnly bool
	gen         uint64
	working     draft.Draft
	lastEdit    time.Time
	lastStatus  draft.AttemptStatus
	clarified   bool
	question    string
	inflight    bool
	started     time.Time
	stale       *lru.Cache[uint64, draft.PreviewResult]
}

// New constructs an engine around the injected sampler and guard.
func New(cfg Config, s sampler.Sampler, g *privacy.Guard) *Engine {
	cfg = cfg.withDefaults()
	cache, _ := lru.New[uint64, draft.PreviewResult](staleCacheSize)
	return &Engine{
		cfg:         cfg,
		sampler:     s,
		guard:       g,
		essenceOnly: cfg.EssenceOnly,
		stale:       cache,
	}
}

type sampleReply struct {
	out sampler.Output
	err error
}

// Preview runs one negotiation attempt for d. It blocks until the
// Sampler answers or ctx is cancelled; there is no hard timeout, the
// ladder only changes what is shown and offered along the way. A
// cancelled ctx refunds the attempt (the ladder's "Cancel" choice).
func (e *Engine) Preview(ctx context.Context, d draft.Draft) (draft.PreviewResult, draft.AttemptStatus, error) {
	if err := d.Validate(); err != nil {
		return draft.PreviewResult{}, "", fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}

	if status, done := e.capCheck(); done {
		return draft.PreviewResult{}, status, nil
	}

	if err := e.debounce(ctx); err != nil {
		return draft.PreviewResult{}, "", err
	}

	e.mu.Lock()
	e.attempts++
	attempt := e.attempts
	e.gen++
	gen := e.gen
	e.working = d
	e.history = append(e.history, fmt.Sprintf("Glimpse %d…", attempt))
	e.inflight = true
	e.started = time.Now()
	e.mu.Unlock()

	log.Debug().Uint64("gen", gen).Int("attempt", attempt).Msg("preview started")

	start := time.Now()
	replies := make(chan sampleReply, 1)
	go func() {
		out, err := e.sampler.Sample(ctx, d)
		replies <- sampleReply{out: out, err: err}
	}()

	reply, err := e.await(ctx, attempt, start, replies)
	elapsed := time.Since(start)
	if err != nil {
		// Caller abandoned the wait: refund the attempt and advance the
		// generation so a late result lands stale.
		e.mu.Lock()
		if e.attempts > 0 {
			e.attempts--
		}
		e.gen++
		e.inflight = false
		e.mu.Unlock()
		return draft.PreviewResult{}, draft.StatusTrying, err
	}

	return e.classify(d, gen, elapsed, reply)
}

// capCheck enforces the attempt bound: past the cap, the Sampler is
// never invoked and the negotiation resets for a fresh start.
func (e *Engine) capCheck() (draft.AttemptStatus, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attempts < e.cfg.MaxAttempts {
		return "", false
	}
	e.resetLocked()
	return draft.StatusRedial, true
}

// debounce waits out the configured window of input inactivity after an
// edit so a typing burst does not become a storm of Sampler calls.
func (e *Engine) debounce(ctx context.Context) error {
	for {
		e.mu.Lock()
		var wait time.Duration
		if !e.lastEdit.IsZero() {
			wait = e.cfg.Debounce - time.Since(e.lastEdit)
		}
		e.mu.Unlock()
		if wait <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// await blocks on the sampler reply while surfacing ladder crossings on
// the same timeline. Crossing a threshold never cancels the call.
func (e *Engine) await(ctx context.Context, attempt int, start time.Time, replies <-chan sampleReply) (sampleReply, error) {
	// The glimpse line is already in the history at call start; only
	// escalations beyond it are noted.
	lastLevel := ladder.LevelGlimpse
	for {
		var crossing <-chan time.Time
		if next, ok := e.cfg.Thresholds.Next(time.Since(start)); ok {
			crossing = time.After(next - time.Since(start))
		}
		select {
		case reply := <-replies:
			return reply, nil
		case <-ctx.Done():
			return sampleReply{}, ctx.Err()
		case <-crossing:
			rung := e.cfg.Thresholds.Rung(attempt, time.Since(start))
			if rung.Level > lastLevel {
				lastLevel = rung.Level
				e.noteRung(rung)
			}
		}
	}
}

func (e *Engine) noteRung(rung ladder.Rung) {
	e.mu.Lock()
	if rung.Status != "" {
		e.history = append(e.history, rung.Status)
	}
	e.mu.Unlock()
	if e.cfg.OnRung != nil {
		e.cfg.OnRung(rung)
	}
}

// classify attributes the reply to the attempt, or parks it as stale
// when the generation moved on while the call was in flight.
func (e *Engine) classify(d draft.Draft, gen uint64, elapsed time.Duration, reply sampleReply) (draft.PreviewResult, draft.AttemptStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inflight = false

	if gen != e.gen {
		if reply.err == nil {
			result := resultFrom(reply.out, gen, elapsed)
			e.stale.Add(gen, result)
		}
		if e.attempts > 0 {
			e.attempts--
		}
		e.history = append(e.history, LineStale)
		e.lastStatus = draft.StatusStale
		log.Debug().Uint64("gen", gen).Uint64("current", e.gen).Msg("preview result stale")
		// Hidden by default: the stale payload is only available through
		// StaleResult on explicit request.
		return draft.PreviewResult{Generation: gen, Elapsed: elapsed}, draft.StatusStale, nil
	}

	var result draft.PreviewResult
	if reply.err != nil {
		log.Warn().Err(reply.err).Uint64("gen", gen).Msg("sampler failed")
		result = draft.PreviewResult{Delta: DeltaUnsafe, Elapsed: elapsed, Generation: gen}
	} else {
		out := reply.out
		if !d.HasGoal() && strings.TrimSpace(out.Delta) != "" {
			if e.clarified {
				// One clarifying question per negotiation; never chained.
				out.Delta = ""
			} else {
				e.clarified = true
				e.question = out.Delta
			}
		}
		result = resultFrom(out, gen, elapsed)
	}

	status := draft.StatusNotAligned
	line := LineNotAligned
	if result.Aligned() {
		status = draft.StatusAligned
		line = LineAligned
	}
	e.history = append(e.history, line)
	e.lastStatus = status

	log.Debug().
		Uint64("gen", gen).
		Int("attempt", e.attempts).
		Str("status", string(status)).
		Dur("elapsed", elapsed).
		Msg("preview finished")

	display := result
	if e.essenceOnly {
		display = result.EssenceOnly()
	}
	return display, status, nil
}

func resultFrom(out sampler.Output, gen uint64, elapsed time.Duration) draft.PreviewResult {
	return draft.PreviewResult{
		Sample:     out.Sample,
		Essence:    out.Essence,
		Delta:      out.Delta,
		Elapsed:    elapsed,
		Generation: gen,
	}
}

// Adjust replaces the working draft between attempts. It does not reset
// the attempt count; if a Sampler call is still in flight for the
// previous draft, its relevance is cancelled and its eventual result
// lands stale without consuming the attempt.
func (e *Engine) Adjust(d draft.Draft) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.attempts < 1 || e.attempts >= e.cfg.MaxAttempts {
		return fmt.Errorf("%w: adjust is only allowed between attempts (attempt %d of %d)",
			ErrInvalidTransition, e.attempts, e.cfg.MaxAttempts)
	}
	e.gen++
	e.working = d
	e.lastEdit = time.Now()
	log.Debug().Uint64("gen", e.gen).Msg("draft adjusted")
	return nil
}

// Answer resolves a pending clarifying question by mechanically
// appending the yes/no answer to the working draft's constraints. It
// returns the amended draft for the next Preview call.
func (e *Engine) Answer(yes bool) (draft.Draft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.question == "" {
		return draft.Draft{}, fmt.Errorf("%w: no clarifying question is pending", ErrInvalidTransition)
	}
	answer := "no"
	if yes {
		answer = "yes"
	}
	q := strings.TrimSuffix(strings.TrimSpace(e.question), "(yes/no)")
	e.working = e.working.WithConstraint(strings.TrimSpace(q) + " — " + answer)
	e.question = ""
	e.lastEdit = time.Now()
	return e.working, nil
}

// Working returns the engine's current working draft.
func (e *Engine) Working() draft.Draft {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.working
}

// Commit persists the accepted result through the privacy guard. The
// result must belong to the current generation and the last attempt must
// have been aligned; anything else is an invalid transition (use
// CommitOverride for a deliberate override). On sink failure the
// negotiation state is kept so commit can be retried without a fresh
// preview.
func (e *Engine) Commit(ctx context.Context, d draft.Draft, r draft.PreviewResult) (draft.CommitRecord, error) {
	e.mu.Lock()
	if r.Generation != e.gen {
		e.mu.Unlock()
		return draft.CommitRecord{}, fmt.Errorf("%w: result is stale", ErrInvalidTransition)
	}
	if e.lastStatus != draft.StatusAligned {
		e.mu.Unlock()
		return draft.CommitRecord{}, fmt.Errorf("%w: last status is %q, not aligned", ErrInvalidTransition, e.lastStatus)
	}
	e.mu.Unlock()
	return e.commit(ctx, d, r)
}

// CommitOverride persists despite a not_aligned or stale status, or with
// no preview at all (the ladder's "commit without preview"). The
// distinct method is the explicit confirmation step.
func (e *Engine) CommitOverride(ctx context.Context, d draft.Draft, r draft.PreviewResult) (draft.CommitRecord, error) {
	if err := d.Validate(); err != nil {
		return draft.CommitRecord{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return e.commit(ctx, d, r)
}

func (e *Engine) commit(ctx context.Context, d draft.Draft, r draft.PreviewResult) (draft.CommitRecord, error) {
	rec, err := e.guard.Commit(ctx, d, r)
	if err != nil {
		// State intentionally kept: the user can retry the commit
		// without re-running the preview.
		return draft.CommitRecord{}, err
	}
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()
	return rec, nil
}

// Redial resets the negotiation: attempt count to zero, history cleared,
// any in-flight call's relevance discarded. Always succeeds.
func (e *Engine) Redial() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	return LineRedial
}

func (e *Engine) resetLocked() {
	e.attempts = 0
	e.history = nil
	e.gen++
	e.clarified = false
	e.question = ""
	e.essenceOnly = e.cfg.EssenceOnly
	e.inflight = false
	e.lastStatus = ""
	e.lastEdit = time.Time{}
}

// SetEssenceOnly switches the display policy for subsequent results. The
// Sampler still computes the full output; this only controls what is
// shown.
func (e *Engine) SetEssenceOnly(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.essenceOnly = on
}

// Attempts returns how many attempts the current negotiation has used.
func (e *Engine) Attempts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts
}

// History returns a copy of the append-only status history.
func (e *Engine) History() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.history))
	copy(out, e.history)
	return out
}

// Question returns the pending clarifying question, if any.
func (e *Engine) Question() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.question
}

// Rung samples the latency ladder against the in-flight call, if any.
func (e *Engine) Rung() ladder.Rung {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.inflight {
		return ladder.Rung{}
	}
	return e.cfg.Thresholds.Rung(e.attempts, time.Since(e.started))
}

// StaleResult reveals a parked stale result on explicit request. The
// recommended path remains a fresh preview of the current draft.
func (e *Engine) StaleResult(gen uint64) (draft.PreviewResult, bool) {
	return e.stale.Get(gen)
}
