// Package draft defines the value types that flow through a negotiation.
package draft

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Draft is the unit of input being previewed before commit. Immutable;
// engine operations always take and return copies.
type Draft struct {
	Text        string `json:"text"                  yaml:"text"`
	Goal        string `json:"goal,omitempty"        yaml:"goal,omitempty"`
	Constraints string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Validate checks the Draft invariant: Text must be non-empty. Goal and
// Constraints may be absent; an absent Goal signals low confidence and
// triggers the clarifier path.
func (d Draft) Validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("draft text is required")
	}
	return nil
}

// HasGoal reports whether the goal anchor is present.
func (d Draft) HasGoal() bool {
	return strings.TrimSpace(d.Goal) != ""
}

// WithConstraint returns a copy of the draft with line appended to the
// constraints anchor.
func (d Draft) WithConstraint(line string) Draft {
	line = strings.TrimSpace(line)
	if line == "" {
		return d
	}
	if strings.TrimSpace(d.Constraints) == "" {
		d.Constraints = line
	} else {
		d.Constraints = d.Constraints + "; " + line
	}
	return d
}

// PreviewResult is the outcome of a single Sampler invocation.
type PreviewResult struct {
	// Sample illustrates the likely output, at most three lines.
	Sample string `json:"sample,omitempty" yaml:"sample,omitempty"`
	// Essence restates the perceived intent and tone, at most two lines.
	Essence string `json:"essence" yaml:"essence"`
	// Delta names a detected conflict between the text and its anchors,
	// or carries a single yes/no clarifying question when confidence is
	// low. Empty means aligned.
	Delta string `json:"delta,omitempty" yaml:"delta,omitempty"`
	// Elapsed is the wall-clock duration of the Sampler call.
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	// Generation identifies the Sampler invocation that produced this
	// result. Results from a superseded generation are stale.
	Generation uint64 `json:"generation" yaml:"generation"`
}

// Aligned reports whether the result carries no delta.
func (r PreviewResult) Aligned() bool {
	return strings.TrimSpace(r.Delta) == ""
}

// EssenceOnly returns a display copy with the sample cleared.
func (r PreviewResult) EssenceOnly() PreviewResult {
	r.Sample = ""
	return r
}

// AttemptStatus is the outcome classification of one engine operation.
type AttemptStatus string

const (
	StatusTrying     AttemptStatus = "trying"
	StatusAligned    AttemptStatus = "aligned"
	StatusNotAligned AttemptStatus = "not_aligned"
	StatusStale      AttemptStatus = "stale"
	StatusRedial     AttemptStatus = "redial"
)

// Terminal reports whether the status ends the current attempt.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusAligned, StatusNotAligned, StatusStale:
		return true
	}
	return false
}

// CommitRecord is the only value permitted to cross into persistent
// storage: the accepted draft, the preview the user saw, and the commit
// time. Everything upstream of commit is ephemeral.
type CommitRecord struct {
	ID          string        `json:"id"          yaml:"id"`
	Draft       Draft         `json:"draft"       yaml:"draft"`
	Result      PreviewResult `json:"result"      yaml:"result"`
	CommittedAt time.Time     `json:"committed_at" yaml:"committed_at"`
}

// NewCommitRecord builds a record with a content-derived id so that an
// identical retry maps to the same row at the sink.
func NewCommitRecord(d Draft, r PreviewResult, at time.Time) CommitRecord {
	at = at.UTC().Truncate(time.Second)
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%d",
		d.Text, d.Goal, d.Constraints, r.Sample, r.Essence, r.Delta, at.Unix())
	return CommitRecord{
		ID:          hex.EncodeToString(h.Sum(nil))[:16],
		Draft:       d,
		Result:      r,
		CommittedAt: at,
	}
}
