// Package ladder maps elapsed wait time to what the caller is shown and
// offered while a preview call is in flight. The mapping is pure: the
// thresholds are cues, never cutoffs, and crossing one never cancels the
// in-flight call by itself.
package ladder

import (
	"fmt"
	"time"
)

// Default thresholds. All soft.
const (
	DefaultT1 = 100 * time.Millisecond
	DefaultT2 = 300 * time.Millisecond
	DefaultT3 = 800 * time.Millisecond
	DefaultT4 = 2000 * time.Millisecond
)

// Choice is an option offered to the user at a rung.
type Choice string

const (
	// ChoiceCancel abandons the call without consuming an attempt.
	ChoiceCancel Choice = "cancel"
	// ChoiceKeepWaiting leaves the call running.
	ChoiceKeepWaiting Choice = "keep_waiting"
	// ChoiceRedial resets the negotiation without consuming an attempt.
	ChoiceRedial Choice = "redial"
	// ChoiceEssenceOnly switches this attempt to essence-only display.
	ChoiceEssenceOnly Choice = "essence_only"
	// ChoiceCommitBlind commits without a preview. Always requires an
	// explicit confirmation distinct from a normal commit.
	ChoiceCommitBlind Choice = "commit_without_preview"
)

// Level orders rungs by transparency. Higher levels only ever add
// information and choices.
type Level int

const (
	LevelQuiet Level = iota
	LevelGlimpse
	LevelReassure
	LevelOffer
	LevelDegraded
)

// Rung is what the ladder shows and offers at one point in time.
type Rung struct {
	Level   Level
	Status  string
	Choices []Choice
}

// Thresholds holds the four soft cue points.
type Thresholds struct {
	T1 time.Duration
	T2 time.Duration
	T3 time.Duration
	T4 time.Duration
}

// Defaults returns the stock thresholds.
func Defaults() Thresholds {
	return Thresholds{T1: DefaultT1, T2: DefaultT2, T3: DefaultT3, T4: DefaultT4}
}

// Rung returns the rung for the given attempt number (1-based) and
// elapsed time since the Sampler call started.
func (t Thresholds) Rung(attempt int, elapsed time.Duration) Rung {
	glimpse := fmt.Sprintf("Glimpse %d…", attempt)

	switch {
	case elapsed < t.T1:
		return Rung{Level: LevelQuiet}
	case elapsed < t.T2:
		return Rung{Level: LevelGlimpse, Status: glimpse}
	case elapsed < t.T3:
		return Rung{
			Level:   LevelReassure,
			Status:  glimpse + " making sure it matches your intent…",
			Choices: []Choice{ChoiceCancel, ChoiceKeepWaiting},
		}
	case elapsed < t.T4:
		return Rung{
			Level:   LevelOffer,
			Status:  glimpse + " making sure it matches your intent…",
			Choices: []Choice{ChoiceKeepWaiting, ChoiceRedial, ChoiceEssenceOnly, ChoiceCommitBlind},
		}
	default:
		return Rung{
			Level:   LevelDegraded,
			Status:  glimpse + " still trying…",
			Choices: []Choice{ChoiceKeepWaiting, ChoiceRedial, ChoiceEssenceOnly, ChoiceCommitBlind},
		}
	}
}

// Next returns the earliest threshold strictly after elapsed, and false
// once the ladder is exhausted. Used to schedule crossing notifications.
func (t Thresholds) Next(elapsed time.Duration) (time.Duration, bool) {
	for _, th := range []time.Duration{t.T1, t.T2, t.T3, t.T4} {
		if elapsed < th {
			return th, true
		}
	}
	return 0, false
}
