package sampler

import (
	"context"
	"fmt"
	"strings"

	"github.com/metalagman/glimpse/internal/draft"
)

// Rules is a deterministic offline sampler. It detects the common
// "change it" vs "keep it" tension between a draft's text and its
// anchors with keyword rules, and asks a clarifying question when the
// goal anchor is missing. It is the default when no model is configured
// and the reference behavior for tests.
type Rules struct{}

// NewRules returns the rule-based sampler.
func NewRules() *Rules {
	return &Rules{}
}

var changeMarkers = []string{
	"refactor", "rewrite", "rework", "rename", "restructure", "replace", "redesign",
}

var preserveMarkers = []string{
	"don't change", "do not change", "no change", "keep", "preserve", "unchanged", "leave",
}

// Sample implements Sampler.
func (r *Rules) Sample(_ context.Context, d draft.Draft) (Output, error) {
	out := Output{
		Sample:  sampleFor(d),
		Essence: essenceFor(d),
	}

	if !d.HasGoal() {
		out.Delta = clarifyingQuestion(d)
		return out.clamp(), nil
	}
	if verb, marker, ok := tension(d); ok {
		out.Delta = fmt.Sprintf("%q in the text pulls against %q in your anchors", verb, marker)
	}
	return out.clamp(), nil
}

// tension reports the first change-marker in the text that collides with
// a preserve-marker in the anchors.
func tension(d draft.Draft) (string, string, bool) {
	text := strings.ToLower(d.Text)
	anchors := strings.ToLower(d.Goal + " " + d.Constraints)
	for _, verb := range changeMarkers {
		if !strings.Contains(text, verb) {
			continue
		}
		for _, marker := range preserveMarkers {
			if strings.Contains(anchors, marker) {
				return verb, marker, true
			}
		}
	}
	return "", "", false
}

func sampleFor(d draft.Draft) string {
	first := strings.SplitN(strings.TrimSpace(d.Text), "\n", 2)[0]
	lines := []string{"Likely output:", "  " + first}
	if strings.TrimSpace(d.Constraints) != "" {
		lines = append(lines, "  within: "+strings.TrimSpace(d.Constraints))
	}
	return strings.Join(lines, "\n")
}

func essenceFor(d draft.Draft) string {
	if d.HasGoal() {
		return fmt.Sprintf("You want: %s.", strings.TrimSpace(d.Goal))
	}
	return "Intent unclear; taking the text at face value."
}

func clarifyingQuestion(d draft.Draft) string {
	text := strings.ToLower(d.Text)
	for _, verb := range changeMarkers {
		if strings.Contains(text, verb) {
			return fmt.Sprintf("Should the %s keep current behavior observably unchanged? (yes/no)", verb)
		}
	}
	return "Is a minimal, conservative interpretation of the text what you want? (yes/no)"
}
