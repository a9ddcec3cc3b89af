package sampler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/glimpse/internal/draft"
)

func TestRulesDetectsTension(t *testing.T) {
	t.Parallel()

	out, err := NewRules().Sample(context.Background(), draft.Draft{
		Text:        "refactor parse_event for None safety",
		Goal:        "safe None handling",
		Constraints: "don't change return schema",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Delta)
	assert.Contains(t, out.Delta, "refactor")
	assert.NotEmpty(t, out.Essence)
}

func TestRulesAlignedWhenConstraintsNarrowed(t *testing.T) {
	t.Parallel()

	out, err := NewRules().Sample(context.Background(), draft.Draft{
		Text:        "refactor parse_event for None safety",
		Goal:        "safe None handling",
		Constraints: "function body only, no schema or test changes",
	})
	require.NoError(t, err)
	assert.Empty(t, out.Delta)
	assert.NotEmpty(t, out.Sample)
}

func TestRulesAsksSingleQuestionWithoutGoal(t *testing.T) {
	t.Parallel()

	out, err := NewRules().Sample(context.Background(), draft.Draft{
		Text: "rewrite the greeting message",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.Delta)
	assert.True(t, strings.HasSuffix(out.Delta, "(yes/no)"))
	assert.Equal(t, 1, strings.Count(out.Delta, "?"), "exactly one question")
}

func TestParseOutputToleratesFences(t *testing.T) {
	t.Parallel()

	out, err := parseOutput("```json\n{\"sample\":\"a\\nb\\nc\\nd\",\"essence\":\"e\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc", out.Sample, "sample clamped to three lines")
	assert.Equal(t, "e", out.Essence)
}

func TestParseOutputRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := parseOutput("not json at all")
	require.Error(t, err)

	_, err = parseOutput(`{"sample":"x"}`)
	require.Error(t, err, "essence is mandatory")
}

func TestNewSelectsByType(t *testing.T) {
	t.Parallel()

	s, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &Rules{}, s)

	_, err = New(context.Background(), Config{Type: "exec"})
	require.Error(t, err, "exec requires cmd")

	_, err = New(context.Background(), Config{Type: "nope"})
	require.Error(t, err)
}
