// Package sampler defines the predictor contract consumed by the
// negotiation engine, and the adapters that satisfy it. The engine only
// depends on the timing and output shape of a Sampler; anything from a
// hosted model to a keyword heuristic can sit behind the interface.
package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/metalagman/glimpse/internal/draft"
)

// Output is the raw shape a Sampler produces for one draft. The engine
// owns elapsed-time measurement and status classification.
type Output struct {
	// Sample illustrates the likely output, at most three lines.
	Sample string `json:"sample"`
	// Essence restates the perceived intent, at most two lines.
	Essence string `json:"essence"`
	// Delta names a conflict between the text and its anchors, or asks a
	// single yes/no clarifying question when the goal anchor is absent.
	Delta string `json:"delta,omitempty"`
}

// Sampler produces a preview for a draft. Implementations must be safe
// to call concurrently for different drafts, must not mutate the draft,
// and may complete after the caller has logically cancelled; the engine
// discards late results by generation id.
type Sampler interface {
	Sample(ctx context.Context, d draft.Draft) (Output, error)
}

// Config selects and parameterizes a sampler implementation.
type Config struct {
	// Type is one of "rules", "gemini", "exec".
	Type string `json:"type" mapstructure:"type"`

	// Model and APIKeyEnv configure the gemini sampler.
	Model     string `json:"model,omitempty"       mapstructure:"model"`
	APIKeyEnv string `json:"api_key_env,omitempty" mapstructure:"api_key_env"`

	// Cmd configures the exec sampler.
	Cmd []string `json:"cmd,omitempty" mapstructure:"cmd"`

	// Timeout bounds a single call for remote-backed samplers.
	Timeout time.Duration `json:"timeout,omitempty" mapstructure:"timeout"`
}

// New constructs a sampler for the given config.
func New(ctx context.Context, cfg Config) (Sampler, error) {
	switch cfg.Type {
	case "", "rules":
		return NewRules(), nil
	case "gemini":
		return NewGemini(ctx, cfg)
	case "exec":
		return NewExec(cfg)
	default:
		return nil, fmt.Errorf("unknown sampler type %q", cfg.Type)
	}
}

// parseOutput decodes a model response into Output, tolerating fenced
// JSON, and clamps the fields to their line limits.
func parseOutput(raw string) (Output, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out Output
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return Output{}, fmt.Errorf("malformed sampler output: %w", err)
	}
	if strings.TrimSpace(out.Essence) == "" {
		return Output{}, fmt.Errorf("malformed sampler output: essence is required")
	}
	return out.clamp(), nil
}

func (o Output) clamp() Output {
	o.Sample = clampLines(o.Sample, 3)
	o.Essence = clampLines(o.Essence, 2)
	o.Delta = clampLines(o.Delta, 1)
	return o
}

func clampLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(strings.Join(lines[:n], "\n"))
}
