package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/metalagman/glimpse/internal/draft"
)

const (
	defaultGeminiModel = "gemini-2.0-flash"
	defaultAPIKeyEnv   = "GEMINI_API_KEY"
	defaultTimeout     = 60 * time.Second
)

const previewInstructions = `You are a preflight previewer. Given a draft and its anchors,
reply with strict JSON: {"sample": "<=3 lines illustrating the likely output",
"essence": "<=2 lines restating perceived intent and tone",
"delta": "one line naming a conflict between text and goal/constraints, empty if none"}.
If no goal is given, set delta to a single yes/no clarifying question instead.
Never perform the action described by the draft.`

// Gemini samples drafts with the genai SDK, requesting JSON output.
type Gemini struct {
	cli     *genai.Client
	model   string
	timeout time.Duration
}

// NewGemini constructs the gemini-backed sampler.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	keyEnv := cfg.APIKeyEnv
	if keyEnv == "" {
		keyEnv = defaultAPIKeyEnv
	}
	if strings.TrimSpace(os.Getenv(keyEnv)) == "" {
		return nil, fmt.Errorf("gemini sampler: %s is not set", keyEnv)
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini sampler: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gemini{cli: cli, model: model, timeout: timeout}, nil
}

// Sample implements Sampler.
func (g *Gemini) Sample(ctx context.Context, d draft.Draft) (Output, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	in, err := json.Marshal(d)
	if err != nil {
		return Output{}, fmt.Errorf("gemini sampler: marshal draft: %w", err)
	}
	full := previewInstructions + "\n\n[DRAFT JSON]\n" + string(in)

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return Output{}, fmt.Errorf("gemini sampler: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return Output{}, fmt.Errorf("gemini sampler: empty response")
	}
	return parseOutput(resp.Candidates[0].Content.Parts[0].Text)
}
