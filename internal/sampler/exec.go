package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/metalagman/ainvoke/adk"
	"google.golang.org/adk/agent"
	adkrunner "google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"github.com/metalagman/glimpse/internal/draft"
)

// Exec runs a configured agent command as the predictor: the draft goes
// in as JSON, the preview comes back as JSON on stdout. Useful when the
// Sampler is itself a local agent CLI.
type Exec struct {
	cmd []string
}

// NewExec constructs the exec-backed sampler.
func NewExec(cfg Config) (*Exec, error) {
	if len(cfg.Cmd) == 0 {
		return nil, fmt.Errorf("exec sampler requires cmd")
	}
	return &Exec{cmd: cfg.Cmd}, nil
}

// Sample implements Sampler. Each call builds a fresh exec agent, so
// concurrent calls for different drafts never share process state.
func (e *Exec) Sample(ctx context.Context, d draft.Draft) (Output, error) {
	in, err := json.Marshal(d)
	if err != nil {
		return Output{}, fmt.Errorf("exec sampler: marshal draft: %w", err)
	}

	ag, err := adk.NewExecAgent(
		"glimpse-sampler",
		"Preflight preview sampler",
		e.cmd,
		adk.WithExecAgentPrompt(previewInstructions),
		adk.WithExecAgentStdout(io.Discard),
		adk.WithExecAgentStderr(io.Discard),
	)
	if err != nil {
		return Output{}, fmt.Errorf("exec sampler: create agent: %w", err)
	}

	raw, err := runOnce(ctx, ag, genai.NewContentFromText(string(in), genai.RoleUser))
	if err != nil {
		return Output{}, fmt.Errorf("exec sampler: %w", err)
	}
	return parseOutput(raw)
}

// runOnce drives one agent invocation under an in-memory session and
// returns the text of the last content event.
func runOnce(ctx context.Context, ag agent.Agent, msg *genai.Content) (string, error) {
	const appName = "glimpse"
	const userID = "glimpse-user"

	sessionService := session.InMemoryService()
	r, err := adkrunner.New(adkrunner.Config{
		AppName:        appName,
		Agent:          ag,
		SessionService: sessionService,
	})
	if err != nil {
		return "", fmt.Errorf("create runner: %w", err)
	}

	created, err := sessionService.Create(ctx, &session.CreateRequest{
		AppName: appName,
		UserID:  userID,
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	var last string
	for ev, runErr := range r.Run(ctx, userID, created.Session.ID(), msg, agent.RunConfig{}) {
		if runErr != nil {
			return "", runErr
		}
		if ev != nil && ev.Content != nil && len(ev.Content.Parts) > 0 {
			last = ev.Content.Parts[0].Text
		}
	}
	if last == "" {
		return "", fmt.Errorf("no output from sampler command")
	}
	return last, nil
}
