package main

import (
	"context"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/metalagman/glimpse/internal/draft"
	"github.com/metalagman/glimpse/internal/negotiate"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mcp",
		Short:        "Serve the negotiation engine as MCP tools over stdio",
		Long:         "Expose preview, adjust, answer, commit and redial as MCP tools so an LLM pipeline can preflight its own drafts. One engine instance serves the one connected client.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, closeFn, err := newEngine(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			server := mcp.NewServer(&mcp.Implementation{Name: "glimpse", Version: "0.1.0"}, nil)
			registerTools(server, engine)
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
	return cmd
}

type draftArgs struct {
	Text        string `json:"text" jsonschema:"the draft text"`
	Goal        string `json:"goal,omitempty" jsonschema:"optional goal anchor"`
	Constraints string `json:"constraints,omitempty" jsonschema:"optional constraints anchor"`
}

func (a draftArgs) draft() draft.Draft {
	return draft.Draft{Text: a.Text, Goal: a.Goal, Constraints: a.Constraints}
}

type previewReply struct {
	Status     string `json:"status"`
	Sample     string `json:"sample,omitempty"`
	Essence    string `json:"essence,omitempty"`
	Delta      string `json:"delta,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Generation uint64 `json:"generation"`
}

type answerArgs struct {
	Yes bool `json:"yes" jsonschema:"answer to the pending clarifying question"`
}

type commitArgs struct {
	draftArgs
	Override bool `json:"override,omitempty" jsonschema:"explicitly commit a not-aligned or unseen result"`
}

type commitReply struct {
	CommitID    string    `json:"commit_id"`
	CommittedAt time.Time `json:"committed_at"`
}

type lineReply struct {
	Line string `json:"line"`
}

type historyReply struct {
	History []string `json:"history"`
}

type draftReply struct {
	Text        string `json:"text"`
	Goal        string `json:"goal,omitempty"`
	Constraints string `json:"constraints,omitempty"`
}

// mcpSession pairs the engine with the last previewed result so the
// commit tool can hand it back without the client re-sending payloads.
type mcpSession struct {
	mu     sync.Mutex
	engine *negotiate.Engine
	last   draft.PreviewResult
	draft  draft.Draft
}

func registerTools(server *mcp.Server, engine *negotiate.Engine) {
	sess := &mcpSession{engine: engine}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview",
		Description: "Preview the likely outcome of a draft. Consumes one of two attempts; no side effects.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args draftArgs) (*mcp.CallToolResult, previewReply, error) {
		res, st, err := engine.Preview(ctx, args.draft())
		if err != nil {
			return nil, previewReply{}, err
		}
		sess.mu.Lock()
		sess.last = res
		sess.draft = args.draft()
		sess.mu.Unlock()
		return nil, previewReply{
			Status:     string(st),
			Sample:     res.Sample,
			Essence:    res.Essence,
			Delta:      res.Delta,
			ElapsedMS:  res.Elapsed.Milliseconds(),
			Generation: res.Generation,
		}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "adjust",
		Description: "Replace the working draft between attempts. Cancels the relevance of any in-flight preview.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args draftArgs) (*mcp.CallToolResult, lineReply, error) {
		if err := engine.Adjust(args.draft()); err != nil {
			return nil, lineReply{}, err
		}
		return nil, lineReply{Line: "adjusted"}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "answer",
		Description: "Answer the pending yes/no clarifying question; the answer is appended to the draft's constraints.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, args answerArgs) (*mcp.CallToolResult, draftReply, error) {
		amended, err := engine.Answer(args.Yes)
		if err != nil {
			return nil, draftReply{}, err
		}
		return nil, draftReply{Text: amended.Text, Goal: amended.Goal, Constraints: amended.Constraints}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "commit",
		Description: "Commit the last previewed result. Requires alignment unless override is set.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, args commitArgs) (*mcp.CallToolResult, commitReply, error) {
		sess.mu.Lock()
		d, res := sess.draft, sess.last
		sess.mu.Unlock()
		if args.Text != "" {
			d = args.draft()
		}
		var rec draft.CommitRecord
		var err error
		if args.Override {
			rec, err = engine.CommitOverride(ctx, d, res)
		} else {
			rec, err = engine.Commit(ctx, d, res)
		}
		if err != nil {
			return nil, commitReply{}, err
		}
		return nil, commitReply{CommitID: rec.ID, CommittedAt: rec.CommittedAt}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "redial",
		Description: "Reset the negotiation: attempt counter to zero, history cleared.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, lineReply, error) {
		return nil, lineReply{Line: engine.Redial()}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "history",
		Description: "Return the append-only status history of the current negotiation.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, historyReply, error) {
		return nil, historyReply{History: engine.History()}, nil
	})
}
