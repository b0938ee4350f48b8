package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memoryd/memoryd/internal/session"
)

type analyzeSessionInput struct {
	ConversationIDs []string `json:"conversation_ids,omitempty" jsonschema:"Conversations to analyze; empty uses the recent window"`
}

type createSessionSummaryInput struct {
	ConversationIDs []string `json:"conversation_ids" jsonschema:"required,Session member conversations"`
	ToolName        string   `json:"tool_name,omitempty" jsonschema:"Tool name for the summary memory"`
	Link            bool     `json:"link,omitempty" jsonschema:"Also create session_member/session_summary links"`
}

type createSessionSummaryOutput struct {
	SummaryID string            `json:"summary_id" jsonschema:"Stored summary conversation ID"`
	Analysis  *session.Analysis `json:"analysis" jsonschema:"The session analysis the summary was built from"`
	Linked    bool              `json:"linked" jsonschema:"Whether cross-links were created"`
}

type linkSessionInput struct {
	SummaryID string   `json:"summary_id" jsonschema:"required,Session summary conversation ID"`
	MemberIDs []string `json:"member_ids" jsonschema:"required,Member conversation IDs"`
}

type linkSessionOutput struct {
	Linked  bool `json:"linked" jsonschema:"True when links were created"`
	Members int  `json:"members" jsonschema:"Number of members linked"`
}

func (s *Server) registerSessionTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze_session",
		Description: "Cluster conversations into a session: themes, problem/solution pairs, value score",
	}, instrument(s, "analyze_session", func(ctx context.Context, args analyzeSessionInput) (*session.Analysis, error) {
		return s.svc.AnalyzeSession(ctx, args.ConversationIDs)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "create_session_summary",
		Description: "Analyze a session and store its summary as a new memory",
	}, instrument(s, "create_session_summary", func(ctx context.Context, args createSessionSummaryInput) (createSessionSummaryOutput, error) {
		analysis, err := s.svc.AnalyzeSession(ctx, args.ConversationIDs)
		if err != nil {
			return createSessionSummaryOutput{}, err
		}
		conv, err := s.svc.CreateSessionSummary(ctx, analysis, args.ToolName)
		if err != nil {
			return createSessionSummaryOutput{}, err
		}
		out := createSessionSummaryOutput{SummaryID: conv.ID, Analysis: analysis}
		if args.Link {
			if err := s.svc.LinkSessionMemories(ctx, conv.ID, analysis.ConversationIDs); err != nil {
				return createSessionSummaryOutput{}, err
			}
			out.Linked = true
		}
		return out, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "link_session_memories",
		Description: "Create bidirectional session_member/session_summary links",
	}, instrument(s, "link_session_memories", func(ctx context.Context, args linkSessionInput) (linkSessionOutput, error) {
		if err := s.svc.LinkSessionMemories(ctx, args.SummaryID, args.MemberIDs); err != nil {
			return linkSessionOutput{}, err
		}
		return linkSessionOutput{Linked: true, Members: len(args.MemberIDs)}, nil
	}))
}
