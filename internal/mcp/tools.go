package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memoryd/memoryd/internal/model"
)

// instrument adapts a plain handler to the SDK's signature, recording
// invocation metrics and translating component errors into the structured
// kind-prefixed form both transports share.
func instrument[In, Out any](s *Server, name string, fn func(ctx context.Context, args In) (Out, error)) func(ctx context.Context, req *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		out, err := fn(ctx, args)
		s.metrics.observe(ctx, name, start, err)
		if err != nil {
			var zero Out
			return nil, zero, err
		}
		return nil, out, nil
	}
}

// conversationPayload is the wire form of a stored conversation.
type conversationPayload struct {
	ID         string         `json:"id" jsonschema:"Conversation ID"`
	ToolName   string         `json:"tool_name" jsonschema:"Originating tool"`
	ProjectID  string         `json:"project_id,omitempty" jsonschema:"Project ID if resolved"`
	Timestamp  time.Time      `json:"timestamp" jsonschema:"Creation time"`
	Content    string         `json:"content" jsonschema:"Stored content"`
	Tags       []string       `json:"tags,omitempty" jsonschema:"Tags"`
	Category   string         `json:"category,omitempty" jsonschema:"Analysis category"`
	Confidence float64        `json:"confidence,omitempty" jsonschema:"Analyzer confidence"`
	AutoStored bool           `json:"auto_stored" jsonschema:"Stored without user confirmation"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"Extension metadata"`
}

func toConversationPayload(c model.Conversation) conversationPayload {
	p := conversationPayload{
		ID:         c.ID,
		ToolName:   c.ToolName,
		Timestamp:  c.Timestamp,
		Content:    c.Content,
		Tags:       c.Tags,
		Category:   string(c.Metadata.AnalysisCategory),
		Confidence: c.Metadata.Confidence,
		AutoStored: c.Metadata.AutoStored,
		Metadata:   c.Metadata.Extra,
	}
	if c.ProjectID != nil {
		p.ProjectID = *c.ProjectID
	}
	return p
}

func toConversationPayloads(convs []model.Conversation) []conversationPayload {
	out := make([]conversationPayload, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationPayload(c))
	}
	return out
}
