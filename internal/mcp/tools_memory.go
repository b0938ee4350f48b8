package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memoryd/memoryd/internal/services"
)

type storeContextInput struct {
	Content   string         `json:"content" jsonschema:"required,Content to store"`
	ToolName  string         `json:"tool_name" jsonschema:"required,Originating tool name"`
	ProjectID string         `json:"project_id,omitempty" jsonschema:"Project to attach the memory to"`
	Metadata  map[string]any `json:"metadata,omitempty" jsonschema:"Extension metadata preserved verbatim"`
	Tags      []string       `json:"tags,omitempty" jsonschema:"Tags to attach"`
}

type storeOutcomeOutput struct {
	Outcome        string  `json:"outcome" jsonschema:"stored | merged | skipped_duplicate | suggested | no_action"`
	ConversationID string  `json:"conversation_id,omitempty" jsonschema:"Stored or deduplicated conversation ID"`
	SuggestionID   string  `json:"suggestion_id,omitempty" jsonschema:"Pending suggestion ID when suggested"`
	Reason         string  `json:"reason,omitempty" jsonschema:"Why this outcome was chosen"`
	Confidence     float64 `json:"confidence,omitempty" jsonschema:"Analyzer confidence"`
	Category       string  `json:"category,omitempty" jsonschema:"Analysis category"`
}

func toStoreOutcome(r *services.StoreResult) storeOutcomeOutput {
	return storeOutcomeOutput{
		Outcome:        string(r.Outcome),
		ConversationID: r.ConversationID,
		SuggestionID:   r.SuggestionID,
		Reason:         r.Reason,
		Confidence:     r.Confidence,
		Category:       r.Category,
	}
}

type searchMemoryInput struct {
	Query          string  `json:"query" jsonschema:"required,Search query"`
	Limit          int     `json:"limit,omitempty" jsonschema:"Maximum results (default 10)"`
	SearchType     string  `json:"search_type,omitempty" jsonschema:"hybrid (default) | semantic | keyword"`
	Category       string  `json:"category,omitempty" jsonschema:"Restrict to one analysis category"`
	AutoStoredOnly bool    `json:"auto_stored_only,omitempty" jsonschema:"Only auto-stored memories"`
	MinConfidence  float64 `json:"min_confidence,omitempty" jsonschema:"Confidence floor"`
	ProjectID      string  `json:"project_id,omitempty" jsonschema:"Restrict to one project"`
	ToolName       string  `json:"tool_name,omitempty" jsonschema:"Restrict to one tool"`
}

type searchMemoryOutput struct {
	Results []services.MemoryResult `json:"results" jsonschema:"Ranked search hits"`
	Count   int                     `json:"count" jsonschema:"Number of hits returned"`
}

type historyInput struct {
	ToolName string `json:"tool_name" jsonschema:"required,Tool to fetch history for"`
	Hours    int    `json:"hours,omitempty" jsonschema:"Look-back window in hours (default 24)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results"`
}

type browseRecentInput struct {
	Hours      int    `json:"hours,omitempty" jsonschema:"Look-back window in hours (default 24)"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum results"`
	ToolFilter string `json:"tool_filter,omitempty" jsonschema:"Restrict to one tool"`
}

type browseCategoryInput struct {
	Category string `json:"category" jsonschema:"required,preference | solution | project_context | decision | manual"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results"`
}

type conversationListOutput struct {
	Conversations []conversationPayload `json:"conversations" jsonschema:"Matching conversations"`
	Count         int                   `json:"count" jsonschema:"Number returned"`
}

type findRelatedInput struct {
	MemoryID string `json:"memory_id" jsonschema:"required,Seed memory ID"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum results (default 5)"`
}

type enhancedContextInput struct {
	Query      string   `json:"query" jsonschema:"required,Search query"`
	Categories []string `json:"categories,omitempty" jsonschema:"Categories to include; empty means all"`
	ProjectID  string   `json:"project_id,omitempty" jsonschema:"Restrict to one project"`
	Limit      int      `json:"limit,omitempty" jsonschema:"Maximum hits before grouping (default 20)"`
}

type editMemoryInput struct {
	MemoryID   string   `json:"memory_id" jsonschema:"required,Memory to edit"`
	NewContent *string  `json:"new_content,omitempty" jsonschema:"Replacement content"`
	AddTags    []string `json:"add_tags,omitempty" jsonschema:"Tags to add"`
	RemoveTags []string `json:"remove_tags,omitempty" jsonschema:"Tags to remove"`
	Category   *string  `json:"category,omitempty" jsonschema:"Replacement category"`
}

type deleteMemoryInput struct {
	MemoryID string `json:"memory_id" jsonschema:"required,Memory to delete"`
	Confirm  bool   `json:"confirm" jsonschema:"required,Must be true to actually delete"`
}

type deleteMemoryOutput struct {
	Deleted bool   `json:"deleted" jsonschema:"True when the memory was removed"`
	ID      string `json:"id" jsonschema:"Deleted memory ID"`
}

type bulkManageInput struct {
	MemoryIDs []string `json:"memory_ids" jsonschema:"required,Memories to operate on"`
	Operation string   `json:"operation" jsonschema:"required,delete | add_tags | remove_tags | update_category | export"`
	Tags      []string `json:"tags,omitempty" jsonschema:"Tags for add_tags/remove_tags"`
	Category  string   `json:"category,omitempty" jsonschema:"Category for update_category"`
}

type bulkManageOutput struct {
	Successful []string                `json:"successful" jsonschema:"IDs that succeeded"`
	Failed     []services.BulkFailure  `json:"failed,omitempty" jsonschema:"IDs that failed with reasons"`
	Exported   []conversationPayload   `json:"exported,omitempty" jsonschema:"Exported conversations for the export operation"`
}

func (s *Server) registerMemoryTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "store_context",
		Description: "Store content as a manual memory; returns the conversation id",
	}, instrument(s, "store_context", func(ctx context.Context, args storeContextInput) (storeOutcomeOutput, error) {
		result, err := s.svc.StoreContext(ctx, services.StoreContextRequest{
			Content:   args.Content,
			ToolName:  args.ToolName,
			ProjectID: args.ProjectID,
			Metadata:  args.Metadata,
			Tags:      args.Tags,
		})
		if err != nil {
			return storeOutcomeOutput{}, err
		}
		return toStoreOutcome(result), nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_memory",
		Description: "Hybrid search over stored memories with category/confidence/tool filters",
	}, instrument(s, "search_memory", func(ctx context.Context, args searchMemoryInput) (searchMemoryOutput, error) {
		results, err := s.svc.SearchMemory(ctx, services.SearchRequest{
			Query:          args.Query,
			Limit:          args.Limit,
			SearchType:     args.SearchType,
			Category:       args.Category,
			AutoStoredOnly: args.AutoStoredOnly,
			MinConfidence:  args.MinConfidence,
			ProjectID:      args.ProjectID,
			ToolName:       args.ToolName,
		})
		if err != nil {
			return searchMemoryOutput{}, err
		}
		return searchMemoryOutput{Results: results, Count: len(results)}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_conversation_history",
		Description: "Recent conversations for a tool",
	}, instrument(s, "get_conversation_history", func(ctx context.Context, args historyInput) (conversationListOutput, error) {
		convs, err := s.svc.GetConversationHistory(ctx, args.ToolName, args.Hours, args.Limit)
		if err != nil {
			return conversationListOutput{}, err
		}
		return conversationListOutput{Conversations: toConversationPayloads(convs), Count: len(convs)}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "browse_recent_memories",
		Description: "Chronological browse of recent memories",
	}, instrument(s, "browse_recent_memories", func(ctx context.Context, args browseRecentInput) (conversationListOutput, error) {
		convs, err := s.svc.BrowseRecentMemories(ctx, args.Hours, args.Limit, args.ToolFilter)
		if err != nil {
			return conversationListOutput{}, err
		}
		return conversationListOutput{Conversations: toConversationPayloads(convs), Count: len(convs)}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "browse_memories_by_category",
		Description: "Category-scoped browse of memories",
	}, instrument(s, "browse_memories_by_category", func(ctx context.Context, args browseCategoryInput) (conversationListOutput, error) {
		convs, err := s.svc.BrowseMemoriesByCategory(ctx, args.Category, args.Limit)
		if err != nil {
			return conversationListOutput{}, err
		}
		return conversationListOutput{Conversations: toConversationPayloads(convs), Count: len(convs)}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_related_context",
		Description: "Search seeded by a known memory's content, excluding itself",
	}, instrument(s, "find_related_context", func(ctx context.Context, args findRelatedInput) (searchMemoryOutput, error) {
		results, err := s.svc.FindRelatedContext(ctx, args.MemoryID, args.Limit)
		if err != nil {
			return searchMemoryOutput{}, err
		}
		return searchMemoryOutput{Results: results, Count: len(results)}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_enhanced_context",
		Description: "One search grouped by analysis category",
	}, instrument(s, "get_enhanced_context", func(ctx context.Context, args enhancedContextInput) (*services.EnhancedContext, error) {
		return s.svc.GetEnhancedContext(ctx, args.Query, args.Categories, args.ProjectID, args.Limit)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "edit_memory",
		Description: "Edit a memory's content, tags, or category; keeps the search index in sync",
	}, instrument(s, "edit_memory", func(ctx context.Context, args editMemoryInput) (conversationPayload, error) {
		conv, err := s.svc.EditMemory(ctx, services.EditMemoryRequest{
			MemoryID:   args.MemoryID,
			NewContent: args.NewContent,
			AddTags:    args.AddTags,
			RemoveTags: args.RemoveTags,
			Category:   args.Category,
		})
		if err != nil {
			return conversationPayload{}, err
		}
		return toConversationPayload(*conv), nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_memory",
		Description: "Delete a memory; requires confirm=true",
	}, instrument(s, "delete_memory", func(ctx context.Context, args deleteMemoryInput) (deleteMemoryOutput, error) {
		if err := s.svc.DeleteMemory(ctx, args.MemoryID, args.Confirm); err != nil {
			return deleteMemoryOutput{}, err
		}
		return deleteMemoryOutput{Deleted: true, ID: args.MemoryID}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "bulk_manage_memories",
		Description: "Apply delete/tag/category/export operations across many memories",
	}, instrument(s, "bulk_manage_memories", func(ctx context.Context, args bulkManageInput) (bulkManageOutput, error) {
		result, err := s.svc.BulkManageMemories(ctx, args.MemoryIDs, services.BulkOperation(args.Operation), args.Tags, args.Category)
		if err != nil {
			return bulkManageOutput{}, err
		}
		return bulkManageOutput{
			Successful: result.Successful,
			Failed:     result.Failed,
			Exported:   toConversationPayloads(result.Exported),
		}, nil
	}))
}
