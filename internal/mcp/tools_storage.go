package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memoryd/memoryd/internal/duplicate"
	"github.com/memoryd/memoryd/internal/model"
)

type analyzeInput struct {
	UserMessage string         `json:"user_message" jsonschema:"required,The user's message"`
	AIResponse  string         `json:"ai_response" jsonschema:"required,The assistant's response"`
	Context     map[string]any `json:"context,omitempty" jsonschema:"Optional conversation context"`
	ToolName    string         `json:"tool_name,omitempty" jsonschema:"Originating tool name"`
}

type analyzeOutput struct {
	ShouldStore      bool                `json:"should_store" jsonschema:"Whether the turn is worth storing"`
	AutoStore        bool                `json:"auto_store" jsonschema:"Whether confidence meets the auto-store threshold"`
	SuggestEligible  bool                `json:"suggest_eligible" jsonschema:"Whether the turn falls in the suggest band"`
	Confidence       float64             `json:"confidence" jsonschema:"Analyzer confidence in [0,1]"`
	Category         string              `json:"category" jsonschema:"preference | solution | project_context | decision | unknown"`
	Reason           string              `json:"reason" jsonschema:"Short explanation of the verdict"`
	SuggestedContent string              `json:"suggested_content" jsonschema:"Canonical content that would be persisted"`
	ExtractedInfo    model.ExtractedInfo `json:"extracted_info" jsonschema:"Technologies, file paths, decisions, constraints"`
}

type suggestStorageInput struct {
	UserMessage string `json:"user_message" jsonschema:"required,The user's message"`
	AIResponse  string `json:"ai_response" jsonschema:"required,The assistant's response"`
	ToolName    string `json:"tool_name,omitempty" jsonschema:"Originating tool name"`
	AutoApprove bool   `json:"auto_approve,omitempty" jsonschema:"Store immediately even below the auto-store threshold"`
}

type approveSuggestionInput struct {
	SuggestionID    string   `json:"suggestion_id" jsonschema:"required,Pending suggestion to approve"`
	ModifiedContent *string  `json:"modified_content,omitempty" jsonschema:"Replacement content to store instead"`
	Tags            []string `json:"tags,omitempty" jsonschema:"Extra tags to attach"`
}

type approveSuggestionOutput struct {
	ConversationID string `json:"conversation_id" jsonschema:"Stored conversation ID"`
	SuggestionID   string `json:"suggestion_id" jsonschema:"Approved suggestion ID"`
}

type rejectSuggestionInput struct {
	SuggestionID string  `json:"suggestion_id" jsonschema:"required,Pending suggestion to reject"`
	Reason       *string `json:"reason,omitempty" jsonschema:"Why the suggestion was rejected"`
}

type rejectSuggestionOutput struct {
	Rejected     bool   `json:"rejected" jsonschema:"True when the suggestion was rejected"`
	SuggestionID string `json:"suggestion_id" jsonschema:"Rejected suggestion ID"`
}

type checkDuplicatesInput struct {
	Content   string         `json:"content" jsonschema:"required,Content to check"`
	Metadata  map[string]any `json:"metadata,omitempty" jsonschema:"Metadata used for agreement bonuses"`
	ToolName  string         `json:"tool_name,omitempty" jsonschema:"Originating tool name"`
	ProjectID string         `json:"project_id,omitempty" jsonschema:"Restrict candidates to one project"`
}

type checkDuplicatesOutput struct {
	Candidates []duplicate.Candidate `json:"candidates" jsonschema:"Scored candidates with match types"`
	Count      int                   `json:"count" jsonschema:"Number of candidates"`
}

func (s *Server) registerStorageTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "analyze_conversation_for_storage",
		Description: "Classify a conversation turn without persisting anything",
	}, instrument(s, "analyze_conversation_for_storage", func(ctx context.Context, args analyzeInput) (analyzeOutput, error) {
		result, err := s.svc.AnalyzeConversation(ctx, args.UserMessage, args.AIResponse, args.Context, args.ToolName)
		if err != nil {
			return analyzeOutput{}, err
		}
		return analyzeOutput{
			ShouldStore:      result.ShouldStore,
			AutoStore:        result.AutoStore,
			SuggestEligible:  result.SuggestEligible,
			Confidence:       result.Confidence,
			Category:         string(result.Category),
			Reason:           result.Reason,
			SuggestedContent: result.SuggestedContent,
			ExtractedInfo:    result.ExtractedInfo,
		}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "suggest_memory_storage",
		Description: "Auto-store a conversation turn when the threshold is met, else create a pending suggestion",
	}, instrument(s, "suggest_memory_storage", func(ctx context.Context, args suggestStorageInput) (storeOutcomeOutput, error) {
		result, err := s.svc.SuggestMemoryStorage(ctx, args.UserMessage, args.AIResponse, args.ToolName, args.AutoApprove)
		if err != nil {
			return storeOutcomeOutput{}, err
		}
		return toStoreOutcome(result), nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "approve_storage_suggestion",
		Description: "Persist a pending suggestion, optionally with modified content",
	}, instrument(s, "approve_storage_suggestion", func(ctx context.Context, args approveSuggestionInput) (approveSuggestionOutput, error) {
		convID, err := s.svc.ApproveSuggestion(ctx, args.SuggestionID, args.ModifiedContent, args.Tags)
		if err != nil {
			return approveSuggestionOutput{}, err
		}
		return approveSuggestionOutput{ConversationID: convID, SuggestionID: args.SuggestionID}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reject_storage_suggestion",
		Description: "Drop a pending suggestion, recording the rejection for learning",
	}, instrument(s, "reject_storage_suggestion", func(ctx context.Context, args rejectSuggestionInput) (rejectSuggestionOutput, error) {
		if err := s.svc.RejectSuggestion(ctx, args.SuggestionID, args.Reason); err != nil {
			return rejectSuggestionOutput{}, err
		}
		return rejectSuggestionOutput{Rejected: true, SuggestionID: args.SuggestionID}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_for_duplicates",
		Description: "Score stored memories against content and report exact/near/related matches",
	}, instrument(s, "check_for_duplicates", func(ctx context.Context, args checkDuplicatesInput) (checkDuplicatesOutput, error) {
		candidates, err := s.svc.CheckForDuplicates(ctx, args.Content, args.Metadata, args.ToolName, args.ProjectID)
		if err != nil {
			return checkDuplicatesOutput{}, err
		}
		return checkDuplicatesOutput{Candidates: candidates, Count: len(candidates)}, nil
	}))
}
