package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/analyzer"
	"github.com/memoryd/memoryd/internal/duplicate"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/internal/suggestion"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// Outcome names what the write path did with a submission.
type Outcome string

const (
	OutcomeStored    Outcome = "stored"
	OutcomeMerged    Outcome = "merged"
	OutcomeSkipped   Outcome = "skipped_duplicate"
	OutcomeSuggested Outcome = "suggested"
	OutcomeNoAction  Outcome = "no_action"
)

// StoreResult is the write path's report to the caller.
type StoreResult struct {
	Outcome        Outcome `json:"outcome"`
	ConversationID string  `json:"conversation_id,omitempty"`
	SuggestionID   string  `json:"suggestion_id,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	Category       string  `json:"category,omitempty"`
}

// StoreContextRequest is a manual store submission.
type StoreContextRequest struct {
	Content   string
	ToolName  string
	ProjectID string
	Metadata  map[string]any
	Tags      []string
}

// StoreContext persists content as a manual-store conversation. Manual
// stores skip the analyzer (the user has already decided) but still pass
// through duplicate detection so an exact re-submission returns the existing
// id instead of a second row.
func (s *Service) StoreContext(ctx context.Context, req StoreContextRequest) (*StoreResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, apierrors.InvalidArgument("content is required")
	}
	if req.ToolName == "" {
		return nil, apierrors.InvalidArgument("tool_name is required")
	}

	analysis := analyzer.AnalysisResult{
		ShouldStore:      true,
		Confidence:       1.0,
		Category:         model.CategoryManual,
		Reason:           "manual store",
		SuggestedContent: req.Content,
		Metadata:         req.Metadata,
	}
	return s.persist(ctx, persistRequest{
		analysis:  analysis,
		toolName:  req.ToolName,
		projectID: req.ProjectID,
		tags:      req.Tags,
		extra:     req.Metadata,
	})
}

// AnalyzeConversation runs the Storage Analyzer without persisting anything.
func (s *Service) AnalyzeConversation(ctx context.Context, userMessage, aiResponse string, conversationContext map[string]any, toolName string) (analyzer.AnalysisResult, error) {
	return s.analyzer.Analyze(userMessage, aiResponse, conversationContext, toolName)
}

// SuggestMemoryStorage analyzes a conversation turn and routes it:
// auto-store when the threshold is met (or the caller pre-approved),
// a pending suggestion when only suggest-eligible, no action otherwise.
func (s *Service) SuggestMemoryStorage(ctx context.Context, userMessage, aiResponse, toolName string, autoApprove bool) (*StoreResult, error) {
	analysis, err := s.analyzer.Analyze(userMessage, aiResponse, nil, toolName)
	if err != nil {
		return nil, err
	}

	if !analysis.ShouldStore {
		s.metrics.RecordStoreOutcome(ctx, string(OutcomeNoAction))
		return &StoreResult{
			Outcome:    OutcomeNoAction,
			Reason:     analysis.Reason,
			Confidence: analysis.Confidence,
			Category:   string(analysis.Category),
		}, nil
	}

	if analysis.AutoStore || autoApprove {
		return s.persist(ctx, persistRequest{
			analysis:   analysis,
			toolName:   toolName,
			userQuery:  userMessage,
			aiResponse: aiResponse,
			autoStored: true,
			tags:       []string{"auto_stored"},
		})
	}

	id, err := s.suggestions.Create(userMessage, aiResponse, analysis, toolName)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordStoreOutcome(ctx, string(OutcomeSuggested))
	return &StoreResult{
		Outcome:      OutcomeSuggested,
		SuggestionID: id,
		Reason:       analysis.Reason,
		Confidence:   analysis.Confidence,
		Category:     string(analysis.Category),
	}, nil
}

// ApproveSuggestion persists a pending suggestion, optionally with modified
// content and extra tags, and reports the stored conversation id.
func (s *Service) ApproveSuggestion(ctx context.Context, suggestionID string, modifiedContent *string, extraTags []string) (string, error) {
	return s.suggestions.Approve(ctx, suggestionID, modifiedContent, extraTags)
}

// RejectSuggestion drops a pending suggestion, recording the reason.
func (s *Service) RejectSuggestion(ctx context.Context, suggestionID string, reason *string) error {
	return s.suggestions.Reject(ctx, suggestionID, reason)
}

// StoreApproved implements suggestion.Storer: an approved suggestion runs
// the same persist path as an auto-store, tagged as user-approved.
func (s *Service) StoreApproved(ctx context.Context, sug *suggestion.Suggestion, content string, extraTags []string) (string, error) {
	result, err := s.persist(ctx, persistRequest{
		analysis:        sug.Analysis,
		toolName:        sug.ToolName,
		userQuery:       sug.UserMessage,
		aiResponse:      sug.AIResponse,
		contentOverride: content,
		tags:            append([]string{"suggested", "user_approved"}, extraTags...),
	})
	if err != nil {
		return "", err
	}
	return result.ConversationID, nil
}

// persistRequest carries one submission through the persist pipeline.
type persistRequest struct {
	analysis        analyzer.AnalysisResult
	toolName        string
	projectID       string
	userQuery       string
	aiResponse      string
	contentOverride string
	autoStored      bool
	tags            []string
	extra           map[string]any
}

// persist is the shared write path: detect project, duplicate-detect, then
// store or merge, index after commit, and enrich best-effort.
func (s *Service) persist(ctx context.Context, req persistRequest) (result *StoreResult, err error) {
	defer func() {
		if result != nil {
			s.metrics.RecordStoreOutcome(ctx, string(result.Outcome))
		}
	}()
	content := req.contentOverride
	if content == "" {
		content = req.analysis.SuggestedContent
	}

	projectID := req.projectID
	if projectID == "" {
		projectID = s.contextMgr.DetectProject(ctx, content, req.analysis.ExtractedInfo)
	}

	decision, err := s.optimizer().Optimize(ctx, content, map[string]any{
		"category":     string(req.analysis.Category),
		"technologies": req.analysis.ExtractedInfo.Technologies,
		"file_paths":   req.analysis.ExtractedInfo.FilePaths,
		"decisions":    req.analysis.ExtractedInfo.Decisions,
		"constraints":  req.analysis.ExtractedInfo.Constraints,
	}, req.analysis, req.toolName, projectID)
	if err != nil {
		// The optimizer is fail-open by contract; err here is unexpected.
		s.logger.Warn("duplicate optimization errored, storing fail-open", zap.Error(err))
		decision = duplicate.NewStoreDecision(req.analysis.Confidence)
	}

	switch decision.Kind {
	case duplicate.DecisionSkip:
		return &StoreResult{
			Outcome:        OutcomeSkipped,
			ConversationID: decision.CandidateID,
			Reason:         "near-identical conversation already stored",
			Confidence:     decision.Confidence,
			Category:       string(req.analysis.Category),
		}, nil

	case duplicate.DecisionMerge:
		return s.applyMerge(ctx, req, decision)

	default:
		return s.applyStore(ctx, req, content, projectID, decision.Confidence)
	}
}

func (s *Service) applyStore(ctx context.Context, req persistRequest, content, projectID string, confidence float64) (*StoreResult, error) {
	tags := append([]string{}, req.tags...)
	if req.analysis.Category != "" && req.analysis.Category != model.CategoryUnknown {
		tags = append(tags, string(req.analysis.Category))
	}
	tags = append(tags, s.contextMgr.DomainTags(content)...)

	conv := &model.Conversation{
		ToolName: req.toolName,
		Content:  content,
		Tags:     tags,
		Metadata: model.ConversationMetadata{
			AutoStored:       req.autoStored,
			Confidence:       confidence,
			AnalysisCategory: req.analysis.Category,
			StorageReason:    req.analysis.Reason,
			ExtractedInfo:    req.analysis.ExtractedInfo,
			UserQuery:        req.userQuery,
			AIResponse:       req.aiResponse,
			Extra:            req.extra,
		},
	}
	if projectID != "" {
		conv.ProjectID = &projectID
	}

	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	// Index only after the repository commit so search never returns a
	// conversation that doesn't exist yet.
	s.indexConversation(ctx, conv)
	s.contextMgr.ProposeLinks(ctx, conv.ID, conv.Content)

	return &StoreResult{
		Outcome:        OutcomeStored,
		ConversationID: conv.ID,
		Reason:         req.analysis.Reason,
		Confidence:     confidence,
		Category:       string(req.analysis.Category),
	}, nil
}

func (s *Service) applyMerge(ctx context.Context, req persistRequest, decision duplicate.Decision) (*StoreResult, error) {
	mergedAt := time.Now().UTC()
	conv, err := s.repo.UpdateConversation(ctx, decision.CandidateID, func(c *model.Conversation) error {
		c.Content = decision.MergedContent
		c.Metadata.MergedAt = &mergedAt
		c.Metadata.OptimizationApplied = true
		c.Metadata.OptimizationReasons = append(c.Metadata.OptimizationReasons,
			"merged near-duplicate from "+req.toolName)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.engine.Reindex(ctx, conv.ID, conv.Content, indexMetadata(conv)); err != nil {
		s.logger.Warn("reindexing merged conversation failed",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	return &StoreResult{
		Outcome:        OutcomeMerged,
		ConversationID: conv.ID,
		Reason:         "merged into existing near-duplicate",
		Confidence:     decision.Confidence,
		Category:       string(req.analysis.Category),
	}, nil
}
