package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/duplicate"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/internal/search"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// SearchRequest carries a memory search with its optional filters.
type SearchRequest struct {
	Query          string
	Limit          int
	SearchType     string // "hybrid" (default) | "semantic" | "keyword"
	Category       string
	AutoStoredOnly bool
	MinConfidence  float64
	ProjectID      string
	ToolName       string
}

// MemoryResult is one search hit augmented with repository metadata.
type MemoryResult struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	ToolName   string         `json:"tool_name,omitempty"`
	Category   string         `json:"category,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Confidence float64        `json:"confidence,omitempty"`
	AutoStored bool           `json:"auto_stored"`
	Score      float64        `json:"score"`
	Semantic   float64        `json:"semantic_score"`
	Keyword    float64        `json:"keyword_score"`
	Recency    float64        `json:"recency_score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func parseMode(searchType string) (search.Mode, error) {
	switch searchType {
	case "", "hybrid":
		return search.ModeHybrid, nil
	case "semantic":
		return search.ModeSemantic, nil
	case "keyword":
		return search.ModeKeyword, nil
	default:
		return 0, apierrors.InvalidArgument("search_type must be hybrid, semantic, or keyword")
	}
}

func (r SearchRequest) filter() search.Filter {
	f := search.NewFilter()
	if r.Category != "" {
		f = f.Eq("category", r.Category)
	}
	if r.AutoStoredOnly {
		f = f.Eq("auto_stored", true)
	}
	if r.MinConfidence > 0 {
		f = f.GTE("confidence", r.MinConfidence)
	}
	if r.ProjectID != "" {
		f = f.Eq("project_id", r.ProjectID)
	}
	if r.ToolName != "" {
		f = f.Eq("tool_name", r.ToolName)
	}
	return f
}

// SearchMemory runs a ranked hybrid search (by default) over stored
// memories.
func (s *Service) SearchMemory(ctx context.Context, req SearchRequest) ([]MemoryResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apierrors.InvalidArgument("query is required")
	}
	mode, err := parseMode(req.SearchType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := s.engine.Search(ctx, req.Query, req.Limit, req.filter(), mode)
	if err != nil {
		return nil, err
	}
	results := s.augment(ctx, hits)
	s.metrics.RecordSearch(ctx, modeLabel(mode), time.Since(start), len(results))
	return results, nil
}

func modeLabel(mode search.Mode) string {
	switch mode {
	case search.ModeSemantic:
		return "semantic"
	case search.ModeKeyword:
		return "keyword"
	default:
		return "hybrid"
	}
}

// augment joins search hits with their repository rows. A hit whose row has
// since been deleted is dropped rather than returned half-populated.
func (s *Service) augment(ctx context.Context, hits []search.Result) []MemoryResult {
	results := make([]MemoryResult, 0, len(hits))
	for _, h := range hits {
		r := MemoryResult{
			ID:       h.ExternalID,
			Content:  h.Content,
			Score:    h.Combined,
			Semantic: h.Semantic,
			Keyword:  h.Keyword,
			Recency:  h.Recency,
			Metadata: h.Metadata,
		}
		conv, err := s.repo.GetConversation(ctx, h.ExternalID)
		if err != nil {
			s.logger.Debug("dropping search hit without repository row",
				zap.String("conversation_id", h.ExternalID), zap.Error(err))
			continue
		}
		r.ToolName = conv.ToolName
		r.Category = string(conv.Metadata.AnalysisCategory)
		r.Tags = conv.Tags
		r.Timestamp = conv.Timestamp
		r.Confidence = conv.Metadata.Confidence
		r.AutoStored = conv.Metadata.AutoStored
		r.Content = conv.Content
		results = append(results, r)
	}
	return results
}

// GetConversationHistory returns recent conversations for a tool.
func (s *Service) GetConversationHistory(ctx context.Context, toolName string, hours, limit int) ([]model.Conversation, error) {
	if toolName == "" {
		return nil, apierrors.InvalidArgument("tool_name is required")
	}
	return s.repo.RecentByTool(ctx, toolName, hours, limit)
}

// BrowseRecentMemories returns a chronological browse over the last N hours.
func (s *Service) BrowseRecentMemories(ctx context.Context, hours, limit int, toolFilter string) ([]model.Conversation, error) {
	if hours <= 0 {
		hours = 24
	}
	end := time.Now().UTC()
	convs, err := s.repo.ByTimeRange(ctx, end.Add(-time.Duration(hours)*time.Hour), end, limit)
	if err != nil {
		return nil, err
	}
	if toolFilter == "" {
		return convs, nil
	}
	filtered := convs[:0]
	for _, c := range convs {
		if c.ToolName == toolFilter {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// BrowseMemoriesByCategory returns a category-scoped browse.
func (s *Service) BrowseMemoriesByCategory(ctx context.Context, category string, limit int) ([]model.Conversation, error) {
	if category == "" {
		return nil, apierrors.InvalidArgument("category is required")
	}
	return s.repo.ListByCategory(ctx, model.Category(category), limit)
}

// FindRelatedContext searches using a known memory's content as the query,
// excluding the memory itself.
func (s *Service) FindRelatedContext(ctx context.Context, memoryID string, limit int) ([]MemoryResult, error) {
	conv, err := s.repo.GetConversation(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	hits, err := s.engine.Search(ctx, conv.Content, limit+1, search.NewFilter(), search.ModeHybrid)
	if err != nil {
		return nil, err
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.ExternalID == memoryID {
			continue
		}
		kept = append(kept, h)
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return s.augment(ctx, kept), nil
}

// EnhancedContext groups one search's results by category.
type EnhancedContext struct {
	Query   string                    `json:"query"`
	Groups  map[string][]MemoryResult `json:"groups"`
	Total   int                       `json:"total"`
	Project string                    `json:"project_id,omitempty"`
}

// GetEnhancedContext runs one search and groups the hits by category.
// categories toggles which groups are included; empty means all.
func (s *Service) GetEnhancedContext(ctx context.Context, query string, categories []string, projectID string, limit int) (*EnhancedContext, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apierrors.InvalidArgument("query is required")
	}
	if limit <= 0 {
		limit = 20
	}

	req := SearchRequest{Query: query, Limit: limit, ProjectID: projectID}
	results, err := s.SearchMemory(ctx, req)
	if err != nil {
		return nil, err
	}

	include := make(map[string]bool, len(categories))
	for _, c := range categories {
		include[c] = true
	}

	out := &EnhancedContext{Query: query, Project: projectID, Groups: make(map[string][]MemoryResult)}
	for _, r := range results {
		cat := r.Category
		if cat == "" {
			cat = string(model.CategoryUnknown)
		}
		if len(include) > 0 && !include[cat] {
			continue
		}
		out.Groups[cat] = append(out.Groups[cat], r)
		out.Total++
	}
	return out, nil
}

// CheckForDuplicates surfaces the duplicate detector's scored candidate
// list without making a storage decision.
func (s *Service) CheckForDuplicates(ctx context.Context, content string, metadata map[string]any, toolName, projectID string) ([]duplicate.Candidate, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apierrors.InvalidArgument("content is required")
	}
	return s.optimizer().Candidates(ctx, content, metadata, toolName, projectID)
}

// EditMemoryRequest carries a memory edit.
type EditMemoryRequest struct {
	MemoryID   string
	NewContent *string
	AddTags    []string
	RemoveTags []string
	Category   *string
}

// EditMemory mutates a conversation and keeps the search index in sync.
func (s *Service) EditMemory(ctx context.Context, req EditMemoryRequest) (*model.Conversation, error) {
	if req.MemoryID == "" {
		return nil, apierrors.InvalidArgument("memory_id is required")
	}
	if req.NewContent == nil && len(req.AddTags) == 0 && len(req.RemoveTags) == 0 && req.Category == nil {
		return nil, apierrors.InvalidArgument("at least one edit is required")
	}

	edited := time.Now().UTC()
	conv, err := s.repo.UpdateConversation(ctx, req.MemoryID, func(c *model.Conversation) error {
		if req.NewContent != nil {
			if strings.TrimSpace(*req.NewContent) == "" {
				return apierrors.InvalidArgument("content cannot be emptied")
			}
			c.Content = *req.NewContent
		}
		if len(req.AddTags) > 0 {
			c.Tags = append(c.Tags, req.AddTags...)
		}
		if len(req.RemoveTags) > 0 {
			drop := make(map[string]bool, len(req.RemoveTags))
			for _, t := range req.RemoveTags {
				drop[strings.ToLower(t)] = true
			}
			kept := c.Tags[:0]
			for _, t := range c.Tags {
				if !drop[t] {
					kept = append(kept, t)
				}
			}
			c.Tags = kept
		}
		if req.Category != nil {
			c.Metadata.AnalysisCategory = model.Category(*req.Category)
			c.Metadata.CategoryUpdated = &edited
		}
		c.Metadata.LastEdited = &edited
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.engine.Reindex(ctx, conv.ID, conv.Content, indexMetadata(conv)); err != nil {
		s.logger.Warn("reindexing edited conversation failed",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	return conv, nil
}

// DeleteMemory removes a conversation and its index entries. confirm guards
// against accidental deletion from tool callers.
func (s *Service) DeleteMemory(ctx context.Context, memoryID string, confirm bool) error {
	if memoryID == "" {
		return apierrors.InvalidArgument("memory_id is required")
	}
	if !confirm {
		return apierrors.InvalidArgument("set confirm=true to delete")
	}

	if err := s.repo.DeleteConversation(ctx, memoryID); err != nil {
		return err
	}
	if err := s.engine.RemoveByExternalID(ctx, memoryID); err != nil && !apierrors.Is(err, apierrors.KindNotFound) {
		s.logger.Warn("removing conversation from search index failed",
			zap.String("conversation_id", memoryID), zap.Error(err))
	}
	return nil
}

// BulkOperation names a bulk_manage_memories action.
type BulkOperation string

const (
	BulkDelete         BulkOperation = "delete"
	BulkAddTags        BulkOperation = "add_tags"
	BulkRemoveTags     BulkOperation = "remove_tags"
	BulkUpdateCategory BulkOperation = "update_category"
	BulkExport         BulkOperation = "export"
)

// BulkFailure reports one failed item of a bulk operation.
type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkResult reports per-item outcomes of a bulk operation.
type BulkResult struct {
	Successful []string             `json:"successful"`
	Failed     []BulkFailure        `json:"failed"`
	Exported   []model.Conversation `json:"exported,omitempty"`
}

// BulkManageMemories applies one operation across many memories, reporting
// per-item success/failure instead of failing the batch.
func (s *Service) BulkManageMemories(ctx context.Context, memoryIDs []string, op BulkOperation, tags []string, category string) (*BulkResult, error) {
	if len(memoryIDs) == 0 {
		return nil, apierrors.InvalidArgument("memory_ids is required")
	}

	result := &BulkResult{}
	for _, id := range memoryIDs {
		var err error
		switch op {
		case BulkDelete:
			err = s.DeleteMemory(ctx, id, true)
		case BulkAddTags:
			_, err = s.EditMemory(ctx, EditMemoryRequest{MemoryID: id, AddTags: tags})
		case BulkRemoveTags:
			_, err = s.EditMemory(ctx, EditMemoryRequest{MemoryID: id, RemoveTags: tags})
		case BulkUpdateCategory:
			cat := category
			_, err = s.EditMemory(ctx, EditMemoryRequest{MemoryID: id, Category: &cat})
		case BulkExport:
			var conv *model.Conversation
			conv, err = s.repo.GetConversation(ctx, id)
			if err == nil {
				result.Exported = append(result.Exported, *conv)
			}
		default:
			return nil, apierrors.InvalidArgument("unknown bulk operation: " + string(op))
		}

		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{ID: id, Error: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, id)
	}

	sort.Strings(result.Successful)
	return result, nil
}
