package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/memoryd/memoryd/internal/integrity"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/internal/session"
)

// AnalyzeSession clusters conversations into a session analysis.
func (s *Service) AnalyzeSession(ctx context.Context, conversationIDs []string) (*session.Analysis, error) {
	return s.sessions.Analyze(ctx, conversationIDs)
}

// CreateSessionSummary materializes a session analysis as a stored memory.
func (s *Service) CreateSessionSummary(ctx context.Context, analysis *session.Analysis, toolName string) (*model.Conversation, error) {
	return s.sessions.CreateSessionMemory(ctx, analysis, toolName)
}

// LinkSessionMemories cross-links a summary with its member conversations.
func (s *Service) LinkSessionMemories(ctx context.Context, summaryID string, memberIDs []string) error {
	return s.sessions.LinkSessionMemories(ctx, summaryID, memberIDs)
}

// CategoryStat is one category's slice of the statistics report.
type CategoryStat struct {
	Count        int     `json:"count"`
	ApprovalRate float64 `json:"approval_rate,omitempty"`
}

// Statistics is the get_memory_statistics payload.
type Statistics struct {
	TotalConversations int                     `json:"total_conversations"`
	ByCategory         map[string]CategoryStat `json:"by_category"`
	ByTool             map[string]int          `json:"by_tool"`
	ConfidenceBuckets  map[string]int          `json:"confidence_buckets"`
	DailyCounts        map[string]int          `json:"daily_counts"`
	PendingSuggestions int                     `json:"pending_suggestions"`
	WindowDays         int                     `json:"window_days"`
}

// GetMemoryStatistics aggregates counts by category, tool, confidence
// bucket, and day over the requested window.
func (s *Service) GetMemoryStatistics(ctx context.Context, windowDays int) (*Statistics, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	end := time.Now().UTC()
	convs, err := s.repo.ByTimeRange(ctx, end.AddDate(0, 0, -windowDays), end, 1000)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalConversations: len(convs),
		ByCategory:         make(map[string]CategoryStat),
		ByTool:             make(map[string]int),
		ConfidenceBuckets:  make(map[string]int),
		DailyCounts:        make(map[string]int),
		PendingSuggestions: s.suggestions.PendingCount(),
		WindowDays:         windowDays,
	}

	for _, c := range convs {
		cat := string(c.Metadata.AnalysisCategory)
		if cat == "" {
			cat = string(model.CategoryUnknown)
		}
		entry := stats.ByCategory[cat]
		entry.Count++
		stats.ByCategory[cat] = entry

		stats.ByTool[c.ToolName]++
		stats.ConfidenceBuckets[confidenceBucketLabel(c.Metadata.Confidence)]++
		stats.DailyCounts[c.Timestamp.UTC().Format("2006-01-02")]++
	}

	for cat, learned := range s.learning.Stats() {
		entry := stats.ByCategory[string(cat)]
		entry.ApprovalRate = learned.ApprovalRate()
		stats.ByCategory[string(cat)] = entry
	}

	return stats, nil
}

func confidenceBucketLabel(confidence float64) string {
	switch {
	case confidence >= 0.9:
		return "0.9-1.0"
	case confidence >= 0.8:
		return "0.8-0.9"
	case confidence >= 0.6:
		return "0.6-0.8"
	case confidence > 0:
		return "0.0-0.6"
	default:
		return "none"
	}
}

// ComponentStatus is one component's slice of the health report.
type ComponentStatus struct {
	Status string `json:"status"` // healthy | degraded | unhealthy
	Detail string `json:"detail,omitempty"`
}

// Health is the health-endpoint payload.
type Health struct {
	OverallStatus string                     `json:"overall_status"`
	Components    map[string]ComponentStatus `json:"components"`
}

// CheckHealth probes the durable store, the semantic subsystem, and the
// circuit breaker, rolling them up into an overall status.
func (s *Service) CheckHealth(ctx context.Context) *Health {
	h := &Health{Components: make(map[string]ComponentStatus)}

	if err := s.repo.Ping(); err != nil {
		h.Components["repository"] = ComponentStatus{Status: "unhealthy", Detail: err.Error()}
	} else {
		h.Components["repository"] = ComponentStatus{Status: "healthy"}
	}

	switch {
	case !s.engine.HasVector():
		h.Components["semantic"] = ComponentStatus{Status: "degraded", Detail: "no embedder configured; keyword-only"}
	case s.engine.BreakerOpen():
		h.Components["semantic"] = ComponentStatus{Status: "degraded", Detail: "circuit breaker open"}
	default:
		status := s.engine.Status()
		if status.SemanticFailures > 0 && time.Since(status.LastFailure) < time.Minute {
			h.Components["semantic"] = ComponentStatus{Status: "degraded", Detail: status.LastError}
		} else {
			h.Components["semantic"] = ComponentStatus{Status: "healthy"}
		}
	}

	h.Components["suggestions"] = ComponentStatus{Status: "healthy"}

	h.OverallStatus = "healthy"
	for _, c := range h.Components {
		switch c.Status {
		case "unhealthy":
			h.OverallStatus = "unhealthy"
		case "degraded":
			if h.OverallStatus == "healthy" {
				h.OverallStatus = "degraded"
			}
		}
	}
	return h
}

// configOverridePrefix namespaces preference rows that act as runtime
// configuration overrides.
const configOverridePrefix = "config."

// ReloadConfig re-reads configuration overrides from general-category
// preferences (keys like "config.ranking_weights.semantic") and swaps the
// live snapshot.
func (s *Service) ReloadConfig(ctx context.Context) error {
	prefs, err := s.repo.ListPreferencesByCategory(ctx, "general")
	if err != nil {
		return err
	}

	overrides := make(map[string]json.RawMessage)
	for _, p := range prefs {
		if !strings.HasPrefix(p.Key, configOverridePrefix) {
			continue
		}
		overrides[strings.TrimPrefix(p.Key, configOverridePrefix)] = json.RawMessage(p.Value)
	}
	return s.cfg.ApplyOverrides(overrides)
}

// CheckIntegrity runs a durable-store integrity pass.
func (s *Service) CheckIntegrity(ctx context.Context, autoFix bool) (*integrity.Report, error) {
	return s.checker.Check(ctx, autoFix)
}

// Vacuum compacts the durable store.
func (s *Service) Vacuum() error {
	return s.repo.Vacuum()
}
