package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/config"
	"github.com/memoryd/memoryd/internal/learning"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/internal/repository"
	"github.com/memoryd/memoryd/internal/search"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// newTestService builds a Service over an in-memory SQLite repository and a
// keyword-only search engine (no embedder), the degraded-but-functional
// configuration every deployment must support.
func newTestService(t *testing.T) *Service {
	t.Helper()

	repo, err := repository.Open(repository.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	engine, err := search.New(repo.DB(), nil, search.Config{}, nil)
	require.NoError(t, err)

	store := config.NewStore(config.Default())
	learner := learning.New(context.Background(), repo, nil)

	return New(Options{
		Config:     store,
		Repository: repo,
		Search:     engine,
		Learning:   learner,
		Logger:     nil,
	})
}

func TestAutoStoreHappyPath(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// "I prefer" classifies as preference at auto-store confidence.
	result, err := svc.SuggestMemoryStorage(ctx,
		"I prefer 2-space indent for this codebase",
		"Understood, using 2-space indentation from here on",
		"claude-code", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStored, result.Outcome)
	require.NotEmpty(t, result.ConversationID)

	conv, err := svc.repo.GetConversation(ctx, result.ConversationID)
	require.NoError(t, err)
	assert.True(t, conv.Metadata.AutoStored)
	assert.Equal(t, model.CategoryPreference, conv.Metadata.AnalysisCategory)
	assert.Contains(t, conv.Tags, "auto_stored")
	assert.Contains(t, conv.Tags, "preference")

	hits, err := svc.SearchMemory(ctx, SearchRequest{Query: "indent"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, result.ConversationID, hits[0].ID)
}

func TestExactDuplicateSkips(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	first, err := svc.SuggestMemoryStorage(ctx,
		"I prefer tabs over spaces in Go files always",
		"Noted, tabs it is for all Go files",
		"claude-code", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeStored, first.Outcome)

	second, err := svc.SuggestMemoryStorage(ctx,
		"I prefer tabs over spaces in Go files always",
		"Noted, tabs it is for all Go files",
		"claude-code", false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, second.Outcome)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	// No second row was written.
	convs, err := svc.repo.SearchByContent(ctx, "tabs over spaces", 10)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestNearDuplicateMerges(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	first, err := svc.SuggestMemoryStorage(ctx,
		"I prefer two space indentation for Python files in general here",
		"Got it, using two space indentation for Python",
		"claude-code", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeStored, first.Outcome)

	second, err := svc.SuggestMemoryStorage(ctx,
		"I prefer two space indentation for all Python files in general here",
		"Got it, two space indentation for Python",
		"claude-code", false)
	require.NoError(t, err)

	if second.Outcome == OutcomeSkipped {
		// Token overlap can cross the exact threshold; either dedup outcome
		// preserves the invariant that no second row exists.
		assert.Equal(t, first.ConversationID, second.ConversationID)
		return
	}
	require.Equal(t, OutcomeMerged, second.Outcome)
	assert.Equal(t, first.ConversationID, second.ConversationID)

	conv, err := svc.repo.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.NotNil(t, conv.Metadata.MergedAt)
	assert.True(t, conv.Metadata.OptimizationApplied)
	assert.Contains(t, conv.Content, "all Python")
}

func TestSuggestPathWithModifyApprove(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// Project-context phrasing lands in the suggest band (0.6 <= c < 0.85).
	result, err := svc.SuggestMemoryStorage(ctx,
		"this project uses a hexagonal architecture layout",
		"Right, the handlers live at the edge and the domain stays pure",
		"claude-code", false)
	require.NoError(t, err)
	require.Equal(t, OutcomeSuggested, result.Outcome)
	require.NotEmpty(t, result.SuggestionID)

	modified := "Project layout: hexagonal architecture, handlers at the edge, pure domain core"
	convID, err := svc.ApproveSuggestion(ctx, result.SuggestionID, &modified, []string{"architecture"})
	require.NoError(t, err)
	require.NotEmpty(t, convID)

	conv, err := svc.repo.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, modified, conv.Content)
	assert.Contains(t, conv.Tags, "suggested")
	assert.Contains(t, conv.Tags, "user_approved")

	// The MODIFICATION feedback landed in learning preferences.
	prefs, err := svc.repo.ListPreferencesByCategory(ctx, learning.PreferenceCategory)
	require.NoError(t, err)
	found := false
	for _, p := range prefs {
		if p.Key == "learning.feedback.modification."+result.SuggestionID {
			found = true
		}
	}
	assert.True(t, found, "expected a modification feedback preference row")
}

func TestRejectionsFeedLearningAndRaiseThreshold(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	before := svc.learning.ThresholdsFor(model.CategorySolution).AutoStore

	for i := 0; i < 25; i++ {
		// Solution phrasing just under auto-store: "due to" pattern at 0.8.
		result, err := svc.SuggestMemoryStorage(ctx,
			"we hit an error due to the connection pool draining case "+string(rune('a'+i)),
			"That error happens when the pool is exhausted",
			"claude-code", false)
		require.NoError(t, err)
		if result.Outcome != OutcomeSuggested {
			// Dedup can fold some into earlier suggestions' conversations;
			// only actual suggestions can be rejected.
			continue
		}
		require.NoError(t, svc.RejectSuggestion(ctx, result.SuggestionID, nil))
	}

	stats := svc.learning.Stats()[model.CategorySolution]
	require.Positive(t, stats.Rejections)
	assert.Zero(t, stats.ApprovalRate())

	if stats.Rejections >= 20 {
		after := svc.learning.ThresholdsFor(model.CategorySolution).AutoStore
		assert.Greater(t, after, before)
	}
}

func TestHybridDegradationServesKeywordResults(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t) // no embedder configured at all

	stored, err := svc.StoreContext(ctx, StoreContextRequest{
		Content:  "indentation preferences: two spaces for python, tabs for go",
		ToolName: "claude-code",
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeStored, stored.Outcome)

	hits, err := svc.SearchMemory(ctx, SearchRequest{Query: "indentation preferences"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, stored.ConversationID, hits[0].ID)

	health := svc.CheckHealth(ctx)
	assert.Equal(t, "degraded", health.OverallStatus)
	assert.Equal(t, "degraded", health.Components["semantic"].Status)
	assert.Equal(t, "healthy", health.Components["repository"].Status)
}

func TestEditMemoryReflectsInSearch(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	stored, err := svc.StoreContext(ctx, StoreContextRequest{
		Content:  "the staging database hostname is stagingdb internal",
		ToolName: "claude-code",
	})
	require.NoError(t, err)

	newContent := "the staging database hostname is graphite internal now"
	conv, err := svc.EditMemory(ctx, EditMemoryRequest{
		MemoryID:   stored.ConversationID,
		NewContent: &newContent,
	})
	require.NoError(t, err)
	assert.Equal(t, newContent, conv.Content)
	assert.NotNil(t, conv.Metadata.LastEdited)

	hits, err := svc.SearchMemory(ctx, SearchRequest{Query: "graphite", SearchType: "keyword"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, stored.ConversationID, hits[0].ID)

	old, err := svc.SearchMemory(ctx, SearchRequest{Query: "stagingdb", SearchType: "keyword"})
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestDeleteMemoryIdempotence(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	stored, err := svc.StoreContext(ctx, StoreContextRequest{
		Content:  "temporary note about the rollout window",
		ToolName: "claude-code",
	})
	require.NoError(t, err)

	require.Error(t, svc.DeleteMemory(ctx, stored.ConversationID, false))
	require.NoError(t, svc.DeleteMemory(ctx, stored.ConversationID, true))

	err = svc.DeleteMemory(ctx, stored.ConversationID, true)
	assert.True(t, apierrors.Is(err, apierrors.KindNotFound))

	hits, err := svc.SearchMemory(ctx, SearchRequest{Query: "rollout", SearchType: "keyword"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFindRelatedExcludesSelf(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	a, err := svc.StoreContext(ctx, StoreContextRequest{
		Content:  "kubernetes deployment rollout strategy canary for payments",
		ToolName: "claude-code",
	})
	require.NoError(t, err)
	_, err = svc.StoreContext(ctx, StoreContextRequest{
		Content:  "payments canary rollout failed on kubernetes node pool upgrade",
		ToolName: "claude-code",
	})
	require.NoError(t, err)

	related, err := svc.FindRelatedContext(ctx, a.ConversationID, 5)
	require.NoError(t, err)
	for _, r := range related {
		assert.NotEqual(t, a.ConversationID, r.ID)
	}
	require.NotEmpty(t, related)
}

func TestEnhancedContextGroupsByCategory(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.SuggestMemoryStorage(ctx,
		"I prefer table driven tests for parser code",
		"Agreed, table driven tests keep parser cases honest",
		"claude-code", false)
	require.NoError(t, err)

	out, err := svc.GetEnhancedContext(ctx, "table driven parser tests", nil, "", 10)
	require.NoError(t, err)
	require.NotZero(t, out.Total)
	assert.NotEmpty(t, out.Groups[string(model.CategoryPreference)])
}

func TestBulkManagePartialFailure(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	stored, err := svc.StoreContext(ctx, StoreContextRequest{
		Content:  "bulk target memo about retry policy",
		ToolName: "claude-code",
	})
	require.NoError(t, err)

	result, err := svc.BulkManageMemories(ctx, []string{stored.ConversationID, "missing-id"}, BulkAddTags, []string{"ops"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{stored.ConversationID}, result.Successful)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "missing-id", result.Failed[0].ID)

	conv, err := svc.repo.GetConversation(ctx, stored.ConversationID)
	require.NoError(t, err)
	assert.Contains(t, conv.Tags, "ops")
}

func TestReloadConfigAppliesPreferenceOverrides(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.repo.SetPreference(ctx, "config.suggestion_ttl_hours", "general", 6))
	require.NoError(t, svc.ReloadConfig(ctx))
	assert.Equal(t, 6, svc.cfg.Current().SuggestionTTLHours)

	require.NoError(t, svc.repo.DeletePreference(ctx, "config.suggestion_ttl_hours"))
	require.NoError(t, svc.ReloadConfig(ctx))
	assert.Equal(t, 24, svc.cfg.Current().SuggestionTTLHours)
}

func TestBuildSummarizerSelection(t *testing.T) {
	cfg := config.Default()
	s := buildSummarizer(cfg, zap.NewNop())
	assert.False(t, s.Available(), "disabled provider yields the no-op summarizer")

	cfg = config.Default()
	cfg.Extraction.Provider = "anthropic"
	cfg.Extraction.APIKey = "test-key"
	s = buildSummarizer(cfg, zap.NewNop())
	assert.True(t, s.Available(), "configured provider yields a live summarizer")

	// A provider with no key degrades to no-op instead of failing startup.
	cfg = config.Default()
	cfg.Extraction.Provider = "anthropic"
	s = buildSummarizer(cfg, zap.NewNop())
	assert.False(t, s.Available())
}

func TestGetMemoryStatistics(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.StoreContext(ctx, StoreContextRequest{Content: "stat memo one about deploys", ToolName: "claude-code"})
	require.NoError(t, err)
	_, err = svc.StoreContext(ctx, StoreContextRequest{Content: "stat memo two about releases", ToolName: "cursor"})
	require.NoError(t, err)

	stats, err := svc.GetMemoryStatistics(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalConversations)
	assert.Equal(t, 1, stats.ByTool["claude-code"])
	assert.Equal(t, 1, stats.ByTool["cursor"])
	assert.Equal(t, 2, stats.ByCategory[string(model.CategoryManual)].Count)
}
