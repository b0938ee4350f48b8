package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryd/memoryd/internal/analyzer"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	a := analyzer.New()
	_, err := a.Analyze("", "", nil, "claude-code")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindInvalidArgument, apierrors.KindOf(err))
}

func TestAnalyzeDecisionAutoStores(t *testing.T) {
	a := analyzer.New()
	result, err := a.Analyze(
		"Let's use postgres instead of sqlite for the production deployment",
		"Agreed, postgres gives us better concurrent write support.",
		nil, "claude-code",
	)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryDecision, result.Category)
	assert.True(t, result.ShouldStore)
	assert.True(t, result.AutoStore)
	assert.False(t, result.SuggestEligible)
	assert.GreaterOrEqual(t, result.Confidence, 0.85)
}

func TestAnalyzeProjectContextSuggestsOnly(t *testing.T) {
	a := analyzer.New()
	result, err := a.Analyze(
		"this project uses a Dockerfile for the build",
		"",
		nil, "claude-code",
	)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryProjectContext, result.Category)
	assert.True(t, result.ShouldStore)
	assert.True(t, result.SuggestEligible)
	assert.False(t, result.AutoStore)
}

func TestAnalyzeUnknownCategoryDoesNotStore(t *testing.T) {
	a := analyzer.New()
	result, err := a.Analyze("what's the weather like today", "", nil, "claude-code")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryUnknown, result.Category)
	assert.False(t, result.ShouldStore)
	assert.False(t, result.AutoStore)
}

func TestAnalyzeExtractsTechnologiesAndFilePaths(t *testing.T) {
	a := analyzer.New()
	result, err := a.Analyze(
		"decided to fix the bug in internal/search/engine.go using golang's sync.Map",
		"", nil, "claude-code",
	)
	require.NoError(t, err)
	assert.Contains(t, result.ExtractedInfo.FilePaths, "internal/search/engine.go")
	assert.Contains(t, result.ExtractedInfo.Technologies, "golang")
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := analyzer.New()
	first, err := a.Analyze(
		"Let's use postgres instead of sqlite for the production deployment",
		"Agreed, postgres gives us better concurrent write support.",
		nil, "claude-code",
	)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := a.Analyze(
			"Let's use postgres instead of sqlite for the production deployment",
			"Agreed, postgres gives us better concurrent write support.",
			nil, "claude-code",
		)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAnalyzeConfidenceAlwaysBounded(t *testing.T) {
	a := analyzer.New()
	inputs := []string{
		"let's use postgres",
		"the fix was restarting the pool",
		"I prefer short functions",
		"this project uses bazel",
		"completely unclassifiable smalltalk",
	}
	for _, in := range inputs {
		result, err := a.Analyze(in, "ack", nil, "claude-code")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.Confidence, 0.0)
		assert.LessOrEqual(t, result.Confidence, 1.0)
	}
}

// stubThresholds lets a test tighten or loosen cutoffs to exercise the
// ThresholdSource seam without a full Learning Engine.
type stubThresholds struct {
	t analyzer.Thresholds
}

func (s stubThresholds) ThresholdsFor(model.Category) analyzer.Thresholds { return s.t }

func TestAnalyzeHonorsThresholdSourceOverride(t *testing.T) {
	a := analyzer.New(analyzer.WithThresholdSource(stubThresholds{
		t: analyzer.Thresholds{AutoStore: 0.99, Suggest: 0.99},
	}))
	result, err := a.Analyze("let's use kafka for the event bus", "", nil, "claude-code")
	require.NoError(t, err)
	assert.False(t, result.ShouldStore)
	assert.False(t, result.AutoStore)
}
