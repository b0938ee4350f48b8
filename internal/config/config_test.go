package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.InDelta(t, 0.85, cfg.AutoStoreThreshold, 1e-9)
	assert.InDelta(t, 0.60, cfg.SuggestThreshold, 1e-9)
	assert.InDelta(t, 0.95, cfg.DuplicateThresholds.Exact, 1e-9)
	assert.Equal(t, 20, cfg.MinContentLengthForDup)
	assert.Equal(t, 384, cfg.EmbeddingDimension)
	assert.Equal(t, 24, cfg.SuggestionTTLHours)
	assert.Equal(t, 365, cfg.Retention.OlderThanDays)
	assert.Equal(t, 100, cfg.Retention.KeepMinimum)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
}

func TestValidateRejectsBadRankingWeights(t *testing.T) {
	cfg := Default()
	cfg.RankingWeights = RankingWeights{Semantic: 0.5, Keyword: 0.3, Recency: 0.1}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedThresholds(t *testing.T) {
	cfg := Default()
	cfg.SuggestThreshold = 0.9
	cfg.AutoStoreThreshold = 0.8
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.DuplicateThresholds = DuplicateThresholds{Exact: 0.5, Near: 0.8, Related: 0.6}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownProviders(t *testing.T) {
	cfg := Default()
	cfg.VectorStore.Provider = "pinecone"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Embeddings.Provider = "openai"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Extraction.Provider = "gemini"
	require.Error(t, cfg.Validate())
}

func TestValidateExtractionProviderRequiresKey(t *testing.T) {
	cfg := Default()
	cfg.Extraction.Provider = "anthropic"
	require.Error(t, cfg.Validate())

	cfg.Extraction.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())
}

func TestSecretRedactsButRoundTrips(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "hunter2", s.Value())

	// The override store re-marshals the base config; the secret must
	// survive that round trip un-redacted.
	raw, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hunter2")
}

func TestLoadWithFileAppliesPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEMORYD_CONFIG_DIR", dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 7777\nsuggestion_ttl_hours: 12\n"), 0600))

	t.Setenv("SERVER_HTTP_PORT", "8888")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	// Env beats file; file beats defaults.
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 12, cfg.SuggestionTTLHours)
	assert.InDelta(t, 0.85, cfg.AutoStoreThreshold, 1e-9)
}

func TestLoadWithFileRejectsWeakPermissions(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MEMORYD_CONFIG_DIR", dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("suggestion_ttl_hours: 12\n"), 0644))

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoadWithFileRejectsPathOutsideAllowedDirs(t *testing.T) {
	_, err := LoadWithFile("/tmp/definitely-not-allowed/config.yaml")
	require.Error(t, err)
}

func TestStoreApplyOverrides(t *testing.T) {
	store := NewStore(Default())

	overrides := map[string]json.RawMessage{
		"auto_store_threshold":      json.RawMessage(`0.9`),
		"ranking_weights.semantic":  json.RawMessage(`0.5`),
		"ranking_weights.keyword":   json.RawMessage(`0.4`),
		"ranking_weights.recency":   json.RawMessage(`0.1`),
		"retention.older_than_days": json.RawMessage(`30`),
	}
	require.NoError(t, store.ApplyOverrides(overrides))

	cur := store.Current()
	assert.InDelta(t, 0.9, cur.AutoStoreThreshold, 1e-9)
	assert.InDelta(t, 0.5, cur.RankingWeights.Semantic, 1e-9)
	assert.Equal(t, 30, cur.Retention.OlderThanDays)

	// Re-applying an empty override set restores the base configuration.
	require.NoError(t, store.ApplyOverrides(nil))
	assert.InDelta(t, 0.85, store.Current().AutoStoreThreshold, 1e-9)
}

func TestStoreApplyOverridesRejectsInvalidResult(t *testing.T) {
	store := NewStore(Default())

	err := store.ApplyOverrides(map[string]json.RawMessage{
		"ranking_weights.semantic": json.RawMessage(`0.9`),
	})
	require.Error(t, err)

	// The live snapshot is untouched on failure.
	assert.InDelta(t, 0.6, store.Current().RankingWeights.Semantic, 1e-9)
}
