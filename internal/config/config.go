// Package config provides configuration loading for memoryd: YAML file plus
// environment overrides, validated at load time, with runtime overrides
// applied from the preference store through an atomically swapped snapshot.
package config

import (
	"fmt"
	"time"
)

// Config is the complete memoryd configuration.
type Config struct {
	AutoStoreThreshold          float64             `koanf:"auto_store_threshold" json:"auto_store_threshold"`
	SuggestThreshold            float64             `koanf:"suggest_threshold" json:"suggest_threshold"`
	DuplicateThresholds         DuplicateThresholds `koanf:"duplicate_thresholds" json:"duplicate_thresholds"`
	MinContentLengthForDup      int                 `koanf:"min_content_length_for_dup" json:"min_content_length_for_dup"`
	MaxSimilarPerDayPerCategory int                 `koanf:"max_similar_per_day_per_category" json:"max_similar_per_day_per_category"`
	RankingWeights              RankingWeights      `koanf:"ranking_weights" json:"ranking_weights"`
	EmbeddingDimension          int                 `koanf:"embedding_dimension" json:"embedding_dimension"`
	CircuitBreaker              CircuitBreaker      `koanf:"circuit_breaker" json:"circuit_breaker"`
	Retry                       Retry               `koanf:"retry" json:"retry"`
	SuggestionTTLHours          int                 `koanf:"suggestion_ttl_hours" json:"suggestion_ttl_hours"`
	ContextLinkMinConfidence    float64             `koanf:"context_link_min_confidence" json:"context_link_min_confidence"`
	Retention                   Retention           `koanf:"retention" json:"retention"`
	Server                      Server              `koanf:"server" json:"server"`
	Repository                  Repository          `koanf:"repository" json:"repository"`
	VectorStore                 VectorStore         `koanf:"vectorstore" json:"vectorstore"`
	Embeddings                  Embeddings          `koanf:"embeddings" json:"embeddings"`
	Encryption                  Encryption          `koanf:"encryption" json:"encryption"`
	Extraction                  Extraction          `koanf:"extraction" json:"extraction"`
	Observability               Observability       `koanf:"observability" json:"observability"`
}

// DuplicateThresholds are the similarity-bucket cutoffs for the duplicate
// detector.
type DuplicateThresholds struct {
	Exact   float64 `koanf:"exact" json:"exact"`
	Near    float64 `koanf:"near" json:"near"`
	Related float64 `koanf:"related" json:"related"`
}

// RankingWeights combine the search engine's three signals. Must sum to 1.0.
type RankingWeights struct {
	Semantic float64 `koanf:"semantic" json:"semantic"`
	Keyword  float64 `koanf:"keyword" json:"keyword"`
	Recency  float64 `koanf:"recency" json:"recency"`
}

// CircuitBreaker bounds the semantic sub-search breaker.
type CircuitBreaker struct {
	FailureThreshold int `koanf:"failure_threshold" json:"failure_threshold"`
	RecoveryTimeoutS int `koanf:"recovery_timeout_s" json:"recovery_timeout_s"`
}

// Retry bounds embedder/vector retry behavior.
type Retry struct {
	MaxAttempts int     `koanf:"max_attempts" json:"max_attempts"`
	BaseDelayS  float64 `koanf:"base_delay_s" json:"base_delay_s"`
}

// Retention bounds the background conversation cleanup.
type Retention struct {
	OlderThanDays int `koanf:"older_than_days" json:"older_than_days"`
	KeepMinimum   int `koanf:"keep_minimum" json:"keep_minimum"`
}

// Server holds HTTP server settings.
type Server struct {
	Host            string   `koanf:"host" json:"host"`
	HTTPPort        int      `koanf:"http_port" json:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

// Repository holds durable-store settings.
type Repository struct {
	DBPath string `koanf:"db_path" json:"db_path"`
}

// VectorStore selects and configures the vector backend.
type VectorStore struct {
	Provider string  `koanf:"provider" json:"provider"` // "chromem" (default) or "qdrant"
	Chromem  Chromem `koanf:"chromem" json:"chromem"`
	Qdrant   Qdrant  `koanf:"qdrant" json:"qdrant"`
}

// Chromem configures the embedded chromem-go store.
type Chromem struct {
	Path       string `koanf:"path" json:"path"`
	VectorSize int    `koanf:"vector_size" json:"vector_size"`
}

// Qdrant configures the optional external Qdrant store.
type Qdrant struct {
	Host           string `koanf:"host" json:"host"`
	Port           int    `koanf:"port" json:"port"`
	CollectionName string `koanf:"collection_name" json:"collection_name"`
}

// Embeddings configures the embedding provider.
type Embeddings struct {
	Provider string `koanf:"provider" json:"provider"` // "fastembed" (default) or "disabled"
	Model    string `koanf:"model" json:"model"`
	CacheDir string `koanf:"cache_dir" json:"cache_dir"`
}

// Encryption configures at-rest encryption of stored conversation content.
// With no passphrase, data is stored in plaintext. The passphrase is
// normally supplied via the ENCRYPTION_PASSPHRASE environment variable.
type Encryption struct {
	Passphrase Secret `koanf:"passphrase" json:"passphrase"`
	SaltPath   string `koanf:"salt_path" json:"salt_path"`
}

// Extraction configures the optional LLM-backed session-summary refiner.
type Extraction struct {
	Provider  string `koanf:"provider" json:"provider"` // "disabled" (default), "anthropic", or "openai"
	Model     string `koanf:"model" json:"model"`
	APIKey    Secret `koanf:"api_key" json:"api_key"`
	BaseURL   string `koanf:"base_url" json:"base_url"`
	MaxTokens int    `koanf:"max_tokens" json:"max_tokens"`
	TimeoutS  int    `koanf:"timeout_s" json:"timeout_s"`
}

// Observability holds telemetry settings.
type Observability struct {
	EnableTelemetry bool   `koanf:"enable_telemetry" json:"enable_telemetry"`
	ServiceName     string `koanf:"service_name" json:"service_name"`
}

// Default returns a Config populated with every spec default.
func Default() *Config {
	return &Config{
		AutoStoreThreshold:          0.85,
		SuggestThreshold:            0.60,
		DuplicateThresholds:         DuplicateThresholds{Exact: 0.95, Near: 0.80, Related: 0.60},
		MinContentLengthForDup:      20,
		MaxSimilarPerDayPerCategory: 20,
		RankingWeights:              RankingWeights{Semantic: 0.6, Keyword: 0.3, Recency: 0.1},
		EmbeddingDimension:          384,
		CircuitBreaker:              CircuitBreaker{FailureThreshold: 5, RecoveryTimeoutS: 60},
		Retry:                       Retry{MaxAttempts: 2, BaseDelayS: 0.5},
		SuggestionTTLHours:          24,
		ContextLinkMinConfidence:    0.75,
		Retention:                   Retention{OlderThanDays: 365, KeepMinimum: 100},
		Server: Server{
			Host:            "localhost",
			HTTPPort:        9090,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Repository:  Repository{DBPath: "~/.config/memoryd/memoryd.db"},
		VectorStore: VectorStore{Provider: "chromem", Chromem: Chromem{Path: "~/.config/memoryd/vectors", VectorSize: 384}},
		Embeddings:  Embeddings{Provider: "fastembed"},
		Encryption:  Encryption{SaltPath: "~/.config/memoryd/encryption.salt"},
		Extraction:  Extraction{Provider: "disabled"},
		Observability: Observability{
			ServiceName: "memoryd",
		},
	}
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.AutoStoreThreshold == 0 {
		cfg.AutoStoreThreshold = def.AutoStoreThreshold
	}
	if cfg.SuggestThreshold == 0 {
		cfg.SuggestThreshold = def.SuggestThreshold
	}
	if cfg.DuplicateThresholds == (DuplicateThresholds{}) {
		cfg.DuplicateThresholds = def.DuplicateThresholds
	}
	if cfg.MinContentLengthForDup == 0 {
		cfg.MinContentLengthForDup = def.MinContentLengthForDup
	}
	if cfg.MaxSimilarPerDayPerCategory == 0 {
		cfg.MaxSimilarPerDayPerCategory = def.MaxSimilarPerDayPerCategory
	}
	if cfg.RankingWeights == (RankingWeights{}) {
		cfg.RankingWeights = def.RankingWeights
	}
	if cfg.EmbeddingDimension == 0 {
		cfg.EmbeddingDimension = def.EmbeddingDimension
	}
	if cfg.CircuitBreaker == (CircuitBreaker{}) {
		cfg.CircuitBreaker = def.CircuitBreaker
	}
	if cfg.Retry == (Retry{}) {
		cfg.Retry = def.Retry
	}
	if cfg.SuggestionTTLHours == 0 {
		cfg.SuggestionTTLHours = def.SuggestionTTLHours
	}
	if cfg.ContextLinkMinConfidence == 0 {
		cfg.ContextLinkMinConfidence = def.ContextLinkMinConfidence
	}
	if cfg.Retention == (Retention{}) {
		cfg.Retention = def.Retention
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = def.Server.Host
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = def.Server.HTTPPort
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Repository.DBPath == "" {
		cfg.Repository.DBPath = def.Repository.DBPath
	}
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = def.VectorStore.Provider
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = def.VectorStore.Chromem.Path
	}
	if cfg.VectorStore.Chromem.VectorSize == 0 {
		cfg.VectorStore.Chromem.VectorSize = cfg.EmbeddingDimension
	}
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = def.Embeddings.Provider
	}
	if cfg.Encryption.SaltPath == "" {
		cfg.Encryption.SaltPath = def.Encryption.SaltPath
	}
	if cfg.Extraction.Provider == "" {
		cfg.Extraction.Provider = def.Extraction.Provider
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = def.Observability.ServiceName
	}
}

// Validate rejects configurations that would violate spec invariants.
func (c *Config) Validate() error {
	if c.AutoStoreThreshold < 0 || c.AutoStoreThreshold > 1 {
		return fmt.Errorf("config: auto_store_threshold must be in [0,1], got %v", c.AutoStoreThreshold)
	}
	if c.SuggestThreshold < 0 || c.SuggestThreshold > 1 {
		return fmt.Errorf("config: suggest_threshold must be in [0,1], got %v", c.SuggestThreshold)
	}
	if c.SuggestThreshold > c.AutoStoreThreshold {
		return fmt.Errorf("config: suggest_threshold %v exceeds auto_store_threshold %v", c.SuggestThreshold, c.AutoStoreThreshold)
	}

	t := c.DuplicateThresholds
	if !(t.Exact >= t.Near && t.Near >= t.Related) {
		return fmt.Errorf("config: duplicate_thresholds must satisfy exact >= near >= related, got %+v", t)
	}

	sum := c.RankingWeights.Semantic + c.RankingWeights.Keyword + c.RankingWeights.Recency
	if sum < 1.0-1e-9 || sum > 1.0+1e-9 {
		return fmt.Errorf("config: ranking_weights must sum to 1.0, got %v", sum)
	}

	if c.EmbeddingDimension <= 0 {
		return fmt.Errorf("config: embedding_dimension must be positive, got %d", c.EmbeddingDimension)
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("config: unknown vectorstore provider %q", c.VectorStore.Provider)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "disabled":
	default:
		return fmt.Errorf("config: unknown embeddings provider %q", c.Embeddings.Provider)
	}

	switch c.Extraction.Provider {
	case "disabled", "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown extraction provider %q", c.Extraction.Provider)
	}
	if c.Extraction.Provider != "disabled" && c.Extraction.APIKey == "" {
		return fmt.Errorf("config: extraction provider %q requires an api_key", c.Extraction.Provider)
	}

	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("config: server.http_port out of range: %d", c.Server.HTTPPort)
	}
	return nil
}

// SuggestionTTL returns the suggestion eviction age as a duration.
func (c *Config) SuggestionTTL() time.Duration {
	return time.Duration(c.SuggestionTTLHours) * time.Hour
}

// RetryBaseDelay returns the retry base delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayS * float64(time.Second))
}

// RecoveryTimeout returns the breaker recovery window as a duration.
func (c *Config) RecoveryTimeout() time.Duration {
	return time.Duration(c.CircuitBreaker.RecoveryTimeoutS) * time.Second
}
