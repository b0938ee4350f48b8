package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/analyzer"
	"github.com/memoryd/memoryd/internal/config"
	"github.com/memoryd/memoryd/internal/embeddings"
	"github.com/memoryd/memoryd/internal/encryption"
	httpserver "github.com/memoryd/memoryd/internal/http"
	"github.com/memoryd/memoryd/internal/learning"
	"github.com/memoryd/memoryd/internal/mcp"
	"github.com/memoryd/memoryd/internal/monitor"
	"github.com/memoryd/memoryd/internal/repository"
	"github.com/memoryd/memoryd/internal/search"
	"github.com/memoryd/memoryd/internal/services"
	"github.com/memoryd/memoryd/internal/telemetry"
	"github.com/memoryd/memoryd/internal/vectorstore"
)

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Observability.EnableTelemetry {
		telCfg := telemetry.NewDefaultConfig()
		telCfg.Enabled = true
		telCfg.ServiceName = cfg.Observability.ServiceName
		telCfg.ServiceVersion = version
		tel, err := telemetry.New(ctx, telCfg)
		if err != nil {
			logger.Warn("telemetry init failed, continuing without export", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()
		}
	}

	cipher, err := buildCipher(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing encryption: %w", err)
	}

	repo, err := repository.Open(repository.Config{
		Path:   cfg.Repository.DBPath,
		Cipher: cipher,
	}, logger.Named("repository"))
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	defer func() { _ = repo.Close() }()

	vector := buildVectorStore(cfg, logger)
	if vector != nil {
		defer func() { _ = vector.Close() }()
	}

	engine, err := search.New(repo.DB(), vector, search.Config{
		Weights: search.RankingWeights{
			Semantic: cfg.RankingWeights.Semantic,
			Keyword:  cfg.RankingWeights.Keyword,
			Recency:  cfg.RankingWeights.Recency,
		},
		RetryAttempts: cfg.Retry.MaxAttempts,
		RetryBaseWait: cfg.RetryBaseDelay(),
	}, logger.Named("search"))
	if err != nil {
		return fmt.Errorf("building search engine: %w", err)
	}

	cfgStore := config.NewStore(cfg)
	learner := learning.New(ctx, repo, logger.Named("learning"),
		learning.WithDefaultThresholds(thresholdsFrom(cfgStore)))

	svc := services.New(services.Options{
		Config:     cfgStore,
		Repository: repo,
		Search:     engine,
		Learning:   learner,
		Metrics:    monitor.NewMetrics(logger.Named("monitor")),
		Logger:     logger,
	})

	// Preference-backed overrides apply from the last run before serving.
	if err := svc.ReloadConfig(ctx); err != nil {
		logger.Warn("applying configuration overrides failed", zap.Error(err))
	}

	go repo.RunRetentionLoop(ctx, repository.RetentionConfig{
		OlderThanDays: cfg.Retention.OlderThanDays,
		KeepMinimum:   cfg.Retention.KeepMinimum,
	}, logger.Named("retention"))
	go runSuggestionCleanup(ctx, svc, cfgStore, logger.Named("suggestion-cleanup"))

	if stdioMode {
		return serveMCP(ctx, svc, logger)
	}
	return serveHTTP(ctx, svc, cfg, logger)
}

// newLogger selects production or development logging via MEMORYD_ENV;
// stdio mode always logs to stderr so stdout stays protocol-clean.
func newLogger() (*zap.Logger, error) {
	if os.Getenv("MEMORYD_ENV") == "development" {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// buildCipher initializes at-rest encryption from the configured passphrase
// (ENCRYPTION_PASSPHRASE, or encryption.passphrase in the config file).
// With no passphrase the cipher is a pass-through. Key-derivation failures
// are fatal: silently serving plaintext when the operator asked for
// encryption would be worse than refusing to start.
func buildCipher(cfg *config.Config, logger *zap.Logger) (*encryption.Service, error) {
	passphrase := cfg.Encryption.Passphrase.Value()
	if passphrase == "" {
		return encryption.New("", nil, logger.Named("encryption"))
	}
	salt, err := encryption.LoadOrCreateSalt(cfg.Encryption.SaltPath)
	if err != nil {
		return nil, err
	}
	return encryption.New(passphrase, salt, logger.Named("encryption"))
}

// buildVectorStore assembles the embedder and vector store; any failure
// degrades to keyword-only search rather than refusing to start.
func buildVectorStore(cfg *config.Config, logger *zap.Logger) vectorstore.Store {
	if cfg.Embeddings.Provider == "disabled" {
		logger.Info("embeddings disabled, running keyword-only")
		return nil
	}

	embedder, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider,
		Model:    cfg.Embeddings.Model,
		CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		logger.Warn("embedder unavailable, running keyword-only", zap.Error(err))
		return nil
	}

	store, err := vectorstore.NewStore(vectorstore.Config{
		Provider: cfg.VectorStore.Provider,
		Chromem: vectorstore.ChromemConfig{
			Path:       cfg.VectorStore.Chromem.Path,
			VectorSize: cfg.VectorStore.Chromem.VectorSize,
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.VectorStore.Qdrant.Host,
			Port:       cfg.VectorStore.Qdrant.Port,
			VectorSize: uint64(cfg.EmbeddingDimension),
		},
	}, embedder, logger.Named("vectorstore"))
	if err != nil {
		logger.Warn("vector store unavailable, running keyword-only", zap.Error(err))
		_ = embedder.Close()
		return nil
	}
	return store
}

// thresholdsFrom adapts the live config snapshot into the learning engine's
// baseline thresholds.
func thresholdsFrom(store *config.Store) func() analyzer.Thresholds {
	return func() analyzer.Thresholds {
		cur := store.Current()
		return analyzer.Thresholds{AutoStore: cur.AutoStoreThreshold, Suggest: cur.SuggestThreshold}
	}
}

// runSuggestionCleanup evicts expired pending suggestions hourly.
func runSuggestionCleanup(ctx context.Context, svc *services.Service, cfgStore *config.Store, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := svc.Suggestions().Cleanup(cfgStore.Current().SuggestionTTL())
			if evicted > 0 {
				logger.Info("evicted expired suggestions", zap.Int("count", evicted))
			}
		}
	}
}

func serveMCP(ctx context.Context, svc *services.Service, logger *zap.Logger) error {
	server, err := mcp.NewServer(&mcp.Config{
		Name:    "memoryd",
		Version: version,
		Logger:  logger.Named("mcp"),
	}, svc)
	if err != nil {
		return fmt.Errorf("building MCP server: %w", err)
	}
	return server.Run(ctx)
}

func serveHTTP(ctx context.Context, svc *services.Service, cfg *config.Config, logger *zap.Logger) error {
	server, err := httpserver.NewServer(svc, logger.Named("http"), &httpserver.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.HTTPPort,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("building HTTP server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
