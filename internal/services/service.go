// Package services wires the storage core together: it owns the write path
// (analyze → duplicate-detect → persist → index → enrich), the read path,
// the suggestion and feedback flows, and the operational surface (health,
// statistics, integrity, config reload) that both transports expose.
package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/analyzer"
	"github.com/memoryd/memoryd/internal/config"
	"github.com/memoryd/memoryd/internal/contextmgr"
	"github.com/memoryd/memoryd/internal/duplicate"
	"github.com/memoryd/memoryd/internal/extraction"
	"github.com/memoryd/memoryd/internal/integrity"
	"github.com/memoryd/memoryd/internal/learning"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/internal/monitor"
	"github.com/memoryd/memoryd/internal/repository"
	"github.com/memoryd/memoryd/internal/search"
	"github.com/memoryd/memoryd/internal/session"
	"github.com/memoryd/memoryd/internal/suggestion"
)

// Options carries the externally constructed dependencies.
type Options struct {
	Config     *config.Store
	Repository *repository.Repository
	Search     *search.Engine
	Learning   *learning.Engine
	Metrics    *monitor.Metrics // optional
	Logger     *zap.Logger
}

// Service is the memory service core consumed by both transports.
type Service struct {
	cfg      *config.Store
	repo     *repository.Repository
	engine   *search.Engine
	analyzer *analyzer.Analyzer
	learning *learning.Engine

	suggestions *suggestion.Lifecycle
	contextMgr  *contextmgr.Manager
	sessions    *session.Analyzer
	checker     *integrity.Checker
	metrics     *monitor.Metrics

	logger *zap.Logger
}

// New wires a Service from its dependencies. The suggestion lifecycle,
// context manager, session analyzer, and integrity checker are constructed
// here because the Service itself is their storage/search entry point.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		cfg:      opts.Config,
		repo:     opts.Repository,
		engine:   opts.Search,
		learning: opts.Learning,
		metrics:  opts.Metrics,
		logger:   logger,
	}

	s.analyzer = analyzer.New(analyzer.WithThresholdSource(opts.Learning))
	s.suggestions = suggestion.New(s, opts.Learning, logger.Named("suggestion"))
	s.contextMgr = contextmgr.New(opts.Repository, opts.Search, contextmgr.Config{
		LinkMinConfidence: opts.Config.Current().ContextLinkMinConfidence,
	}, logger.Named("contextmgr"))
	s.sessions = session.New(opts.Repository, opts.Search, session.Config{}, logger.Named("session"),
		session.WithSummarizer(buildSummarizer(opts.Config.Current(), logger)))
	s.checker = integrity.New(opts.Repository, integrity.Config{
		DuplicateThreshold: opts.Config.Current().DuplicateThresholds.Exact,
	}, logger.Named("integrity"))

	return s
}

// buildSummarizer constructs the configured LLM-backed session-summary
// refiner. Misconfiguration degrades to the no-op summarizer rather than
// failing startup: summary refinement is an enhancement, not a dependency.
func buildSummarizer(cfg *config.Config, logger *zap.Logger) extraction.Summarizer {
	provider := cfg.Extraction.Provider
	if provider == "" || provider == "disabled" {
		return &extraction.NoOpSummarizer{}
	}

	summarizer, err := extraction.NewSummarizer(extraction.ExtractionConfig{
		Enabled:  true,
		Provider: provider,
		Providers: map[string]extraction.Config{
			provider: {
				Model:     cfg.Extraction.Model,
				APIKey:    cfg.Extraction.APIKey.Value(),
				BaseURL:   cfg.Extraction.BaseURL,
				MaxTokens: cfg.Extraction.MaxTokens,
				Timeout:   cfg.Extraction.TimeoutS,
			},
		},
	})
	if err != nil {
		logger.Warn("summarizer unavailable, session summaries stay heuristic",
			zap.String("provider", provider), zap.Error(err))
		return &extraction.NoOpSummarizer{}
	}
	return summarizer
}

// Suggestions exposes the lifecycle for background cleanup wiring.
func (s *Service) Suggestions() *suggestion.Lifecycle { return s.suggestions }

// Repository exposes the record repository for background retention wiring.
func (s *Service) Repository() *repository.Repository { return s.repo }

// optimizer builds a duplicate.Optimizer from the live config snapshot, so
// runtime threshold overrides take effect on the next request.
func (s *Service) optimizer() *duplicate.Optimizer {
	cur := s.cfg.Current()
	return duplicate.New(s.engine, duplicate.Config{
		MinContentLength:         cur.MinContentLengthForDup,
		MaxSimilarPerDayCategory: cur.MaxSimilarPerDayPerCategory,
		Thresholds: duplicate.Thresholds{
			Exact:   cur.DuplicateThresholds.Exact,
			Near:    cur.DuplicateThresholds.Near,
			Related: cur.DuplicateThresholds.Related,
		},
	}, s.logger.Named("duplicate"))
}

// indexMetadata builds the metadata bag the Search Engine indexes for a
// conversation; the Duplicate Detector's scoring and the search filters both
// read these keys.
func indexMetadata(conv *model.Conversation) map[string]any {
	meta := map[string]any{
		"category":    string(conv.Metadata.AnalysisCategory),
		"tool_name":   conv.ToolName,
		"timestamp":   conv.Timestamp.UTC().Format(time.RFC3339),
		"auto_stored": conv.Metadata.AutoStored,
		"confidence":  conv.Metadata.Confidence,
		"tags":        []string(conv.Tags),
	}
	if conv.ProjectID != nil {
		meta["project_id"] = *conv.ProjectID
	}
	info := conv.Metadata.ExtractedInfo
	if len(info.Technologies) > 0 {
		meta["technologies"] = info.Technologies
	}
	if len(info.FilePaths) > 0 {
		meta["file_paths"] = info.FilePaths
	}
	if len(info.Decisions) > 0 {
		meta["decisions"] = info.Decisions
	}
	if len(info.Constraints) > 0 {
		meta["constraints"] = info.Constraints
	}
	return meta
}

// indexConversation adds a committed conversation to the search index.
// Indexing strictly follows the repository commit; a failure degrades to
// substring-searchability only and is logged, never propagated — the
// conversation itself must not be lost.
func (s *Service) indexConversation(ctx context.Context, conv *model.Conversation) {
	if _, err := s.engine.Add(ctx, conv.Content, indexMetadata(conv), conv.ID); err != nil {
		s.logger.Warn("indexing conversation failed; row remains substring-searchable",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}
