// Package contextmgr implements the Context Manager: best-effort project
// detection, technical-domain tagging, and context-link proposal on every
// conversation write. Nothing in this package is allowed to fail the write
// that triggered it.
package contextmgr

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/extraction"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/internal/search"
)

// projectStore is the slice of the Record Repository the manager needs.
type projectStore interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	TouchProject(ctx context.Context, id string) error
	CreateContextLink(ctx context.Context, link *model.ContextLink) error
}

// searcher is the slice of the Search Engine used for link proposal.
type searcher interface {
	Search(ctx context.Context, query string, limit int, filters search.Filter, mode search.Mode) ([]search.Result, error)
}

// Config bounds the manager's behavior.
type Config struct {
	// LinkMinConfidence is the combined-score floor below which no
	// ContextLink is proposed. Config key: context_link_min_confidence.
	LinkMinConfidence float64
	// LinkCandidateLimit caps how many similar conversations are considered.
	LinkCandidateLimit int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.LinkMinConfidence == 0 {
		c.LinkMinConfidence = 0.75
	}
	if c.LinkCandidateLimit == 0 {
		c.LinkCandidateLimit = 5
	}
}

// Manager runs the three per-write enrichment steps.
type Manager struct {
	projects projectStore
	engine   searcher
	tags     *extraction.DefaultTagExtractor
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Manager.
func New(projects projectStore, engine searcher, cfg Config, logger *zap.Logger) *Manager {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		projects: projects,
		engine:   engine,
		tags:     extraction.NewTagExtractor(extraction.DefaultTagRules),
		cfg:      cfg,
		logger:   logger,
	}
}

// DetectProject matches extracted file paths and content keywords against
// known projects' Path and Name, bumping LastAccessed on a hit. Returns the
// matched project id or "". Any failure is logged and reported as no match.
func (m *Manager) DetectProject(ctx context.Context, content string, info model.ExtractedInfo) string {
	defer m.recoverStep("detect project")

	projects, err := m.projects.ListProjects(ctx)
	if err != nil {
		m.logger.Warn("project detection skipped, listing failed", zap.Error(err))
		return ""
	}

	lowered := strings.ToLower(content)
	for _, p := range projects {
		if m.matchesProject(p, lowered, info.FilePaths) {
			if err := m.projects.TouchProject(ctx, p.ID); err != nil {
				m.logger.Warn("bumping project last_accessed failed", zap.String("project_id", p.ID), zap.Error(err))
			}
			return p.ID
		}
	}
	return ""
}

func (m *Manager) matchesProject(p model.Project, loweredContent string, filePaths []string) bool {
	if p.Path != nil && *p.Path != "" {
		prefix := strings.ToLower(strings.TrimRight(*p.Path, "/"))
		for _, fp := range filePaths {
			if strings.HasPrefix(strings.ToLower(fp), prefix) {
				return true
			}
		}
	}
	name := strings.ToLower(strings.TrimSpace(p.Name))
	return name != "" && strings.Contains(loweredContent, name)
}

// DomainTags categorizes content into technical-domain tags using the shared
// keyword rules.
func (m *Manager) DomainTags(content string) []string {
	return m.tags.ExtractTags(content)
}

// ProposeLinks searches for semantically similar conversations and creates a
// "related" ContextLink for each hit above the confidence floor. Called
// after the conversation is committed and indexed; failures are logged only.
func (m *Manager) ProposeLinks(ctx context.Context, conversationID, content string) {
	defer m.recoverStep("propose links")
	if m.engine == nil {
		return
	}

	results, err := m.engine.Search(ctx, content, m.cfg.LinkCandidateLimit, search.NewFilter(), search.ModeHybrid)
	if err != nil {
		m.logger.Warn("context link search failed", zap.Error(err))
		return
	}

	for _, r := range results {
		if r.ExternalID == "" || r.ExternalID == conversationID {
			continue
		}
		if r.Combined < m.cfg.LinkMinConfidence {
			continue
		}
		link := &model.ContextLink{
			SourceID:         conversationID,
			TargetID:         r.ExternalID,
			RelationshipType: "related",
			ConfidenceScore:  r.Combined,
		}
		if err := m.projects.CreateContextLink(ctx, link); err != nil {
			m.logger.Warn("creating context link failed",
				zap.String("source_id", conversationID),
				zap.String("target_id", r.ExternalID),
				zap.Error(err))
		}
	}
}

// recoverStep absorbs panics from a best-effort step so enrichment can never
// take down the write path.
func (m *Manager) recoverStep(step string) {
	if r := recover(); r != nil {
		m.logger.Error("context enrichment step panicked", zap.String("step", step), zap.Any("panic", r))
	}
}
