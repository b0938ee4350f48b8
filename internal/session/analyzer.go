// Package session groups conversations into temporally and topically
// coherent sessions, summarizes each session into a new memory, and
// cross-links the summary with its members.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/extraction"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// conversationStore is the slice of the Record Repository the analyzer needs.
type conversationStore interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	ByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]model.Conversation, error)
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	CreateContextLinks(ctx context.Context, links []*model.ContextLink) error
}

// indexer is the Search Engine's write surface, used so a session summary is
// findable like any other memory.
type indexer interface {
	Add(ctx context.Context, content string, metadata map[string]any, externalID string) (int64, error)
}

// ProblemSolution pairs a conversation that raised a problem with the
// adjacent conversation that resolved it.
type ProblemSolution struct {
	ProblemID  string `json:"problem_id"`
	SolutionID string `json:"solution_id"`
	Summary    string `json:"summary"`
}

// Analysis is the result of clustering and scoring one session.
type Analysis struct {
	ConversationIDs []string          `json:"conversation_ids"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	Themes          []string          `json:"themes"`
	ProblemSolution []ProblemSolution `json:"problem_solution_pairs"`
	ValueScore      float64           `json:"value_score"`
	Clusters        [][]string        `json:"clusters"`
}

// Config bounds the analyzer's behavior.
type Config struct {
	// GapThreshold splits clusters when consecutive conversations are
	// further apart than this. Default 30 minutes.
	GapThreshold time.Duration
	// ThemeLimit caps extracted recurring themes.
	ThemeLimit int
	// DefaultWindow is the implicit recent window when no ids are given.
	DefaultWindow time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.GapThreshold == 0 {
		c.GapThreshold = 30 * time.Minute
	}
	if c.ThemeLimit == 0 {
		c.ThemeLimit = 5
	}
	if c.DefaultWindow == 0 {
		c.DefaultWindow = 24 * time.Hour
	}
}

// Analyzer implements the Session Analyzer.
type Analyzer struct {
	store      conversationStore
	indexer    indexer
	summarizer extraction.Summarizer
	cfg        Config
	logger     *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithSummarizer refines problem/solution summaries through an LLM-backed
// summarizer when one is configured and available. Refinement is
// best-effort; the heuristic summary stands when the call fails.
func WithSummarizer(s extraction.Summarizer) Option {
	return func(a *Analyzer) { a.summarizer = s }
}

// New constructs an Analyzer. indexer may be nil; session summaries are then
// only reachable through the Repository until the next index rebuild.
func New(store conversationStore, indexer indexer, cfg Config, logger *zap.Logger, opts ...Option) *Analyzer {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{store: store, indexer: indexer, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze clusters the given conversations (or, with no ids, the implicit
// recent window) and emits an Analysis.
func (a *Analyzer) Analyze(ctx context.Context, ids []string) (*Analysis, error) {
	convs, err := a.resolve(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, apierrors.InvalidArgument("no conversations to analyze")
	}

	sort.Slice(convs, func(i, j int) bool { return convs[i].Timestamp.Before(convs[j].Timestamp) })

	analysis := &Analysis{
		StartTime: convs[0].Timestamp,
		EndTime:   convs[len(convs)-1].Timestamp,
	}
	for _, c := range convs {
		analysis.ConversationIDs = append(analysis.ConversationIDs, c.ID)
	}

	analysis.Clusters = a.cluster(convs)
	analysis.Themes = a.themes(convs)
	analysis.ProblemSolution = problemSolutionPairs(convs)
	analysis.ValueScore = valueScore(convs)

	a.refineSummaries(ctx, analysis)

	return analysis, nil
}

// refineSummaries replaces heuristic problem/solution summaries with
// LLM-refined ones when a summarizer is configured. Failures keep the
// heuristic summary.
func (a *Analyzer) refineSummaries(ctx context.Context, analysis *Analysis) {
	if a.summarizer == nil || !a.summarizer.Available() {
		return
	}
	for i, ps := range analysis.ProblemSolution {
		refined, err := a.summarizer.Summarize(ctx, extraction.DecisionCandidate{
			Content:    ps.Summary,
			Confidence: analysis.ValueScore,
		})
		if err != nil {
			a.logger.Warn("summary refinement failed, keeping heuristic summary", zap.Error(err))
			continue
		}
		if refined.Summary != "" {
			analysis.ProblemSolution[i].Summary = refined.Summary
		}
	}
}

func (a *Analyzer) resolve(ctx context.Context, ids []string) ([]model.Conversation, error) {
	if len(ids) == 0 {
		end := time.Now().UTC()
		return a.store.ByTimeRange(ctx, end.Add(-a.cfg.DefaultWindow), end, 200)
	}

	convs := make([]model.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := a.store.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, nil
}

// cluster splits timestamp-sorted conversations wherever the gap between
// consecutive items exceeds the threshold.
func (a *Analyzer) cluster(convs []model.Conversation) [][]string {
	var clusters [][]string
	var current []string
	var last time.Time

	for _, c := range convs {
		if len(current) > 0 && c.Timestamp.Sub(last) > a.cfg.GapThreshold {
			clusters = append(clusters, current)
			current = nil
		}
		current = append(current, c.ID)
		last = c.Timestamp
	}
	if len(current) > 0 {
		clusters = append(clusters, current)
	}
	return clusters
}

// themes counts token frequency across the session's contents and tags,
// returning the most recurring terms.
func (a *Analyzer) themes(convs []model.Conversation) []string {
	counts := make(map[string]int)
	for _, c := range convs {
		for _, tok := range tokenize(c.Content) {
			counts[tok]++
		}
		for _, tag := range c.Tags {
			counts[tag] += 2 // tags are already-curated signals
		}
	}

	type kv struct {
		token string
		count int
	}
	ranked := make([]kv, 0, len(counts))
	for tok, n := range counts {
		if n < 2 {
			continue
		}
		ranked = append(ranked, kv{tok, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].token < ranked[j].token
	})

	themes := make([]string, 0, a.cfg.ThemeLimit)
	for _, r := range ranked {
		themes = append(themes, r.token)
		if len(themes) == a.cfg.ThemeLimit {
			break
		}
	}
	return themes
}

// problemSolutionPairs pairs each solution- or decision-categorized
// conversation with the conversation immediately preceding it.
func problemSolutionPairs(convs []model.Conversation) []ProblemSolution {
	var pairs []ProblemSolution
	for i := 1; i < len(convs); i++ {
		cat := convs[i].Metadata.AnalysisCategory
		if cat != model.CategorySolution && cat != model.CategoryDecision {
			continue
		}
		pairs = append(pairs, ProblemSolution{
			ProblemID:  convs[i-1].ID,
			SolutionID: convs[i].ID,
			Summary:    firstLine(convs[i].Content),
		})
	}
	return pairs
}

// valueScore weights decision and solution conversations over the total.
func valueScore(convs []model.Conversation) float64 {
	if len(convs) == 0 {
		return 0
	}
	weighted := 0.0
	for _, c := range convs {
		switch c.Metadata.AnalysisCategory {
		case model.CategoryDecision:
			weighted += 1.0
		case model.CategorySolution:
			weighted += 0.8
		case model.CategoryPreference, model.CategoryProjectContext:
			weighted += 0.4
		default:
			weighted += 0.1
		}
	}
	score := weighted / float64(len(convs))
	if score > 1 {
		score = 1
	}
	return score
}

// CreateSessionMemory materializes an Analysis as a new conversation tagged
// as a session summary, indexed like any other memory.
func (a *Analyzer) CreateSessionMemory(ctx context.Context, analysis *Analysis, toolName string) (*model.Conversation, error) {
	if analysis == nil || len(analysis.ConversationIDs) == 0 {
		return nil, apierrors.InvalidArgument("analysis with at least one conversation is required")
	}
	if toolName == "" {
		toolName = "session"
	}

	conv := &model.Conversation{
		ToolName: toolName,
		Content:  renderSummary(analysis),
		Tags:     append([]string{"session_summary"}, analysis.Themes...),
		Metadata: model.ConversationMetadata{
			AnalysisCategory: model.CategoryManual,
			StorageReason:    "session summary",
			Extra: map[string]any{
				"session_member_ids": analysis.ConversationIDs,
				"session_value":      analysis.ValueScore,
			},
		},
	}
	if err := a.store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}

	if a.indexer != nil {
		meta := map[string]any{
			"category":  string(model.CategoryManual),
			"tool_name": toolName,
			"timestamp": conv.Timestamp.UTC().Format(time.RFC3339),
			"tags":      []string(conv.Tags),
		}
		if _, err := a.indexer.Add(ctx, conv.Content, meta, conv.ID); err != nil {
			a.logger.Warn("indexing session summary failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}
	return conv, nil
}

// LinkSessionMemories creates the bidirectional session_member /
// session_summary links between a summary and each member, atomically.
func (a *Analyzer) LinkSessionMemories(ctx context.Context, summaryID string, memberIDs []string) error {
	if summaryID == "" || len(memberIDs) == 0 {
		return apierrors.InvalidArgument("summary id and at least one member id are required")
	}

	links := make([]*model.ContextLink, 0, 2*len(memberIDs))
	for _, member := range memberIDs {
		links = append(links,
			&model.ContextLink{
				SourceID:         summaryID,
				TargetID:         member,
				RelationshipType: "session_member",
				ConfidenceScore:  1.0,
			},
			&model.ContextLink{
				SourceID:         member,
				TargetID:         summaryID,
				RelationshipType: "session_summary",
				ConfidenceScore:  1.0,
			},
		)
	}
	return a.store.CreateContextLinks(ctx, links)
}

func renderSummary(analysis *Analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session summary (%s – %s)\n",
		analysis.StartTime.UTC().Format(time.RFC3339),
		analysis.EndTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Conversations: %d across %d clusters\n",
		len(analysis.ConversationIDs), len(analysis.Clusters))
	if len(analysis.Themes) > 0 {
		fmt.Fprintf(&b, "Themes: %s\n", strings.Join(analysis.Themes, ", "))
	}
	for _, ps := range analysis.ProblemSolution {
		fmt.Fprintf(&b, "Resolved: %s\n", ps.Summary)
	}
	fmt.Fprintf(&b, "Session value: %.2f\n", analysis.ValueScore)
	return b.String()
}

func firstLine(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// tokenize mirrors the search engine's normalization (lowercase, length ≥ 3,
// stopword-stripped) without importing its indexing internals.
func tokenize(content string) []string {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "this": {}, "that": {}, "with": {},
	"have": {}, "from": {}, "was": {}, "were": {}, "what": {}, "when": {},
	"use": {}, "using": {}, "how": {}, "why": {}, "should": {}, "would": {},
}
