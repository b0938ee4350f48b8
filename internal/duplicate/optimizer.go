package duplicate

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/analyzer"
	"github.com/memoryd/memoryd/internal/search"
)

// mergeSeparator marks the boundary between an original conversation's
// content and content merged into it from a near-duplicate.
const mergeSeparator = "\n\n--- merged ---\n\n"

// searchEngine is the narrow slice of internal/search.Engine the Optimizer
// needs, letting tests supply a stub instead of a real engine.
type searchEngine interface {
	Search(ctx context.Context, query string, limit int, filters search.Filter, mode search.Mode) ([]search.Result, error)
}

// Optimizer implements the five-step duplicate-detection algorithm.
// Candidate metadata is expected to carry the same keys the write-path
// orchestrator indexes on every Add: "tool_name", "project_id", "category",
// "timestamp" (RFC3339), and the ExtractedInfo slices
// ("technologies", "file_paths", "decisions", "constraints").
type Optimizer struct {
	engine searchEngine
	cfg    Config
	logger *zap.Logger
}

// New constructs an Optimizer backed by the given Search Engine.
func New(engine searchEngine, cfg Config, logger *zap.Logger) *Optimizer {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{engine: engine, cfg: cfg, logger: logger}
}

// Candidate is one scored duplicate candidate, as surfaced by the
// check_for_duplicates operation.
type Candidate struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Similarity float64   `json:"similarity"`
	MatchType  string    `json:"match_type"` // exact | near | related | unrelated
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

type scored struct {
	result     search.Result
	similarity float64
	class      matchClass
	timestamp  time.Time
}

// Candidates searches for and scores duplicate candidates without making a
// storage decision.
func (o *Optimizer) Candidates(ctx context.Context, content string, metadata map[string]any, toolName, projectID string) ([]Candidate, error) {
	candidates, err := o.scoreCandidates(ctx, content, metadata, toolName, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, Candidate{
			ID:         c.result.ExternalID,
			Content:    c.result.Content,
			Similarity: c.similarity,
			MatchType:  c.class.String(),
			Timestamp:  c.timestamp,
		})
	}
	return out, nil
}

func (o *Optimizer) scoreCandidates(ctx context.Context, content string, metadata map[string]any, toolName, projectID string) ([]scored, error) {
	filter := search.NewFilter()
	if projectID != "" {
		filter = filter.Eq("project_id", projectID)
	}

	results, err := o.engine.Search(ctx, content, o.cfg.CandidateLimit, filter, search.ModeHybrid)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -o.cfg.RecencyWindowDays)
	originalTokens := tokenSet(content)
	originalMeta := mergeMetadata(metadata, toolName, projectID)

	var candidates []scored
	for _, r := range results {
		if len(strings.TrimSpace(r.Content)) < o.cfg.MinContentLength {
			continue
		}
		ts := candidateTimestamp(r.Metadata)
		if !ts.IsZero() && ts.Before(cutoff) {
			continue
		}

		similarity := o.similarity(r, originalTokens, originalMeta)
		class := o.cfg.Thresholds.classify(similarity)
		candidates = append(candidates, scored{result: r, similarity: similarity, class: class, timestamp: ts})
	}
	return candidates, nil
}

// Optimize runs the five-step algorithm and returns a storage Decision.
// Search Engine errors are fail-open: the Optimizer logs a warning and
// returns NewStoreDecision rather than blocking the write.
func (o *Optimizer) Optimize(ctx context.Context, content string, metadata map[string]any, analysis analyzer.AnalysisResult, toolName, projectID string) (Decision, error) {
	candidates, err := o.scoreCandidates(ctx, content, metadata, toolName, projectID)
	if err != nil {
		o.logger.Warn("duplicate candidate search failed, storing fail-open", zap.Error(err))
		return NewStoreDecision(analysis.Confidence), nil
	}

	confidence := analysis.Confidence
	corroborating := 0
	for _, c := range candidates {
		if c.class == classNear || c.class == classRelated {
			corroborating++
		}
	}
	if corroborating > 0 {
		confidence = clamp01(confidence + o.cfg.CorroborationBump)
	}

	// Step 4: decision policy, in priority order.
	for _, c := range candidates {
		if c.class == classExact {
			return NewSkipDecision(c.result.ExternalID, c.similarity, confidence), nil
		}
	}

	near := make([]scored, 0)
	category, _ := metadata["category"].(string)
	for _, c := range candidates {
		if c.class != classNear {
			continue
		}
		if cat, _ := c.result.Metadata["category"].(string); cat == category {
			near = append(near, c)
		}
	}
	if len(near) > 0 {
		sort.Slice(near, func(i, j int) bool {
			if near[i].similarity != near[j].similarity {
				return near[i].similarity > near[j].similarity
			}
			return near[i].timestamp.After(near[j].timestamp)
		})
		best := near[0]
		merged := mergeContent(content, best.result.Content)
		return NewMergeDecision(best.result.ExternalID, merged, best.similarity, confidence), nil
	}

	relatedToday := 0
	today := time.Now().UTC().Format("2006-01-02")
	for _, c := range candidates {
		if c.class != classRelated {
			continue
		}
		cat, _ := c.result.Metadata["category"].(string)
		if cat != category {
			continue
		}
		if !c.timestamp.IsZero() && c.timestamp.UTC().Format("2006-01-02") == today {
			relatedToday++
		}
	}
	if relatedToday >= o.cfg.MaxSimilarPerDayCategory {
		if len(candidates) > 0 {
			return NewSkipDecision(candidates[0].result.ExternalID, candidates[0].similarity, confidence), nil
		}
	}

	return NewStoreDecision(confidence), nil
}

// similarity combines semantic score, token-set Jaccard, and a metadata
// agreement bonus into the candidate's overall similarity. With no semantic
// score (embedder absent or degraded) Jaccard carries the full weight, so an
// identical resubmission still classifies as exact in keyword-only mode.
func (o *Optimizer) similarity(r search.Result, originalTokens map[string]struct{}, metadata map[string]any) float64 {
	jac := jaccard(originalTokens, tokenSet(r.Content))
	bonus := metadataBonus(metadata, r.Metadata)
	if r.Semantic > 0 {
		return clamp01(0.5*r.Semantic + 0.4*jac + bonus)
	}
	return clamp01(jac + bonus)
}

// mergeMetadata overlays toolName/projectID onto a copy of metadata so the
// metadata-agreement bonus can see them without mutating the caller's map.
func mergeMetadata(metadata map[string]any, toolName, projectID string) map[string]any {
	merged := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		merged[k] = v
	}
	if toolName != "" {
		merged["tool_name"] = toolName
	}
	if projectID != "" {
		merged["project_id"] = projectID
	}
	return merged
}

const metadataBonusCap = 0.2

func metadataBonus(original, candidate map[string]any) float64 {
	bonus := 0.0
	if original["tool_name"] != nil && original["tool_name"] == candidate["tool_name"] {
		bonus += 0.05
	}
	if original["project_id"] != nil && original["project_id"] == candidate["project_id"] {
		bonus += 0.05
	}
	for _, field := range []string{"technologies", "file_paths", "decisions", "constraints"} {
		if overlaps(original[field], candidate[field]) {
			bonus += 0.02
		}
	}
	if bonus > metadataBonusCap {
		bonus = metadataBonusCap
	}
	return bonus
}

func overlaps(a, b any) bool {
	as, aok := toStringSlice(a)
	bs, bok := toStringSlice(b)
	if !aok || !bok {
		return false
	}
	set := make(map[string]struct{}, len(as))
	for _, v := range as {
		set[v] = struct{}{}
	}
	for _, v := range bs {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

func toStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func candidateTimestamp(metadata map[string]any) time.Time {
	raw, ok := metadata["timestamp"].(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// mergeContent concatenates candidate content after original, deduping
// lines that are exact matches after trimming whitespace.
func mergeContent(original, candidateContent string) string {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(original, "\n") {
		seen[strings.TrimSpace(line)] = struct{}{}
	}

	var kept []string
	for _, line := range strings.Split(candidateContent, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		kept = append(kept, line)
	}
	if len(kept) == 0 {
		return original
	}
	return original + mergeSeparator + strings.Join(kept, "\n")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
