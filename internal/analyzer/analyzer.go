// Package analyzer implements the Storage Analyzer: a pure, side-effect-free
// classifier that decides whether a conversation turn is worth remembering.
package analyzer

import (
	"regexp"
	"strings"

	"github.com/memoryd/memoryd/internal/extraction"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// Thresholds holds the auto-store and suggest confidence cutoffs for a
// single category.
type Thresholds struct {
	AutoStore float64
	Suggest   float64
}

// DefaultThresholds is used whenever ThresholdSource has no learned override.
var DefaultThresholds = Thresholds{AutoStore: 0.85, Suggest: 0.60}

// ThresholdSource supplies per-category thresholds, backed in production by
// the Learning Engine's calibrated values.
type ThresholdSource interface {
	ThresholdsFor(category model.Category) Thresholds
}

// staticThresholdSource always returns DefaultThresholds; used when no
// Learning Engine is wired (e.g. in tests).
type staticThresholdSource struct{}

func (staticThresholdSource) ThresholdsFor(model.Category) Thresholds { return DefaultThresholds }

// AnalysisResult is the Analyzer's verdict on a single conversation turn.
type AnalysisResult struct {
	ShouldStore      bool
	AutoStore        bool
	SuggestEligible  bool
	Confidence       float64
	Category         model.Category
	Reason           string
	SuggestedContent string
	ExtractedInfo    model.ExtractedInfo
	Metadata         map[string]any
}

// Analyzer classifies (user message, AI response) pairs into an
// AnalysisResult. It performs no I/O and holds no locks beyond the
// read-only ThresholdSource query.
type Analyzer struct {
	classifier *classifier
	extractor  *extraction.HeuristicExtractor
	tags       *extraction.DefaultTagExtractor
	thresholds ThresholdSource
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithThresholdSource overrides the default static thresholds with a
// learned source (typically the Learning Engine).
func WithThresholdSource(src ThresholdSource) Option {
	return func(a *Analyzer) { a.thresholds = src }
}

// New constructs an Analyzer. Construction only fails if the built-in
// decision patterns fail to compile, which cannot happen with DefaultConfig.
func New(opts ...Option) *Analyzer {
	extractor, err := extraction.NewHeuristicExtractor(extraction.DefaultConfig())
	if err != nil {
		panic("analyzer: default extraction config is invalid: " + err.Error())
	}

	a := &Analyzer{
		classifier: newClassifier(),
		extractor:  extractor,
		tags:       extraction.NewTagExtractor(extraction.DefaultTagRules),
		thresholds: staticThresholdSource{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies a single conversation turn. It is a pure function of
// its inputs: identical inputs always produce an identical result.
func (a *Analyzer) Analyze(userMessage, aiResponse string, conversationContext map[string]any, toolName string) (AnalysisResult, error) {
	if strings.TrimSpace(userMessage) == "" && strings.TrimSpace(aiResponse) == "" {
		return AnalysisResult{}, apierrors.InvalidArgument("user_message or ai_response is required")
	}

	combined := normalizeWhitespace(userMessage + "\n" + aiResponse)
	category, confidence := a.classifier.classify(combined)
	confidence = clamp01(confidence)

	extracted := a.extractInfo(combined)

	thresholds := a.thresholds.ThresholdsFor(category)
	shouldStore := category != model.CategoryUnknown && confidence >= thresholds.Suggest
	autoStore := shouldStore && confidence >= thresholds.AutoStore
	suggestEligible := shouldStore && !autoStore

	reason := reasonFor(category, confidence, thresholds)

	return AnalysisResult{
		ShouldStore:      shouldStore,
		AutoStore:        autoStore,
		SuggestEligible:  suggestEligible,
		Confidence:       confidence,
		Category:         category,
		Reason:           reason,
		SuggestedContent: suggestedContent(userMessage, aiResponse),
		ExtractedInfo:    extracted,
		Metadata: map[string]any{
			"tool_name": toolName,
		},
	}, nil
}

// extractInfo derives technologies/file_paths/decisions/constraints from
// content, reusing the heuristic extractor's pattern set and the shared tag
// rules for technology detection.
func (a *Analyzer) extractInfo(content string) model.ExtractedInfo {
	info := model.ExtractedInfo{}

	msgs := []extraction.RawMessage{{Role: "assistant", Content: content}}
	candidates, err := a.extractor.Extract(msgs)
	if err == nil {
		for _, c := range candidates {
			switch {
			case decisionPattern.MatchString(c.PatternMatched):
				info.Decisions = append(info.Decisions, c.Content)
			case constraintPattern.MatchString(c.PatternMatched):
				info.Constraints = append(info.Constraints, c.Content)
			default:
				info.Decisions = append(info.Decisions, c.Content)
			}
		}
	}

	info.Technologies = a.tags.ExtractTags(content)
	info.FilePaths = filePathPattern.FindAllString(content, -1)

	return info
}

var (
	decisionPattern   = regexp.MustCompile(`(?i)lets_use|decided_to|approach_is|choosing_over|architecture|pattern_for`)
	constraintPattern = regexp.MustCompile(`(?i)dont_because|avoid_because|failed_approach`)
	filePathPattern   = regexp.MustCompile(`\b[\w./-]+\.(?:go|py|ts|tsx|js|jsx|rs|java|yaml|yml|toml|md|json)\b`)
)

func suggestedContent(userMessage, aiResponse string) string {
	u := strings.TrimSpace(userMessage)
	r := strings.TrimSpace(aiResponse)
	switch {
	case u != "" && r != "":
		return u + "\n\n" + r
	case u != "":
		return u
	default:
		return r
	}
}

func reasonFor(category model.Category, confidence float64, t Thresholds) string {
	switch {
	case category == model.CategoryUnknown:
		return "no classification rule matched"
	case confidence >= t.AutoStore:
		return "confidence meets auto-store threshold for " + string(category)
	case confidence >= t.Suggest:
		return "confidence meets suggest threshold for " + string(category)
	default:
		return "confidence below suggest threshold for " + string(category)
	}
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
