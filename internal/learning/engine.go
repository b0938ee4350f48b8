// Package learning implements the Learning Engine: it ingests user feedback
// on storage suggestions, keeps per-category approval counters and confidence
// calibration buckets, and derives per-category threshold overrides the
// Storage Analyzer reads on its next call.
package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/analyzer"
	"github.com/memoryd/memoryd/internal/model"
)

const (
	// PreferenceCategory is the Preference category every learning key is
	// written under. The Learning Engine reads and writes no other state.
	PreferenceCategory = "learning"

	statsKeyPrefix    = "learning.stats."
	feedbackKeyPrefix = "learning.feedback."

	// bucketCount partitions [0,1] confidence into 0.1-wide buckets.
	bucketCount = 10
)

// preferenceStore is the narrow slice of the Record Repository the engine
// persists through.
type preferenceStore interface {
	SetPreference(ctx context.Context, key, category string, value any) error
	ListPreferencesByCategory(ctx context.Context, category string) ([]model.Preference, error)
}

// Bucket tracks calibration for one 0.1-wide confidence range: how confident
// the analyzer claimed to be versus how often the user actually kept the
// suggestion.
type Bucket struct {
	Samples        int     `json:"samples"`
	PredictedSum   float64 `json:"predicted_sum"`
	ActualPositive int     `json:"actual_positive"`
}

// PredictedRate is the mean predicted confidence of the bucket's samples.
func (b Bucket) PredictedRate() float64 {
	if b.Samples == 0 {
		return 0
	}
	return b.PredictedSum / float64(b.Samples)
}

// ActualRate is the observed positive-outcome rate of the bucket's samples.
func (b Bucket) ActualRate() float64 {
	if b.Samples == 0 {
		return 0
	}
	return float64(b.ActualPositive) / float64(b.Samples)
}

// CalibrationRatio reports actual/predicted; 1.0 means perfectly calibrated.
func (b Bucket) CalibrationRatio() float64 {
	p := b.PredictedRate()
	if p == 0 {
		return 0
	}
	return b.ActualRate() / p
}

// CategoryStats is the per-category learning state, persisted as one
// Preference row per category.
type CategoryStats struct {
	SuggestionsTotal int                 `json:"suggestions_total"`
	Approvals        int                 `json:"approvals"`
	Rejections       int                 `json:"rejections"`
	Modifications    int                 `json:"modifications"`
	Buckets          [bucketCount]Bucket `json:"buckets"`

	// AutoThreshold and SuggestThreshold are learned overrides; zero means
	// no override, fall back to the defaults.
	AutoThreshold    float64 `json:"auto_threshold,omitempty"`
	SuggestThreshold float64 `json:"suggest_threshold,omitempty"`
}

// ApprovalRate is approvals over total terminal outcomes.
func (s CategoryStats) ApprovalRate() float64 {
	if s.SuggestionsTotal == 0 {
		return 0
	}
	return float64(s.Approvals) / float64(s.SuggestionsTotal)
}

// Config bounds the engine's threshold-adjustment behavior.
type Config struct {
	// MinSamples is the bucket sample floor before any adjustment applies.
	MinSamples int
	// Step is the per-iteration threshold delta.
	Step float64
	// MaxAutoThreshold caps raises.
	MaxAutoThreshold float64
	// UnderPerformRatio triggers a raise when actual < ratio × predicted.
	UnderPerformRatio float64
	// OverPerformRatio triggers a lowering when actual > ratio × predicted.
	OverPerformRatio float64
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MinSamples == 0 {
		c.MinSamples = 20
	}
	if c.Step == 0 {
		c.Step = 0.02
	}
	if c.MaxAutoThreshold == 0 {
		c.MaxAutoThreshold = 0.99
	}
	if c.UnderPerformRatio == 0 {
		c.UnderPerformRatio = 0.5
	}
	if c.OverPerformRatio == 0 {
		c.OverPerformRatio = 1.5
	}
}

// Engine is the Learning Engine. It caches CategoryStats in memory for
// synchronous reads by the Analyzer and writes every change through to the
// Preference store; a write failure keeps the in-memory state (the caller
// treats learning persistence as non-fatal).
type Engine struct {
	store  preferenceStore
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex // guards locks map creation
	locks map[model.Category]*sync.Mutex

	statsMu sync.RWMutex
	stats   map[model.Category]*CategoryStats

	// defaults supplies the baseline thresholds when no learned override
	// exists, so runtime config changes flow through without a restart.
	defaults func() analyzer.Thresholds
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the default adjustment bounds.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithDefaultThresholds overrides where baseline thresholds come from,
// typically a closure over the live configuration snapshot.
func WithDefaultThresholds(fn func() analyzer.Thresholds) Option {
	return func(e *Engine) { e.defaults = fn }
}

// New constructs an Engine and loads persisted stats from the Preference
// store. A load failure is logged and the engine starts empty rather than
// failing startup: learned thresholds are an optimization, not a dependency.
func New(ctx context.Context, store preferenceStore, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  store,
		logger: logger,
		locks:  make(map[model.Category]*sync.Mutex),
		stats:  make(map[model.Category]*CategoryStats),
		defaults: func() analyzer.Thresholds { return analyzer.DefaultThresholds },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.ApplyDefaults()

	if err := e.load(ctx); err != nil {
		logger.Warn("learning state load failed, starting empty", zap.Error(err))
	}
	return e
}

func (e *Engine) load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	prefs, err := e.store.ListPreferencesByCategory(ctx, PreferenceCategory)
	if err != nil {
		return err
	}
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	for _, p := range prefs {
		if len(p.Key) <= len(statsKeyPrefix) || p.Key[:len(statsKeyPrefix)] != statsKeyPrefix {
			continue
		}
		cat := model.Category(p.Key[len(statsKeyPrefix):])
		var s CategoryStats
		if err := json.Unmarshal(p.Value, &s); err != nil {
			e.logger.Warn("skipping corrupt learning stats row", zap.String("key", p.Key), zap.Error(err))
			continue
		}
		e.stats[cat] = &s
	}
	return nil
}

// lockFor returns the per-category mutex, creating it on first use.
func (e *Engine) lockFor(cat model.Category) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[cat]
	if !ok {
		l = &sync.Mutex{}
		e.locks[cat] = l
	}
	return l
}

// RecordFeedback ingests one feedback event: records it as a learning
// preference, updates category counters and the calibration bucket, and
// re-derives the category's threshold override.
func (e *Engine) RecordFeedback(ctx context.Context, fb Feedback) error {
	if fb.TargetID == "" {
		return fmt.Errorf("learning: feedback target id is required")
	}
	if fb.Category == "" {
		fb.Category = model.CategoryUnknown
	}

	lock := e.lockFor(fb.Category)
	lock.Lock()
	defer lock.Unlock()

	s := e.statsFor(fb.Category)

	switch fb.Type {
	case FeedbackApproval:
		s.SuggestionsTotal++
		s.Approvals++
	case FeedbackRejection:
		s.SuggestionsTotal++
		s.Rejections++
	case FeedbackModification:
		s.SuggestionsTotal++
		s.Modifications++
		s.Approvals++ // a modified approval is still an approval
	}

	b := bucketIndex(fb.Confidence)
	s.Buckets[b].Samples++
	s.Buckets[b].PredictedSum += clamp01(fb.Confidence)
	if fb.Type.positive() {
		s.Buckets[b].ActualPositive++
	}

	e.adjustThresholds(s, s.Buckets[b])

	e.statsMu.Lock()
	e.stats[fb.Category] = s
	e.statsMu.Unlock()

	return e.persist(ctx, fb, s)
}

// adjustThresholds applies the calibration policy to one bucket's
// evidence: materially under-performing confidence raises the auto-store
// bar, over-performing lowers it back toward the default.
func (e *Engine) adjustThresholds(s *CategoryStats, b Bucket) {
	if b.Samples < e.cfg.MinSamples {
		return
	}
	base := e.defaults()
	current := s.AutoThreshold
	if current == 0 {
		current = base.AutoStore
	}
	suggest := s.SuggestThreshold
	if suggest == 0 {
		suggest = base.Suggest
	}

	switch {
	case b.ActualRate() < e.cfg.UnderPerformRatio*b.PredictedRate():
		s.AutoThreshold = math.Min(current+e.cfg.Step, e.cfg.MaxAutoThreshold)
	case b.ActualRate() > e.cfg.OverPerformRatio*b.PredictedRate():
		s.AutoThreshold = math.Max(current-e.cfg.Step, suggest)
	}
}

func (e *Engine) persist(ctx context.Context, fb Feedback, s *CategoryStats) error {
	if e.store == nil {
		return nil
	}
	record := map[string]any{
		"type":       string(fb.Type),
		"target_id":  fb.TargetID,
		"category":   string(fb.Category),
		"confidence": fb.Confidence,
		"original":   fb.Original,
		"context":    fb.Context,
		"recorded":   time.Now().UTC().Format(time.RFC3339),
	}
	if fb.Corrected != nil {
		record["corrected"] = *fb.Corrected
	}
	key := feedbackKeyPrefix + string(fb.Type) + "." + fb.TargetID
	if err := e.store.SetPreference(ctx, key, PreferenceCategory, record); err != nil {
		return fmt.Errorf("learning: persisting feedback event: %w", err)
	}
	if err := e.store.SetPreference(ctx, statsKeyPrefix+string(fb.Category), PreferenceCategory, s); err != nil {
		return fmt.Errorf("learning: persisting category stats: %w", err)
	}
	return nil
}

// statsFor returns a copy-on-write view of the category's stats for mutation
// under the category lock.
func (e *Engine) statsFor(cat model.Category) *CategoryStats {
	e.statsMu.RLock()
	existing, ok := e.stats[cat]
	e.statsMu.RUnlock()
	if !ok {
		return &CategoryStats{}
	}
	cp := *existing
	return &cp
}

// ThresholdsFor implements analyzer.ThresholdSource: learned overrides when
// present, the baseline defaults otherwise.
func (e *Engine) ThresholdsFor(cat model.Category) analyzer.Thresholds {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()

	t := e.defaults()
	s, ok := e.stats[cat]
	if !ok {
		return t
	}
	if s.AutoThreshold > 0 {
		t.AutoStore = s.AutoThreshold
	}
	if s.SuggestThreshold > 0 {
		t.Suggest = s.SuggestThreshold
	}
	return t
}

// Stats returns a snapshot of every category's learning state, for the
// statistics operation and tests.
func (e *Engine) Stats() map[model.Category]CategoryStats {
	e.statsMu.RLock()
	defer e.statsMu.RUnlock()
	out := make(map[model.Category]CategoryStats, len(e.stats))
	for cat, s := range e.stats {
		out[cat] = *s
	}
	return out
}

func bucketIndex(confidence float64) int {
	i := int(clamp01(confidence) * bucketCount)
	if i >= bucketCount {
		i = bucketCount - 1
	}
	return i
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
