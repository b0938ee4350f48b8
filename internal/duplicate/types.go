// Package duplicate implements the Duplicate Detector / Storage Optimizer:
// given a candidate conversation, decide whether to store it, skip it as a
// duplicate, or merge it into an existing near-duplicate.
package duplicate

// Kind identifies which branch of Decision is populated.
type Kind int

const (
	DecisionStore Kind = iota
	DecisionSkip
	DecisionMerge
)

// Decision is the Optimizer's verdict, a sum type realized as a struct with
// a Kind tag plus kind-specific fields populated only by the matching
// constructor, so callers can never observe e.g. a MergedContent on a Store
// decision.
type Decision struct {
	Kind Kind

	// Skip / Merge only.
	CandidateID string
	Similarity  float64

	// Merge only.
	MergedContent string

	// Confidence is the (possibly corroboration-bumped) confidence carried
	// forward from the triggering AnalysisResult.
	Confidence float64
}

// NewStoreDecision returns a Decision directing the caller to store content
// as a new conversation.
func NewStoreDecision(confidence float64) Decision {
	return Decision{Kind: DecisionStore, Confidence: confidence}
}

// NewSkipDecision returns a Decision directing the caller to drop content,
// naming the candidate it duplicates.
func NewSkipDecision(candidateID string, similarity, confidence float64) Decision {
	return Decision{Kind: DecisionSkip, CandidateID: candidateID, Similarity: similarity, Confidence: confidence}
}

// NewMergeDecision returns a Decision directing the caller to append
// mergedContent to candidateID instead of creating a new row.
func NewMergeDecision(candidateID, mergedContent string, similarity, confidence float64) Decision {
	return Decision{Kind: DecisionMerge, CandidateID: candidateID, MergedContent: mergedContent, Similarity: similarity, Confidence: confidence}
}

// matchClass is the similarity bucket a candidate falls into.
type matchClass int

const (
	classUnrelated matchClass = iota
	classRelated
	classNear
	classExact
)

func (c matchClass) String() string {
	switch c {
	case classExact:
		return "exact"
	case classNear:
		return "near"
	case classRelated:
		return "related"
	default:
		return "unrelated"
	}
}

// Thresholds are the similarity-bucket cutoffs.
type Thresholds struct {
	Exact   float64 // default 0.95
	Near    float64 // default 0.80
	Related float64 // default 0.60
}

// DefaultThresholds are the standard similarity cutoffs.
var DefaultThresholds = Thresholds{Exact: 0.95, Near: 0.80, Related: 0.60}

func (t Thresholds) classify(similarity float64) matchClass {
	switch {
	case similarity >= t.Exact:
		return classExact
	case similarity >= t.Near:
		return classNear
	case similarity >= t.Related:
		return classRelated
	default:
		return classUnrelated
	}
}

// Config bounds the Optimizer's behavior. Field comments name the
// corresponding configuration keys.
type Config struct {
	CandidateLimit           int     // duplicate_detector.candidate_limit, default 10
	RecencyWindowDays        int     // duplicate_detector.recency_window_days, default 90
	MinContentLength         int     // min_content_length_for_dup, default 20
	CorroborationBump        float64 // duplicate_detector.corroboration_bump, default 0.05
	MaxSimilarPerDayCategory int     // max_similar_per_day_per_category, default 20
	Thresholds               Thresholds
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.CandidateLimit == 0 {
		c.CandidateLimit = 10
	}
	if c.RecencyWindowDays == 0 {
		c.RecencyWindowDays = 90
	}
	if c.MinContentLength == 0 {
		c.MinContentLength = 20
	}
	if c.CorroborationBump == 0 {
		c.CorroborationBump = 0.05
	}
	if c.MaxSimilarPerDayCategory == 0 {
		c.MaxSimilarPerDayCategory = 20
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds
	}
}
