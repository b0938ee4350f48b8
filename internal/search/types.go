package search

import "time"

// Operator is a metadata comparison operator applied to a filter condition.
type Operator int

const (
	OpEq Operator = iota
	OpIn
	OpGTE
	OpLTE
)

// Condition is a single metadata predicate. Missing filter keys fail the
// filter: a document lacking Key never matches.
type Condition struct {
	Key   string
	Op    Operator
	Value any
}

// Filter is a conjunction of Conditions.
type Filter struct {
	Conditions []Condition
}

// NewFilter returns an empty Filter ready for chaining.
func NewFilter() Filter { return Filter{} }

func (f Filter) Eq(key string, value any) Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpEq, Value: value})
	return f
}

func (f Filter) In(key string, values ...any) Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpIn, Value: values})
	return f
}

func (f Filter) GTE(key string, value any) Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpGTE, Value: value})
	return f
}

func (f Filter) LTE(key string, value any) Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpLTE, Value: value})
	return f
}

func (f Filter) IsEmpty() bool { return len(f.Conditions) == 0 }

// Mode selects which indices Search consults.
type Mode int

const (
	ModeHybrid Mode = iota
	ModeSemantic
	ModeKeyword
)

// Document is a single indexed item as returned by Get.
type Document struct {
	InternalID int64
	ExternalID string
	Content    string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Result is a single ranked Search hit.
type Result struct {
	InternalID int64
	ExternalID string
	Content    string
	Metadata   map[string]any
	Semantic   float64
	Keyword    float64
	Recency    float64
	Combined   float64
}

// RankingWeights controls how the three signals combine into Result.Combined.
// Must sum to 1.0; validated at load time by the caller.
type RankingWeights struct {
	Semantic float64
	Keyword  float64
	Recency  float64
}

// DefaultRankingWeights is the standard combination.
var DefaultRankingWeights = RankingWeights{Semantic: 0.6, Keyword: 0.3, Recency: 0.1}
