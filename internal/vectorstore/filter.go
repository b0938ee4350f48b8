package vectorstore

import "fmt"

// Operator is a comparison applied to a single metadata field.
type Operator string

const (
	// OpEq matches documents whose metadata value equals Value exactly.
	OpEq Operator = "eq"
	// OpIn matches documents whose metadata value is one of the members of
	// Value, which must be a []interface{} or []string.
	OpIn Operator = "in"
	// OpGTE matches documents whose metadata value, parsed as a float64, is
	// greater than or equal to Value.
	OpGTE Operator = "gte"
	// OpLTE matches documents whose metadata value, parsed as a float64, is
	// less than or equal to Value.
	OpLTE Operator = "lte"
)

// Condition restricts search results to documents where metadata[Key]
// satisfies Op against Value.
type Condition struct {
	Key   string
	Op    Operator
	Value interface{}
}

// Filter is a conjunction (AND) of Conditions applied to document metadata.
type Filter struct {
	Conditions []Condition
}

// NewFilter returns an empty filter that matches every document.
func NewFilter() *Filter {
	return &Filter{}
}

// Eq adds an equality condition and returns the filter for chaining.
func (f *Filter) Eq(key string, value interface{}) *Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpEq, Value: value})
	return f
}

// In adds a set-membership condition and returns the filter for chaining.
func (f *Filter) In(key string, values ...interface{}) *Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpIn, Value: values})
	return f
}

// GTE adds a greater-than-or-equal condition and returns the filter for
// chaining.
func (f *Filter) GTE(key string, value interface{}) *Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpGTE, Value: value})
	return f
}

// LTE adds a less-than-or-equal condition and returns the filter for
// chaining.
func (f *Filter) LTE(key string, value interface{}) *Filter {
	f.Conditions = append(f.Conditions, Condition{Key: key, Op: OpLTE, Value: value})
	return f
}

// IsEmpty reports whether the filter has no conditions.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.Conditions) == 0
}

// EqualityMap extracts the equality conditions as a plain map, suitable for
// passing straight to a backend's native "where" clause. Conditions that
// cannot be expressed as equality (In, GTE, LTE) are omitted; callers must
// apply Matches as a post-filter to enforce them.
func (f *Filter) EqualityMap() map[string]interface{} {
	if f.IsEmpty() {
		return nil
	}
	m := make(map[string]interface{})
	for _, c := range f.Conditions {
		if c.Op == OpEq {
			m[c.Key] = c.Value
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// HasNonEquality reports whether the filter contains any condition that a
// backend's native equality "where" clause cannot express.
func (f *Filter) HasNonEquality() bool {
	for _, c := range f.Conditions {
		if c.Op != OpEq {
			return true
		}
	}
	return false
}

// Matches reports whether metadata satisfies every condition in the filter.
func (f *Filter) Matches(metadata map[string]interface{}) bool {
	if f.IsEmpty() {
		return true
	}
	for _, c := range f.Conditions {
		v, ok := metadata[c.Key]
		if !ok {
			return false
		}
		if !matchesCondition(c, v) {
			return false
		}
	}
	return true
}

func matchesCondition(c Condition, v interface{}) bool {
	switch c.Op {
	case OpEq:
		return fmt.Sprintf("%v", v) == fmt.Sprintf("%v", c.Value)
	case OpIn:
		values, ok := c.Value.([]interface{})
		if !ok {
			return false
		}
		for _, want := range values {
			if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", want) {
				return true
			}
		}
		return false
	case OpGTE:
		vf, ok1 := toFloat(v)
		wf, ok2 := toFloat(c.Value)
		return ok1 && ok2 && vf >= wf
	case OpLTE:
		vf, ok1 := toFloat(v)
		wf, ok2 := toFloat(c.Value)
		return ok1 && ok2 && vf <= wf
	default:
		return false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// ApplyFilter keeps only the results whose metadata satisfies the filter.
func ApplyFilter(results []SearchResult, filter *Filter) []SearchResult {
	if filter.IsEmpty() {
		return results
	}
	filtered := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if filter.Matches(r.Metadata) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// FilterFromMap builds an equality-only Filter from a plain map, the shape
// accepted at the Store interface boundary (SearchWithFilters etc.).
func FilterFromMap(m map[string]interface{}) *Filter {
	f := NewFilter()
	for k, v := range m {
		if values, ok := v.([]interface{}); ok {
			f.In(k, values...)
			continue
		}
		f.Eq(k, v)
	}
	return f
}
