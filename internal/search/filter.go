package search

// matchesFilter evaluates a Filter against a document's metadata. Missing
// filter keys fail the filter: a document lacking Key never matches,
// regardless of operator.
func matchesFilter(metadata map[string]any, filter Filter) bool {
	for _, c := range filter.Conditions {
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

func matchesCondition(c Condition, v any) bool {
	switch c.Op {
	case OpEq:
		return v == c.Value
	case OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			return false
		}
		for _, want := range values {
			if v == want {
				return true
			}
		}
		return false
	case OpGTE:
		a, aok := toFloat(v)
		b, bok := toFloat(c.Value)
		return aok && bok && a >= b
	case OpLTE:
		a, aok := toFloat(v)
		b, bok := toFloat(c.Value)
		return aok && bok && a <= b
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
