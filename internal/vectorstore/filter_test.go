package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	meta := map[string]interface{}{
		"category":   "preference",
		"tool_name":  "claude-code",
		"confidence": 0.9,
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"empty matches everything", NewFilter(), true},
		{"equality hit", NewFilter().Eq("category", "preference"), true},
		{"equality miss", NewFilter().Eq("category", "solution"), false},
		{"missing key fails", NewFilter().Eq("project_id", "p1"), false},
		{"in hit", NewFilter().In("category", "solution", "preference"), true},
		{"in miss", NewFilter().In("category", "solution", "decision"), false},
		{"gte hit", NewFilter().GTE("confidence", 0.8), true},
		{"gte miss", NewFilter().GTE("confidence", 0.95), false},
		{"lte hit", NewFilter().LTE("confidence", 1.0), true},
		{"conjunction", NewFilter().Eq("category", "preference").GTE("confidence", 0.8), true},
		{"conjunction one fails", NewFilter().Eq("category", "preference").GTE("confidence", 0.95), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(meta))
		})
	}
}

func TestFilterNumericCoercion(t *testing.T) {
	// Backends round-trip numbers as strings or ints; comparisons still work.
	assert.True(t, NewFilter().GTE("n", 5).Matches(map[string]interface{}{"n": "7.5"}))
	assert.True(t, NewFilter().LTE("n", int64(10)).Matches(map[string]interface{}{"n": 7}))
	assert.False(t, NewFilter().GTE("n", 5).Matches(map[string]interface{}{"n": "not-a-number"}))
}

func TestEqualityMapAndNonEquality(t *testing.T) {
	f := NewFilter().Eq("category", "preference").GTE("confidence", 0.8)

	m := f.EqualityMap()
	require.Len(t, m, 1)
	assert.Equal(t, "preference", m["category"])
	assert.True(t, f.HasNonEquality())

	eqOnly := NewFilter().Eq("tool_name", "claude-code")
	assert.False(t, eqOnly.HasNonEquality())

	assert.Nil(t, NewFilter().GTE("confidence", 0.5).EqualityMap())
}

func TestApplyFilter(t *testing.T) {
	results := []SearchResult{
		{ID: "1", Metadata: map[string]interface{}{"category": "preference"}},
		{ID: "2", Metadata: map[string]interface{}{"category": "solution"}},
		{ID: "3", Metadata: map[string]interface{}{}},
	}

	filtered := ApplyFilter(results, NewFilter().Eq("category", "preference"))
	require.Len(t, filtered, 1)
	assert.Equal(t, "1", filtered[0].ID)

	assert.Len(t, ApplyFilter(results, NewFilter()), 3)
}

func TestFilterFromMap(t *testing.T) {
	f := FilterFromMap(map[string]interface{}{
		"category": "preference",
		"tags":     []interface{}{"golang", "testing"},
	})
	require.Len(t, f.Conditions, 2)

	assert.True(t, f.Matches(map[string]interface{}{
		"category": "preference",
		"tags":     "golang",
	}))
}

func TestValidateCollectionName(t *testing.T) {
	assert.NoError(t, ValidateCollectionName("memoryd_default"))
	assert.Error(t, ValidateCollectionName("../escape"))
	assert.Error(t, ValidateCollectionName(""))
	assert.Error(t, ValidateCollectionName("has space"))
}
