package sdk

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarizeScalars(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name     string
		value    any
		wantType string
	}{
		{"nil", nil, "null"},
		{"bool", true, "bool"},
		{"int", 42, "int"},
		{"float", 3.14, "float"},
		{"string", "hello", "str"},
		{"bytes", []byte("raw"), "bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := Summarize(tt.value)
			assert.Equal(t, tt.wantType, summary["_type"])

			// Every summary must serialize to JSON.
			_, err := json.Marshal(summary)
			require.NoError(t, err)
		})
	}
}

func TestSummarizeStringTruncation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("short string untouched", func(t *testing.T) {
		summary := Summarize("hello")

		assert.Equal(t, "hello", summary["_value"])
		assert.Equal(t, 5, summary["_length"])
		assert.Equal(t, false, summary["_truncated"])
	})

	t.Run("long string truncated", func(t *testing.T) {
		long := strings.Repeat("x", 5000)
		summary := Summarize(long)

		assert.Equal(t, true, summary["_truncated"])
		assert.Equal(t, 5000, summary["_length"])
		assert.Len(t, summary["_value"], maxStringLength)
	})
}

func TestSummarizeBytesLengthOnly(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	summary := Summarize([]byte("sensitive content"))

	assert.Equal(t, "bytes", summary["_type"])
	assert.Equal(t, 17, summary["_length"])
	assert.NotContains(t, summary, "_value")
}

func TestSummarizeCandidateFidelity(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// 1000 candidates: every single one must survive, no sampling.
	candidates := make([]map[string]any, 1000)
	for i := range candidates {
		candidates[i] = map[string]any{
			"id":    fmt.Sprintf("%d", i),
			"score": float64(i) / 1000,
		}
	}

	summary := Summarize(candidates)

	assert.Equal(t, "candidates", summary["_type"])
	assert.Equal(t, 1000, summary["_count"])

	extracted, ok := summary["_candidates"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, extracted, 1000)

	assert.Equal(t, "999", extracted[999]["id"])
	assert.InDelta(t, 0.999, extracted[999]["score"], 1e-9)
}

func TestSummarizeCandidateExtraction(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	items := []map[string]any{
		{"product_id": 7, "relevance": 0.9, "filter_reason": "in stock"},
		{"doc_id": "abc"},
	}

	summary := Summarize(items)
	extracted := summary["_candidates"].([]map[string]any)

	// Alternate id/score/reason field names are recognized; values keep
	// their original types (an integer id stays an integer).
	assert.Equal(t, 7, extracted[0]["id"])
	assert.Equal(t, 0.9, extracted[0]["score"])
	assert.Equal(t, "in stock", extracted[0]["reason"])

	// Missing score is omitted; missing reason is recorded as null.
	assert.Equal(t, "abc", extracted[1]["id"])
	assert.NotContains(t, extracted[1], "score")
	assert.Nil(t, extracted[1]["reason"])
}

func TestSummarizeCandidateIDTypesPreserved(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	items := []map[string]any{
		{"id": 999},
		{"id": "sku-1"},
		{"id": 3.5},
	}

	summary := Summarize(items)
	extracted := summary["_candidates"].([]map[string]any)

	assert.Equal(t, 999, extracted[0]["id"])
	assert.Equal(t, "sku-1", extracted[1]["id"])
	assert.Equal(t, 3.5, extracted[2]["id"])

	// The summary must still serialize cleanly with mixed id types.
	_, err := json.Marshal(summary)
	require.NoError(t, err)
}

func TestSummarizePlainSequence(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	summary := Summarize([]int{1, 2, 3})

	assert.Equal(t, "list", summary["_type"])
	assert.Equal(t, 3, summary["_count"])
	assert.Equal(t, "int", summary["_item_type"])
	assert.NotContains(t, summary, "_candidates")
}

func TestSummarizeDict(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("small dict", func(t *testing.T) {
		summary := Summarize(map[string]any{
			"name":   "pipeline",
			"count":  3,
			"nested": map[string]any{"deep": true},
		})

		assert.Equal(t, "dict", summary["_type"])
		assert.Equal(t, 3, summary["_key_count"])
		assert.Equal(t, []string{"count", "name", "nested"}, summary["_keys"])

		values := summary["_values"].(map[string]any)
		assert.Equal(t, "pipeline", values["name"])
		assert.Equal(t, map[string]any{"_type": "dict"}, values["nested"])
		assert.NotContains(t, summary, "_keys_truncated")
	})

	t.Run("key count capped at 50", func(t *testing.T) {
		big := make(map[string]int, 80)
		for i := 0; i < 80; i++ {
			big[fmt.Sprintf("key-%03d", i)] = i
		}

		summary := Summarize(big)

		assert.Equal(t, 80, summary["_key_count"])
		assert.Len(t, summary["_keys"], maxDictKeys)
		assert.Equal(t, true, summary["_keys_truncated"])
	})
}

func TestSummarizeDepthBound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	// Self-referencing structures must not recurse forever.
	inner := map[string]any{}
	inner["self"] = inner

	summary := Summarize(inner)
	assert.Equal(t, "dict", summary["_type"])

	_, err := json.Marshal(summary)
	require.NoError(t, err)
}

func TestSummarizeNeverPanics(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	values := []any{
		make(chan int),
		func() {},
		struct{ ID int }{ID: 7},
		map[int]string{1: "a"},
		[]any{nil, nil},
	}

	for _, v := range values {
		summary := Summarize(v)
		assert.Contains(t, summary, "_type")
	}
}

func TestSummarizeStructID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	type product struct {
		ID   int
		Name string
	}

	summary := Summarize(product{ID: 42, Name: "widget"})

	assert.Equal(t, "product", summary["_type"])
	assert.Equal(t, "42", summary["_id"])
}

func TestInferCount(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	intp := func(n int) *int { return &n }

	tests := []struct {
		name  string
		value any
		want  *int
	}{
		{"nil", nil, nil},
		{"slice", []int{1, 2, 3}, intp(3)},
		{"empty slice", []string{}, intp(0)},
		{"string", "not counted", nil},
		{"dict with items", map[string]any{"items": []int{1, 2}}, intp(2)},
		{"dict with results", map[string]any{"results": []string{"a"}}, intp(1)},
		{"dict prefers first recognized key", map[string]any{
			"items":   []int{1},
			"results": []int{1, 2, 3},
		}, intp(1)},
		{"dict without collection key", map[string]any{"total": 9}, nil},
		{"dict with non-sequence value", map[string]any{"items": "three"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferCount(tt.value)
			if tt.want == nil {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, *tt.want, *got)
			}
		})
	}
}
