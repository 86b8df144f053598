package sdk

import (
	"fmt"
	"reflect"
	"sort"
)

// Summarization bounds. Output size stays bounded no matter what the caller
// passes in.
const (
	maxStringLength = 1024
	maxDictKeys     = 50
	maxDepth        = 5
	candidateProbe  = 3
)

// Field names recognized during candidate extraction, checked in order.
var (
	idFields     = []string{"id", "_id", "candidate_id", "item_id", "product_id", "doc_id"} //nolint: gochecknoglobals
	scoreFields  = []string{"score", "rank", "relevance", "confidence", "weight"}           //nolint: gochecknoglobals
	reasonFields = []string{"reason", "explanation", "rationale", "why", "filter_reason"}   //nolint: gochecknoglobals

	// collectionKeys are probed by InferCount on map values, in order.
	collectionKeys = []string{"items", "results", "data", "records", "candidates"} //nolint: gochecknoglobals
)

// Summarize converts an arbitrary value into a bounded, JSON-safe summary
// map carrying a _type tag. It retains no reference to the original value.
//
// Summarize never panics: any internal failure yields
// {_type: <typename>, _error: true}.
func Summarize(v any) map[string]any {
	return summarize(v, 0)
}

func summarize(v any, depth int) (out map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			out = map[string]any{"_type": typeName(v), "_error": true}
		}
	}()

	if v == nil {
		return map[string]any{"_type": "null", "_value": nil}
	}

	if depth >= maxDepth {
		return map[string]any{"_type": typeName(v), "_truncated": true}
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return map[string]any{"_type": "null", "_value": nil}
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool:
		return map[string]any{"_type": "bool", "_value": rv.Bool()}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return map[string]any{"_type": "int", "_value": rv.Int()}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"_type": "int", "_value": rv.Uint()}

	case reflect.Float32, reflect.Float64:
		return map[string]any{"_type": "float", "_value": rv.Float()}

	case reflect.String:
		return summarizeString(rv.String())

	case reflect.Slice, reflect.Array:
		// Byte strings are length-only; content is never captured.
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return map[string]any{"_type": "bytes", "_length": rv.Len()}
		}

		if isCandidateList(rv) {
			return summarizeCandidates(rv)
		}

		return summarizeSequence(rv)

	case reflect.Map:
		return summarizeDict(rv, depth)

	default:
		return summarizeOther(rv)
	}
}

func summarizeString(s string) map[string]any {
	runes := []rune(s)
	length := len(runes)

	value := s
	if length > maxStringLength {
		value = string(runes[:maxStringLength])
	}

	return map[string]any{
		"_type":      "str",
		"_length":    length,
		"_value":     value,
		"_truncated": length > maxStringLength,
	}
}

// isCandidateList reports whether rv is a non-empty ordered sequence whose
// first items (up to three) are all maps carrying a recognized id field.
func isCandidateList(rv reflect.Value) bool {
	if rv.Len() == 0 {
		return false
	}

	probe := rv.Len()
	if probe > candidateProbe {
		probe = candidateProbe
	}

	for i := 0; i < probe; i++ {
		item, ok := asStringMap(rv.Index(i))
		if !ok {
			return false
		}

		if _, found := firstField(item, idFields); !found {
			return false
		}
	}

	return true
}

// summarizeCandidates extracts every element. No sampling: downstream
// browsing depends on all candidate ids surviving summarization.
func summarizeCandidates(rv reflect.Value) map[string]any {
	candidates := make([]map[string]any, 0, rv.Len())

	for i := 0; i < rv.Len(); i++ {
		item, ok := asStringMap(rv.Index(i))
		if !ok {
			// Past the probe window elements may be anything.
			candidates = append(candidates, map[string]any{"id": nil, "reason": nil})

			continue
		}

		candidates = append(candidates, extractCandidate(item))
	}

	return map[string]any{
		"_type":       "candidates",
		"_count":      rv.Len(),
		"_candidates": candidates,
	}
}

// extractCandidate pulls the id, score, and reason fields from one
// candidate. Values are kept as-is so an integer id stays an integer on the
// wire. Missing score is omitted; missing reason is recorded as null.
func extractCandidate(item map[string]any) map[string]any {
	candidate := make(map[string]any, 3)

	if id, ok := firstField(item, idFields); ok {
		candidate["id"] = id
	}

	if score, ok := firstField(item, scoreFields); ok {
		candidate["score"] = score
	}

	reason, _ := firstField(item, reasonFields)
	candidate["reason"] = reason

	return candidate
}

func summarizeSequence(rv reflect.Value) map[string]any {
	summary := map[string]any{
		"_type":  typeNameOf(rv.Type()),
		"_count": rv.Len(),
	}

	if rv.Len() > 0 {
		summary["_item_type"] = typeName(rv.Index(0).Interface())
	}

	return summary
}

func summarizeDict(rv reflect.Value, depth int) map[string]any {
	keys := make([]string, 0, rv.Len())
	byKey := make(map[string]reflect.Value, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		key := fmt.Sprintf("%v", iter.Key().Interface())
		keys = append(keys, key)
		byKey[key] = iter.Value()
	}

	// Map iteration order is random; sort for deterministic summaries.
	sort.Strings(keys)

	kept := keys
	truncated := len(keys) > maxDictKeys

	if truncated {
		kept = keys[:maxDictKeys]
	}

	values := make(map[string]any, len(kept))

	for _, key := range kept {
		values[key] = dictValue(byKey[key], depth)
	}

	summary := map[string]any{
		"_type":      "dict",
		"_key_count": len(keys),
		"_keys":      kept,
		"_values":    values,
	}

	if truncated {
		summary["_keys_truncated"] = true
	}

	return summary
}

// dictValue keeps scalars inline and replaces anything structured with a
// bare {_type} marker so nesting cannot blow up the summary.
func dictValue(rv reflect.Value, depth int) any {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.Interface()

	case reflect.String:
		s := rv.String()
		if runes := []rune(s); len(runes) > maxStringLength {
			return string(runes[:maxStringLength])
		}

		return s

	default:
		if depth+1 >= maxDepth {
			return map[string]any{"_type": typeNameOf(rv.Type()), "_truncated": true}
		}

		return map[string]any{"_type": typeNameOf(rv.Type())}
	}
}

// summarizeOther handles structs and everything with no better shape.
// A stringable Id/ID field is captured when present.
func summarizeOther(rv reflect.Value) map[string]any {
	summary := map[string]any{"_type": typeNameOf(rv.Type())}

	if rv.Kind() == reflect.Struct {
		for _, name := range []string{"ID", "Id"} {
			if field := rv.FieldByName(name); field.IsValid() && field.CanInterface() {
				summary["_id"] = fmt.Sprintf("%v", field.Interface())

				break
			}
		}
	}

	return summary
}

// InferCount derives an item count from a value, for input_count /
// output_count on steps.
//
// Ordered sequences report their length. Maps report the length of the
// first recognized collection key (items, results, data, records,
// candidates). Everything else, strings included, reports nothing.
func InferCount(v any) *int {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}

		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()

		return &n

	case reflect.Map:
		item, ok := asStringMap(rv)
		if !ok {
			return nil
		}

		for _, key := range collectionKeys {
			value, exists := item[key]
			if !exists {
				continue
			}

			inner := reflect.ValueOf(value)
			if inner.Kind() == reflect.Slice || inner.Kind() == reflect.Array {
				n := inner.Len()

				return &n
			}
		}

		return nil

	default:
		return nil
	}
}

// asStringMap converts a reflect map (or a value holding one) into
// map[string]any. Returns false for non-maps and maps with non-string keys.
func asStringMap(rv reflect.Value) (map[string]any, bool) {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}

		rv = rv.Elem()
	}

	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	out := make(map[string]any, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}

	return out, true
}

// firstField returns the first present field among names, in order.
func firstField(item map[string]any, names []string) (any, bool) {
	for _, name := range names {
		if value, ok := item[name]; ok {
			return value, true
		}
	}

	return nil, false
}

// typeName names a value's dynamic type for _type tags.
func typeName(v any) string {
	if v == nil {
		return "null"
	}

	return typeNameOf(reflect.TypeOf(v))
}

// typeNameOf collapses common container kinds to stable names so summaries
// do not leak Go-specific type syntax.
func typeNameOf(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "dict"
	case reflect.String:
		return "str"
	case reflect.Bool:
		return "bool"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	default:
		if name := t.Name(); name != "" {
			return name
		}

		return t.Kind().String()
	}
}
