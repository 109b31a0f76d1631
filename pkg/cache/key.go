package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// KeyPrefix starts every canonical request key.
const KeyPrefix = "gql"

// paginationFields are coerced to numbers so "1" and 1 share one key.
var paginationFields = map[string]bool{
	"limit":  true,
	"offset": true,
	"page":   true,
}

// CacheKey identifies one outbound query: its document plus its variables.
type CacheKey struct {
	// Query is the query document. Whitespace is insignificant.
	Query string

	// Variables are the query variables. Any JSON-encodable value is accepted.
	Variables map[string]any
}

// String generates the canonical key.
// Format: gql:<whitespace-normalized query>:<canonical variables JSON>
//
// Example:
//
//	gql:query Attrs($slug: String!) { categoryAttributes(slug: $slug) { key } }:{"slug":"cars"}
func (k CacheKey) String() string {
	return KeyPrefix + ":" + NormalizeQuery(k.Query) + ":" + CanonicalVariables(k.Variables)
}

// NormalizeQuery collapses every run of whitespace into a single space.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

// CanonicalVariables serializes variables with deep-sorted object keys and
// numeric pagination fields.
func CanonicalVariables(vars map[string]any) string {
	if len(vars) == 0 {
		return "{}"
	}

	// Round-trip through JSON so structs, typed maps and pointers all end up
	// as plain maps, slices and numbers.
	raw, err := json.Marshal(vars)
	if err != nil {
		return fmt.Sprintf("%v", vars)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return string(raw)
	}

	// encoding/json writes map keys in sorted order at every depth.
	out, err := json.Marshal(normalizeValue(generic, ""))
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func normalizeValue(v any, field string) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for key, val := range x {
			out[key] = normalizeValue(val, key)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalizeValue(val, "")
		}
		return out
	case string:
		if paginationFields[field] {
			if n, ok := parseNumber(strings.TrimSpace(x)); ok {
				return n
			}
		}
		return x
	case json.Number:
		if n, ok := parseNumber(string(x)); ok {
			return n
		}
		return x
	default:
		return x
	}
}

// parseNumber canonicalizes a numeric literal. Integer literals keep every
// digit; fractional and exponent forms go through float64 so 1 and 1.0 agree.
func parseNumber(s string) (json.Number, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return json.Number(strconv.FormatInt(i, 10)), true
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return json.Number(strconv.FormatUint(u, 10)), true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return json.Number(strconv.FormatInt(int64(f), 10)), true
	}
	return json.Number(strconv.FormatFloat(f, 'f', -1, 64)), true
}
