package redact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gzhole/rostershield/internal/roster"
)

// MaskTree masks every string in a decoded JSON-like value, map keys included.
func MaskTree(v any, idx *roster.Index) any {
	out, _ := MaskTreeWithStats(v, idx)
	return out
}

// MaskTreeWithStats is MaskTree that also reports what was replaced.
func MaskTreeWithStats(v any, idx *roster.Index) (any, Stats) {
	var st Stats
	out := walk(v, func(s string) string {
		masked, ms := MaskWithStats(s, idx)
		st.Add(ms)
		return masked
	})
	return out, st
}

// UnmaskTree restores tokens in every string of a decoded JSON-like value,
// map keys included.
func UnmaskTree(v any, idx *roster.Index) any {
	out, _ := UnmaskTreeWithStats(v, idx)
	return out
}

// UnmaskTreeWithStats is UnmaskTree that also reports resolved tokens.
func UnmaskTreeWithStats(v any, idx *roster.Index) (any, Stats) {
	var st Stats
	out := walk(v, func(s string) string {
		restored, us := UnmaskWithStats(s, idx)
		st.Add(us)
		return restored
	})
	return out, st
}

// walk rebuilds v with fn applied to every string. Keys are visited in sorted
// order, so when two keys transform to the same string the lexically last
// original key wins.
func walk(v any, fn func(string) string) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return fn(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = walk(item, fn)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = fn(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for _, k := range sortedKeys(val) {
			out[fn(k)] = walk(val[k], fn)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for _, k := range sortedKeys(val) {
			out[fn(k)] = fn(val[k])
		}
		return out
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaskJSON masks every string in a JSON document, keys included.
func MaskJSON(raw []byte, idx *roster.Index) ([]byte, Stats, error) {
	return transformJSON(raw, func(v any) (any, Stats) { return MaskTreeWithStats(v, idx) })
}

// UnmaskJSON restores tokens in every string of a JSON document.
func UnmaskJSON(raw []byte, idx *roster.Index) ([]byte, Stats, error) {
	return transformJSON(raw, func(v any) (any, Stats) { return UnmaskTreeWithStats(v, idx) })
}

func transformJSON(raw []byte, fn func(any) (any, Stats)) ([]byte, Stats, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw, Stats{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, Stats{}, fmt.Errorf("decode json: %w", err)
	}

	out, st := fn(v)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, st, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), st, nil
}
