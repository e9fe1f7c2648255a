package document

import (
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/gzhole/rostershield/internal/redact"
	"github.com/gzhole/rostershield/internal/roster"
)

// Field names of an embedded file inside a tool payload.
const (
	FieldFilename      = "filename"
	FieldContentBase64 = "content_base64"
)

// RedactBase64Payloads walks a decoded JSON value and runs RedactFile over the
// content of every object that carries both a filename and a content_base64
// string. No other string is touched. Payloads that are not valid base64 are
// left alone; a corrupt Office package aborts the walk.
func RedactBase64Payloads(v any, idx *roster.Index, dir Direction) (any, redact.Stats, error) {
	var st redact.Stats
	w := &treeWalker{idx: idx, dir: dir, st: &st, text: func(s string) string { return s }}
	out, err := w.walk(v)
	return out, st, err
}

// RedactTree transforms a decoded JSON value in the given direction: every
// string and map key is masked or unmasked, and embedded files are handled as
// by RedactBase64Payloads instead of being treated as text.
func RedactTree(v any, idx *roster.Index, dir Direction) (any, redact.Stats, error) {
	var st redact.Stats
	w := &treeWalker{idx: idx, dir: dir, st: &st}
	w.text = dir.transformer(idx, &st)
	out, err := w.walk(v)
	return out, st, err
}

type treeWalker struct {
	idx  *roster.Index
	dir  Direction
	st   *redact.Stats
	text func(string) string
}

func (w *treeWalker) walk(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return w.text(val), nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			o, err := w.walk(item)
			if err != nil {
				return nil, err
			}
			out[i] = o
		}
		return out, nil
	case map[string]any:
		return w.walkObject(val)
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = w.text(item)
		}
		return out, nil
	case map[string]string:
		out := make(map[string]string, len(val))
		for _, k := range sortedKeys(val) {
			out[w.text(k)] = w.text(val[k])
		}
		return out, nil
	default:
		return v, nil
	}
}

func (w *treeWalker) walkObject(obj map[string]any) (any, error) {
	name, hasName := obj[FieldFilename].(string)
	encoded, hasContent := obj[FieldContentBase64].(string)
	embedded := hasName && hasContent

	out := make(map[string]any, len(obj))
	for _, k := range sortedKeys(obj) {
		if embedded && k == FieldContentBase64 {
			content, err := w.file(name, encoded)
			if err != nil {
				return nil, err
			}
			out[k] = content
			continue
		}
		o, err := w.walk(obj[k])
		if err != nil {
			return nil, err
		}
		out[w.text(k)] = o
	}
	return out, nil
}

func (w *treeWalker) file(name, encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return encoded, nil
	}
	out, fs, err := RedactFileWithStats(data, name, w.idx, w.dir)
	if err != nil {
		return "", fmt.Errorf("embedded file %q: %w", name, err)
	}
	w.st.Add(fs)
	return base64.StdEncoding.EncodeToString(out), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
