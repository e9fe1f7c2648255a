// Package document applies masking or unmasking to file payloads: plain text
// files directly, and Office Open XML packages (docx, xlsx, pptx) through the
// text nodes of their content parts.
package document

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gzhole/rostershield/internal/redact"
	"github.com/gzhole/rostershield/internal/roster"
)

// Direction says which way a payload travels through the broker.
type Direction int

const (
	// Egress is toward the language model: PII is masked.
	Egress Direction = iota
	// Ingress is toward the LMS: tokens are restored.
	Ingress
)

func (d Direction) String() string {
	switch d {
	case Egress:
		return "egress"
	case Ingress:
		return "ingress"
	default:
		return "unknown"
	}
}

// ParseDirection accepts "egress"/"mask" and "ingress"/"unmask".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "egress", "mask":
		return Egress, nil
	case "ingress", "unmask":
		return Ingress, nil
	}
	return 0, ErrUnknownDirection
}

func (d Direction) transformer(idx *roster.Index, st *redact.Stats) func(string) string {
	if d == Ingress {
		return func(s string) string {
			out, us := redact.UnmaskWithStats(s, idx)
			st.Add(us)
			return out
		}
	}
	return func(s string) string {
		out, ms := redact.MaskWithStats(s, idx)
		st.Add(ms)
		return out
	}
}

const (
	KindText = "text"
	KindDocx = "docx"
	KindXlsx = "xlsx"
	KindPptx = "pptx"
)

var officeExtensions = map[string]string{
	".docx": KindDocx,
	".xlsx": KindXlsx,
	".pptx": KindPptx,
}

var (
	ErrCorruptDocument  = errors.New("corrupt document")
	ErrUnknownDirection = errors.New("unknown direction")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Kind classifies a file name. Anything that is not an Office package is
// treated as text.
func Kind(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if kind, ok := officeExtensions[ext]; ok {
		return kind
	}
	return KindText
}

// IsOfficeDocument reports whether filename names a docx, xlsx or pptx file.
func IsOfficeDocument(filename string) bool {
	return Kind(filename) != KindText
}

// RedactFile masks (Egress) or unmasks (Ingress) a file's content.
//
// Text files that are not valid UTF-8 are returned unchanged without error.
// Office files that cannot be read as a zip archive fail with an error
// wrapping ErrCorruptDocument.
func RedactFile(data []byte, filename string, idx *roster.Index, dir Direction) ([]byte, error) {
	out, _, err := RedactFileWithStats(data, filename, idx, dir)
	return out, err
}

// RedactFileWithStats is RedactFile that also reports what was replaced.
func RedactFileWithStats(data []byte, filename string, idx *roster.Index, dir Direction) ([]byte, redact.Stats, error) {
	var st redact.Stats
	fn := dir.transformer(idx, &st)

	kind := Kind(filename)
	if kind == KindText {
		return redactText(data, fn), st, nil
	}
	out, err := redactPackage(data, kind, fn)
	if err != nil {
		return nil, redact.Stats{}, err
	}
	return out, st, nil
}

func redactText(data []byte, fn func(string) string) []byte {
	body := data
	bom := bytes.HasPrefix(body, utf8BOM)
	if bom {
		body = body[len(utf8BOM):]
	}
	if !utf8.Valid(body) {
		return data
	}
	text := string(body)
	out := fn(text)
	if out == text {
		return data
	}
	if bom {
		return append(append([]byte{}, utf8BOM...), out...)
	}
	return []byte(out)
}
