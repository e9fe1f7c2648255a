package redact

import (
	"strings"

	"github.com/gzhole/rostershield/internal/roster"
)

// Unmask restores roster tokens in text to the real values. Tokens naming an
// identity that is not in idx, or a field the entry has no value for, are left
// as they are. One-way redactions are never touched.
func Unmask(text string, idx *roster.Index) string {
	out, _ := UnmaskWithStats(text, idx)
	return out
}

// UnmaskWithStats is Unmask that also reports resolved and unresolved tokens.
func UnmaskWithStats(text string, idx *roster.Index) (string, Stats) {
	var st Stats
	if text == "" || !strings.Contains(text, "M") {
		return text, st
	}

	out := tokenRe.ReplaceAllStringFunc(text, func(match string) string {
		m := tokenRe.FindStringSubmatch(match)
		tok, ok := tokenFromSubmatches(m)
		if !ok {
			return match
		}
		value, ok := resolve(tok, idx)
		if !ok {
			st.Unresolved++
			return match
		}
		st.count(tok.Kind)
		return value
	})
	return out, st
}

func resolve(tok Token, idx *roster.Index) (string, bool) {
	e, ok := idx.ByIdentity(tok.IdentityID)
	if !ok {
		return "", false
	}
	var value string
	switch tok.Kind {
	case KindName:
		value = e.DisplayName
	case KindStudentID:
		value = e.StudentID
	case KindEmail:
		value = e.Email
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
