// Package redact replaces student PII in text with reversible roster tokens
// (masking, before data leaves for the language model) and restores it
// (unmasking, before LLM-authored content is posted back to the LMS).
//
// All functions are pure: they depend only on their arguments and are safe to
// call concurrently with a shared *roster.Index.
package redact

import (
	"github.com/gzhole/rostershield/internal/roster"
)

// Stats counts what a mask or unmask call did.
type Stats struct {
	Names      int `json:"names,omitempty"`
	StudentIDs int `json:"student_ids,omitempty"`
	Emails     int `json:"emails,omitempty"`
	OneWay     int `json:"one_way,omitempty"`
	Unresolved int `json:"unresolved,omitempty"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Names += o.Names
	s.StudentIDs += o.StudentIDs
	s.Emails += o.Emails
	s.OneWay += o.OneWay
	s.Unresolved += o.Unresolved
}

// Tokens returns the number of reversible tokens emitted or resolved.
func (s Stats) Tokens() int { return s.Names + s.StudentIDs + s.Emails }

// Total returns every substitution counted.
func (s Stats) Total() int { return s.Tokens() + s.OneWay }

func (s *Stats) count(k Kind) {
	switch k {
	case KindName:
		s.Names++
	case KindStudentID:
		s.StudentIDs++
	case KindEmail:
		s.Emails++
	}
}

// maskPass is one substitution stage of the masking pipeline.
type maskPass struct {
	name string
	run  func(segs segments, idx *roster.Index, st *Stats) segments
}

// maskPipeline is applied in order. Each pass only sees text that no earlier
// pass has replaced, so the order is load-bearing:
//
//   - emails first: the local part often embeds the student ID, and a whole
//     email must be replaced before the student ID pass can claim part of it;
//   - names next, longest pattern first across the whole roster, so a longer
//     name wins over a shorter entry's pattern inside the same span;
//   - student IDs after emails have been consumed;
//   - the unknown-PII heuristics last, over whatever is left.
var maskPipeline = []maskPass{
	{name: "email", run: func(segs segments, idx *roster.Index, st *Stats) segments {
		return replaceLiterals(segs, idx.EmailMatchers(), KindEmail, st)
	}},
	{name: "name", run: func(segs segments, idx *roster.Index, st *Stats) segments {
		return replaceLiterals(segs, idx.NameMatchers(), KindName, st)
	}},
	{name: "student_id", run: func(segs segments, idx *roster.Index, st *Stats) segments {
		return replaceLiterals(segs, idx.StudentIDMatchers(), KindStudentID, st)
	}},
	{name: "unknown", run: func(segs segments, _ *roster.Index, st *Stats) segments {
		return redactUnknown(segs, st)
	}},
}

// Mask replaces roster PII in text with tokens and redacts PII-shaped text of
// unknown people one way. With a nil or empty index only the unknown-PII
// heuristics run.
func Mask(text string, idx *roster.Index) string {
	out, _ := MaskWithStats(text, idx)
	return out
}

// MaskWithStats is Mask that also reports what was replaced.
func MaskWithStats(text string, idx *roster.Index) (string, Stats) {
	var st Stats
	if text == "" {
		return text, st
	}
	segs := newSegments(text)
	for _, pass := range maskPipeline {
		if pass.name != "unknown" && idx.Empty() {
			continue
		}
		segs = pass.run(segs, idx, &st)
	}
	return segs.String(), st
}

func replaceLiterals(segs segments, matchers []roster.Matcher, kind Kind, st *Stats) segments {
	for _, m := range matchers {
		tok := Token{IdentityID: m.IdentityID, Kind: kind}.String()
		segs = segs.replace(m.Re, func([]string) string {
			st.count(kind)
			return tok
		})
	}
	return segs
}
