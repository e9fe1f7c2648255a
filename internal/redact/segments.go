package redact

import (
	"regexp"
	"strings"
)

// segment is a run of text. Sealed segments are already redacted (a token or
// a one-way form) and are never offered to a later pass.
type segment struct {
	text   string
	sealed bool
}

type segments []segment

func newSegments(text string) segments {
	s := segments{{text: text}}
	// Tokens already present in the input are left as they are.
	return s.replace(suffixedTokenRe, func(m []string) string { return m[0] })
}

// replace runs re over every open segment and seals each match with the
// replacement returned by fn. fn receives the submatches of the match.
func (s segments) replace(re *regexp.Regexp, fn func(m []string) string) segments {
	out := make(segments, 0, len(s))
	for _, seg := range s {
		if seg.sealed || seg.text == "" {
			out = append(out, seg)
			continue
		}
		locs := re.FindAllStringSubmatchIndex(seg.text, -1)
		if len(locs) == 0 {
			out = append(out, seg)
			continue
		}
		last := 0
		for _, loc := range locs {
			if loc[0] > last {
				out = append(out, segment{text: seg.text[last:loc[0]]})
			}
			out = append(out, segment{text: fn(submatches(seg.text, loc)), sealed: true})
			last = loc[1]
		}
		if last < len(seg.text) {
			out = append(out, segment{text: seg.text[last:]})
		}
	}
	return out
}

func submatches(text string, loc []int) []string {
	m := make([]string, len(loc)/2)
	for i := range m {
		if loc[2*i] >= 0 {
			m[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return m
}

func (s segments) String() string {
	var b strings.Builder
	for _, seg := range s {
		b.WriteString(seg.text)
	}
	return b.String()
}
