package redact

import (
	"regexp"
	"strings"
)

var (
	// unknownEmailRe matches any email-shaped span. The local part excludes
	// '*', so an already redacted jac**@example.edu never matches again.
	unknownEmailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@([A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,})`)

	// unknownStudentIDRe matches a letter followed by 7 or 8 digits. The word
	// boundaries keep it off token spans such as M1234567_name.
	unknownStudentIDRe = regexp.MustCompile(`\b[A-Za-z]([0-9]{7,8})\b`)

	// honorificRe matches a title followed by one or more capitalised words on
	// the same line.
	honorificRe = regexp.MustCompile(`\b(Professor|Prof|Mrs|Mr|Ms|Dr)(\.?[ \t]+)([A-Z][A-Za-z'\-]*(?:[ \t]+[A-Z][A-Za-z'\-]*)*)`)

	nameWordRe = regexp.MustCompile(`[A-Z][A-Za-z'\-]*`)
)

// RedactUnknown applies only the one-way heuristics to text: emails,
// student-ID shaped strings and honorific-prefixed names. Nothing it produces
// can be restored by Unmask.
func RedactUnknown(text string) string {
	var st Stats
	return redactUnknown(newSegments(text), &st).String()
}

func redactUnknown(segs segments, st *Stats) segments {
	segs = segs.replace(unknownEmailRe, func(m []string) string {
		st.OneWay++
		return redactEmail(m[0])
	})
	segs = segs.replace(unknownStudentIDRe, func(m []string) string {
		st.OneWay++
		return "C***" + m[1][len(m[1])-3:]
	})
	segs = segs.replace(honorificRe, func(m []string) string {
		st.OneWay++
		return m[1] + m[2] + nameWordRe.ReplaceAllStringFunc(m[3], redactNameWord)
	})
	return segs
}

// redactEmail keeps the first three characters of the local part and the
// whole domain: jackson.smith@example.edu becomes jac**@example.edu.
func redactEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return email
	}
	local := []rune(email[:at])
	if len(local) > 3 {
		local = local[:3]
	}
	return string(local) + "**" + email[at:]
}

// redactNameWord keeps the first three characters of a name word and appends
// ***. Words of three characters or fewer keep all of them.
func redactNameWord(word string) string {
	r := []rune(word)
	if len(r) > 3 {
		r = r[:3]
	}
	return string(r) + "***"
}
