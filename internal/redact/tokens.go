package redact

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the roster field a reversible token stands for.
type Kind string

const (
	KindName      Kind = "name"
	KindStudentID Kind = "CID"
	KindEmail     Kind = "email"
)

// Token is a reversible placeholder for one roster field of one identity.
type Token struct {
	IdentityID int64
	Kind       Kind
}

// String renders the token in its current surface form, e.g. M12345_name.
func (t Token) String() string {
	return fmt.Sprintf("M%d_%s", t.IdentityID, t.Kind)
}

// Bare-form tokens (no kind suffix) are only recognised within this digit range.
const (
	bareMinDigits = 3
	bareMaxDigits = 6
)

// tokenRe matches the current (M1_name), legacy (M1:name) and bare (M123)
// surface forms. Masking substitutes literals wherever they occur, so a
// suffixed token may sit directly against other word characters
// ("essay_M1_name.docx", "M1_name_98765") and is matched without word
// boundaries. The bare form keeps them. Bare matches are range-checked by
// tokenFromMatch.
var tokenRe = regexp.MustCompile(`M([0-9]+)[_:]((?i:name|cid|email))|\bM([0-9]+)\b`)

// suffixedTokenRe matches only tokens that carry a kind suffix. Masking treats
// these spans as already redacted.
var suffixedTokenRe = regexp.MustCompile(`M[0-9]+[_:](?i:name|cid|email)`)

// ParseToken parses a single token in any of the accepted surface forms.
func ParseToken(s string) (Token, bool) {
	m := tokenRe.FindStringSubmatch(s)
	if m == nil || len(m[0]) != len(s) {
		return Token{}, false
	}
	return tokenFromSubmatches(m)
}

// tokenFromSubmatches reads either alternative of tokenRe.
func tokenFromSubmatches(m []string) (Token, bool) {
	if m[1] != "" {
		return tokenFromMatch(m[1], m[2])
	}
	return tokenFromMatch(m[3], "")
}

func tokenFromMatch(digits, suffix string) (Token, bool) {
	if suffix == "" && (len(digits) < bareMinDigits || len(digits) > bareMaxDigits) {
		return Token{}, false
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Token{}, false
	}

	kind := KindName
	switch strings.ToLower(suffix) {
	case "", "name":
		kind = KindName
	case "cid":
		kind = KindStudentID
	case "email":
		kind = KindEmail
	}
	return Token{IdentityID: id, Kind: kind}, true
}
