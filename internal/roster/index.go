package roster

import (
	"regexp"
	"sort"
	"strings"
)

// Matcher is one literal surface form bound to the identity it belongs to.
// Re matches the literal case-insensitively, with any run of whitespace in the
// literal accepting any run of whitespace in the text.
type Matcher struct {
	Literal    string
	IdentityID int64
	Re         *regexp.Regexp
}

// Index is an immutable lookup snapshot over one course roster. It is safe for
// concurrent use once built.
type Index struct {
	entries    []Entry
	byName     map[string]*Entry
	byEmail    map[string]*Entry
	byStudent  map[string]*Entry
	byIdentity map[int64]*Entry

	emails     []Matcher
	names      []Matcher
	studentIDs []Matcher
}

// NewIndex builds the lookups for a roster. The entries slice is copied.
// An empty or nil roster yields an empty index.
func NewIndex(entries []Entry) *Index {
	idx := &Index{
		entries:    make([]Entry, len(entries)),
		byName:     make(map[string]*Entry, len(entries)),
		byEmail:    make(map[string]*Entry, len(entries)),
		byStudent:  make(map[string]*Entry, len(entries)),
		byIdentity: make(map[int64]*Entry, len(entries)),
	}
	copy(idx.entries, entries)

	for i := range idx.entries {
		e := &idx.entries[i]
		if name := strings.TrimSpace(e.DisplayName); name != "" {
			key := strings.ToLower(name)
			if _, taken := idx.byName[key]; !taken {
				idx.byName[key] = e
			}
			for _, p := range Patterns(name) {
				idx.names = append(idx.names, newMatcher(p, e.IdentityID))
			}
		}
		if e.HasEmail() {
			email := strings.TrimSpace(e.Email)
			idx.byEmail[strings.ToLower(email)] = e
			idx.emails = append(idx.emails, newMatcher(email, e.IdentityID))
		}
		if e.HasStudentID() {
			sid := strings.TrimSpace(e.StudentID)
			idx.byStudent[strings.ToUpper(sid)] = e
			idx.studentIDs = append(idx.studentIDs, newMatcher(sid, e.IdentityID))
		}
		if _, taken := idx.byIdentity[e.IdentityID]; !taken {
			idx.byIdentity[e.IdentityID] = e
		}
	}

	// Longest literal first across the whole roster. Stable, so equal-length
	// literals keep roster order and the earlier entry wins a shared name.
	for _, list := range [][]Matcher{idx.emails, idx.names, idx.studentIDs} {
		sort.SliceStable(list, func(i, j int) bool {
			return len(list[i].Literal) > len(list[j].Literal)
		})
	}
	return idx
}

func newMatcher(literal string, identityID int64) Matcher {
	words := strings.Fields(literal)
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return Matcher{
		Literal:    literal,
		IdentityID: identityID,
		Re:         regexp.MustCompile(`(?i)` + strings.Join(quoted, `\s+`)),
	}
}

// Len returns the number of entries in the roster.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}

// Empty reports whether the index holds no entries.
func (x *Index) Empty() bool { return x.Len() == 0 }

// Entries returns a copy of the roster rows.
func (x *Index) Entries() []Entry {
	if x == nil {
		return nil
	}
	out := make([]Entry, len(x.entries))
	copy(out, x.entries)
	return out
}

// ByName looks an entry up by display name, ignoring case.
func (x *Index) ByName(name string) (*Entry, bool) {
	if x == nil {
		return nil, false
	}
	e, ok := x.byName[strings.ToLower(strings.TrimSpace(name))]
	return e, ok
}

// ByEmail looks an entry up by email, ignoring case.
func (x *Index) ByEmail(email string) (*Entry, bool) {
	if x == nil {
		return nil, false
	}
	e, ok := x.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return e, ok
}

// ByStudentID looks an entry up by student ID, ignoring case.
func (x *Index) ByStudentID(studentID string) (*Entry, bool) {
	if x == nil {
		return nil, false
	}
	e, ok := x.byStudent[strings.ToUpper(strings.TrimSpace(studentID))]
	return e, ok
}

// ByIdentity looks an entry up by its identity ID.
func (x *Index) ByIdentity(id int64) (*Entry, bool) {
	if x == nil {
		return nil, false
	}
	e, ok := x.byIdentity[id]
	return e, ok
}

// EmailMatchers returns the email literals, longest first.
func (x *Index) EmailMatchers() []Matcher {
	if x == nil {
		return nil
	}
	return x.emails
}

// NameMatchers returns every generated name pattern of every entry, longest
// first across the whole roster.
func (x *Index) NameMatchers() []Matcher {
	if x == nil {
		return nil
	}
	return x.names
}

// StudentIDMatchers returns the student ID literals, longest first.
func (x *Index) StudentIDMatchers() []Matcher {
	if x == nil {
		return nil
	}
	return x.studentIDs
}

// Collision is a display name shared by more than one identity.
type Collision struct {
	DisplayName string  `json:"display_name"`
	IdentityIDs []int64 `json:"identity_ids"`
}

// Collisions lists display names claimed by more than one identity. Masking
// routes every such name to the first identity in roster order.
func (x *Index) Collisions() []Collision {
	if x == nil {
		return nil
	}
	groups := make(map[string][]int64)
	names := make(map[string]string)
	var order []string
	for _, e := range x.entries {
		key := strings.ToLower(strings.Join(strings.Fields(e.DisplayName), " "))
		if key == "" {
			continue
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
			names[key] = strings.TrimSpace(e.DisplayName)
		}
		groups[key] = append(groups[key], e.IdentityID)
	}

	var out []Collision
	for _, key := range order {
		ids := groups[key]
		if len(ids) < 2 {
			continue
		}
		out = append(out, Collision{
			DisplayName: names[key],
			IdentityIDs: ids,
		})
	}
	return out
}
