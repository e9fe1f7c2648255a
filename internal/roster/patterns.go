package roster

import (
	"sort"
	"strings"
)

// Patterns returns the surface forms under which displayName may appear in
// scraped LMS text, longest first.
//
// For a name with at least two parts (first, optional middle, last) the forms
// are: the display name itself, "Last, First", "Last, First Middle" when a
// middle part exists, and "Last First". A single-word name yields only itself.
// Bare first or last names are never generated.
func Patterns(displayName string) []string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil
	}
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return []string{name}
	}

	first := parts[0]
	last := parts[len(parts)-1]
	middle := strings.Join(parts[1:len(parts)-1], " ")

	candidates := []string{
		name,
		last + ", " + first,
	}
	if middle != "" {
		candidates = append(candidates, last+", "+first+" "+middle)
	}
	candidates = append(candidates, last+" "+first)

	out := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i]) > len(out[j])
	})
	return out
}
