package approval

import (
	"bytes"
	"strings"
	"testing"
)

func TestAsk(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		interactive bool
		approved    bool
		action      string
	}{
		{"yes", "y\n", true, true, "approve"},
		{"full word", "YES\n", true, true, "approve"},
		{"no", "n\n", true, false, "deny"},
		{"retry after junk", "maybe\nyes\n", true, true, "approve"},
		{"eof", "", true, false, "error_reading_input"},
		{"junk then eof", "maybe", true, false, "error_reading_input"},
		{"non interactive", "y\n", false, false, "auto_deny_non_interactive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			a := &Asker{
				In:          strings.NewReader(tt.input),
				Out:         &out,
				Interactive: func() bool { return tt.interactive },
			}
			res := a.Ask(Prompt{Action: "clear the roster", OwnerID: "t1", CourseID: 42, Entries: 3})
			if res.Approved != tt.approved || res.UserAction != tt.action {
				t.Errorf("Ask() = %+v, want approved=%v action=%s", res, tt.approved, tt.action)
			}
		})
	}
}

func TestAskPromptText(t *testing.T) {
	var out bytes.Buffer
	a := &Asker{In: strings.NewReader("n\n"), Out: &out}
	a.Ask(Prompt{Action: "clear the roster", OwnerID: "t1", CourseID: 42, Entries: 3})

	got := out.String()
	for _, want := range []string{`owner "t1", course 42 (3 entries)`, "Continue? [y/n]"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}
