// Package approval asks the operator to confirm destructive roster actions.
package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Approved   bool
	UserAction string
}

type Prompt struct {
	Action   string
	OwnerID  string
	CourseID int64
	Entries  int
}

// Asker reads answers from In and writes the prompt to Out. Interactive
// reports whether a human is on the other end; when it returns false every
// prompt is denied.
type Asker struct {
	In          io.Reader
	Out         io.Writer
	Interactive func() bool
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Default prompts on the process's stdin and stderr.
func Default() *Asker {
	return &Asker{In: os.Stdin, Out: os.Stderr, Interactive: IsInteractive}
}

func (a *Asker) Ask(p Prompt) Result {
	if a.Interactive != nil && !a.Interactive() {
		return Result{
			Approved:   false,
			UserAction: "auto_deny_non_interactive",
		}
	}

	fmt.Fprintln(a.Out, "")
	fmt.Fprintf(a.Out, "About to %s for owner %q, course %d", p.Action, p.OwnerID, p.CourseID)
	if p.Entries > 0 {
		fmt.Fprintf(a.Out, " (%d entries)", p.Entries)
	}
	fmt.Fprintln(a.Out, ".")
	fmt.Fprintln(a.Out, "Tokens already handed to the model for this course will stop resolving.")
	fmt.Fprintln(a.Out, "")

	reader := bufio.NewReader(a.In)

	for {
		fmt.Fprint(a.Out, "Continue? [y/n]: ")
		input, err := reader.ReadString('\n')
		if err != nil && strings.TrimSpace(input) == "" {
			return Result{
				Approved:   false,
				UserAction: "error_reading_input",
			}
		}

		input = strings.TrimSpace(strings.ToLower(input))

		switch input {
		case "y", "yes":
			return Result{
				Approved:   true,
				UserAction: "approve",
			}
		case "n", "no":
			return Result{
				Approved:   false,
				UserAction: "deny",
			}
		default:
			fmt.Fprintln(a.Out, "Invalid input. Please enter 'y' or 'n'.")
			if err != nil {
				return Result{Approved: false, UserAction: "error_reading_input"}
			}
		}
	}
}
