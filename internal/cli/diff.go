package cli

import (
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/term"
)

const (
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiReset = "\x1b[0m"
)

// renderDiff prints a line diff of before and after in unified style: "-" for
// removed lines, "+" for added ones and two spaces for context.
func renderDiff(before, after string, color bool) string {
	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var b strings.Builder
	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				b.WriteString("  " + line + "\n")
			case diffmatchpatch.DiffDelete:
				writeDiffLine(&b, "- ", line, ansiRed, color)
			case diffmatchpatch.DiffInsert:
				writeDiffLine(&b, "+ ", line, ansiGreen, color)
			}
		}
	}
	return b.String()
}

func writeDiffLine(b *strings.Builder, prefix, line, code string, color bool) {
	if color {
		b.WriteString(code + prefix + line + ansiReset + "\n")
		return
	}
	b.WriteString(prefix + line + "\n")
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
