package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/rostershield/internal/logger"
	"github.com/gzhole/rostershield/internal/mcp"
)

var (
	logFilterOutcome   string
	logFilterDirection string
	logFilterTool      string
	logLast            int
	logSummary         bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the RosterShield audit log with filtering and summary options.
Entries carry counts only, never payloads.

Examples:
  rostershield log                        # Show all entries
  rostershield log --last 20              # Show last 20 entries
  rostershield log --outcome withheld     # Show results that were withheld
  rostershield log --direction ingress    # Show unmasked tool calls
  rostershield log --tool post_feedback   # Show one tool
  rostershield log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterOutcome, "outcome", "", "Filter by outcome (masked, unmasked, passthrough, withheld, dropped)")
	logCmd.Flags().StringVar(&logFilterDirection, "direction", "", "Filter by direction (ingress, egress)")
	logCmd.Flags().StringVar(&logFilterTool, "tool", "", "Filter by tool name")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

type logFilter struct {
	outcome   string
	direction string
	tool      string
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	events, err := readAuditLog(cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No audit log entries found.")
		return nil
	}

	filtered := filterEvents(events, logFilter{
		outcome:   logFilterOutcome,
		direction: logFilterDirection,
		tool:      logFilterTool,
	})

	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(out, events)
		return nil
	}

	printEvents(out, filtered)
	return nil
}

func readAuditLog(path string) ([]logger.AuditEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []logger.AuditEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event logger.AuditEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip malformed lines
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func filterEvents(events []logger.AuditEvent, f logFilter) []logger.AuditEvent {
	if f == (logFilter{}) {
		return events
	}

	var filtered []logger.AuditEvent
	for _, e := range events {
		if f.outcome != "" && !strings.EqualFold(e.Outcome, f.outcome) {
			continue
		}
		if f.direction != "" && !strings.EqualFold(e.Direction, f.direction) {
			continue
		}
		if f.tool != "" && e.ToolName != f.tool {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(w io.Writer, events []logger.AuditEvent) {
	for _, e := range events {
		ts := formatTimestamp(e.Timestamp)
		label := e.Method
		if e.ToolName != "" {
			label = e.ToolName
		}
		if label == "" {
			label = "(response)"
		}

		fmt.Fprintf(w, "%s %s %-7s %-11s %s\n", outcomeIcon(e.Outcome), ts, e.Direction, e.Outcome, label)
		if e.CourseID != 0 {
			fmt.Fprintf(w, "     Course: %d\n", e.CourseID)
		}
		if e.Tokens > 0 || e.OneWay > 0 || e.Unresolved > 0 {
			fmt.Fprintf(w, "     Tokens: %d  One-way: %d  Unresolved: %d\n", e.Tokens, e.OneWay, e.Unresolved)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "     Error: %s\n", e.Error)
		}
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, all []logger.AuditEvent) {
	counts := map[string]int{}
	tokens, oneWay, unresolved, errorCount := 0, 0, 0, 0

	for _, e := range all {
		counts[e.Outcome]++
		tokens += e.Tokens
		oneWay += e.OneWay
		unresolved += e.Unresolved
		if e.Error != "" {
			errorCount++
		}
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  RosterShield Audit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total events:    %d\n", len(all))
	fmt.Fprintf(w, "  Unmasked:        %d\n", counts[mcp.OutcomeUnmasked])
	fmt.Fprintf(w, "  Masked:          %d\n", counts[mcp.OutcomeMasked])
	fmt.Fprintf(w, "  Passthrough:     %d\n", counts[mcp.OutcomePassthrough])
	fmt.Fprintf(w, "  Withheld:        %d\n", counts[mcp.OutcomeWithheld])
	fmt.Fprintf(w, "  Dropped:         %d\n", counts[mcp.OutcomeDropped])
	fmt.Fprintf(w, "  Errors:          %d\n", errorCount)
	fmt.Fprintln(w, "───────────────────────────────────────────")
	fmt.Fprintf(w, "  Tokens:          %d\n", tokens)
	fmt.Fprintf(w, "  One-way:         %d\n", oneWay)
	fmt.Fprintf(w, "  Unresolved:      %d\n", unresolved)
	fmt.Fprintln(w, "═══════════════════════════════════════════")

	if len(all) > 0 {
		fmt.Fprintf(w, "  First event:     %s\n", formatTimestamp(all[0].Timestamp))
		fmt.Fprintf(w, "  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))
	}

	var withheld []logger.AuditEvent
	for _, e := range all {
		if e.Outcome == mcp.OutcomeWithheld {
			withheld = append(withheld, e)
		}
	}
	if len(withheld) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Withheld results:")
		limit := len(withheld)
		if limit > 10 {
			limit = 10
		}
		for _, e := range withheld[len(withheld)-limit:] {
			fmt.Fprintf(w, "    %s %s course %d\n", formatTimestamp(e.Timestamp), e.ToolName, e.CourseID)
		}
	}

	fmt.Fprintln(w)
}

func outcomeIcon(outcome string) string {
	switch outcome {
	case mcp.OutcomeWithheld, mcp.OutcomeDropped:
		return "\xf0\x9f\x9b\x91" // stop sign
	case mcp.OutcomeMasked, mcp.OutcomeUnmasked:
		return "\xe2\x9c\x85" // check mark
	case mcp.OutcomePassthrough:
		return "\xe2\x9e\xa1" // arrow
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
