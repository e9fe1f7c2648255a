package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gzhole/rostershield/internal/document"
	"github.com/gzhole/rostershield/internal/redact"
)

var (
	redactCourse    int64
	redactInput     string
	redactOutput    string
	redactJSON      bool
	redactDiff      bool
	redactDirection string
)

var maskCmd = &cobra.Command{
	Use:   "mask",
	Short: "Replace student PII in text with roster tokens",
	Long: `Reads text from --file or stdin and writes the masked text to stdout.

  rostershield mask --course 42 < feedback.txt
  rostershield mask --json --file participants.json
  rostershield mask --diff --file feedback.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return transformCommand(cmd, document.Egress)
	},
}

var unmaskCmd = &cobra.Command{
	Use:   "unmask",
	Short: "Restore roster tokens in text to the real identifiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return transformCommand(cmd, document.Ingress)
	},
}

var redactFileCmd = &cobra.Command{
	Use:   "redact-file",
	Short: "Mask or unmask a document (txt, csv, md, json, html, docx, xlsx, pptx)",
	Long: `Transforms one file. The format is chosen from the --in file name.

  rostershield redact-file --in grades.xlsx --out grades.masked.xlsx
  rostershield redact-file --direction unmask --in draft.docx --out final.docx`,
	RunE: redactFileCommand,
}

func init() {
	for _, c := range []*cobra.Command{maskCmd, unmaskCmd} {
		c.Flags().Int64Var(&redactCourse, "course", 0, "LMS course id (default: current course context)")
		c.Flags().StringVarP(&redactInput, "file", "f", "", "Read input from file instead of stdin")
		c.Flags().BoolVar(&redactJSON, "json", false, "Treat input as JSON and transform keys and values")
		c.Flags().BoolVar(&redactDiff, "diff", false, "Print a line diff of the change instead of the result")
		rootCmd.AddCommand(c)
	}

	redactFileCmd.Flags().Int64Var(&redactCourse, "course", 0, "LMS course id (default: current course context)")
	redactFileCmd.Flags().StringVar(&redactInput, "in", "", "Input file (required)")
	redactFileCmd.Flags().StringVar(&redactOutput, "out", "", "Output file (default: stdout)")
	redactFileCmd.Flags().StringVar(&redactDirection, "direction", "mask", "mask or unmask")
	_ = redactFileCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(redactFileCmd)
}

func coursePtr(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(cmd.InOrStdin())
}

func transformCommand(cmd *cobra.Command, dir document.Direction) error {
	input, err := readInput(cmd, redactInput)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	course := coursePtr(redactCourse)
	var (
		out []byte
		st  redact.Stats
	)
	if redactJSON {
		out, st, err = transformJSON(cmd, e, course, input, dir)
	} else {
		var s string
		if dir == document.Egress {
			s, st, err = e.svc.Mask(cmd.Context(), e.owner, course, string(input))
		} else {
			s, st, err = e.svc.Unmask(cmd.Context(), e.owner, course, string(input))
		}
		out = []byte(s)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if redactDiff {
		fmt.Fprint(w, renderDiff(string(input), string(out), stdoutIsTerminal()))
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d token(s), %d one-way, %d unresolved\n",
			dir, st.Tokens(), st.OneWay, st.Unresolved)
		return nil
	}
	_, err = w.Write(out)
	return err
}

func transformJSON(cmd *cobra.Command, e *env, course *int64, input []byte, dir document.Direction) ([]byte, redact.Stats, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, redact.Stats{}, fmt.Errorf("invalid JSON input: %w", err)
	}

	out, st, err := e.svc.TransformValue(cmd.Context(), e.owner, course, v, dir)
	if err != nil {
		return nil, st, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, st, err
	}
	return buf.Bytes(), st, nil
}

func redactFileCommand(cmd *cobra.Command, args []string) error {
	dir, err := document.ParseDirection(redactDirection)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(redactInput)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.Close()

	out, st, err := e.svc.RedactFile(cmd.Context(), e.owner, coursePtr(redactCourse), data, redactInput, dir)
	if err != nil {
		return err
	}

	if redactOutput == "" {
		_, err = cmd.OutOrStdout().Write(out)
		return err
	}
	if err := os.WriteFile(redactOutput, out, 0600); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s: %d token(s), %d one-way)\n",
		redactOutput, dir, st.Tokens(), st.OneWay)
	return nil
}
