package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAuditLogger_Log(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test_audit.jsonl")

	logger, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Close()
	}()

	event := AuditEvent{
		Timestamp: "2026-02-02T12:00:00Z",
		Source:    "mcp-proxy",
		Direction: "egress",
		ToolName:  "get_participants",
		CourseID:  42,
		Outcome:   "masked",
		Tokens:    3,
	}

	if err := logger.Log(event); err != nil {
		t.Fatalf("failed to log event: %v", err)
	}

	_ = logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var parsed AuditEvent
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("failed to parse log line as JSON: %v", err)
	}

	if parsed.ToolName != "get_participants" {
		t.Errorf("expected tool 'get_participants', got '%s'", parsed.ToolName)
	}
	if parsed.Tokens != 3 || parsed.CourseID != 42 {
		t.Errorf("counts not preserved: %+v", parsed)
	}
	if len(parsed.ID) != 36 {
		t.Errorf("expected a generated uuid, got %q", parsed.ID)
	}
	if parsed.Timestamp != "2026-02-02T12:00:00Z" {
		t.Errorf("timestamp overwritten: %q", parsed.Timestamp)
	}
}

func TestAuditLogger_UniqueIDs(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	lg, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := lg.Log(AuditEvent{Source: "api", Outcome: "ok"}); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	_ = lg.Close()

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	seen := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad line: %v", err)
		}
		if ev.Timestamp == "" {
			t.Error("timestamp not filled in")
		}
		seen[ev.ID] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct ids, got %d", len(seen))
	}
}

func TestAuditLogger_ScrubsErrors(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.jsonl")
	lg, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	event := AuditEvent{
		Source:  "mcp-proxy",
		Outcome: "error",
		Error:   "executor failed for jackson.smith@example.edu (C00123456) MoodleSession=abcdef0123456789",
	}
	if err := lg.Log(event); err != nil {
		t.Fatalf("Log: %v", err)
	}
	_ = lg.Close()

	data, _ := os.ReadFile(logPath)
	for _, leak := range []string{"jackson.smith@", "C00123456", "abcdef0123456789"} {
		if strings.Contains(string(data), leak) {
			t.Errorf("audit line leaks %q: %s", leak, data)
		}
	}
}

func TestAuditLogger_Rotation(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.jsonl")

	// Pre-create the log file already at the rotation limit.
	big := make([]byte, defaultMaxLogBytes)
	if err := os.WriteFile(logPath, big, 0600); err != nil {
		t.Fatalf("failed to seed large log file: %v", err)
	}

	lg, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = lg.Close() }()

	event := AuditEvent{
		Timestamp: "2026-03-01T00:00:00Z",
		Source:    "cli",
		Outcome:   "ok",
	}
	if err := lg.Log(event); err != nil {
		t.Fatalf("Log after rotation failed: %v", err)
	}

	// .1 backup must exist
	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected rotated file %s.1 to exist: %v", logPath, err)
	}

	// Fresh log must be small (just the one new line)
	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("fresh log file missing: %v", err)
	}
	if info.Size() >= defaultMaxLogBytes {
		t.Errorf("fresh log file is still %d bytes; expected < %d", info.Size(), defaultMaxLogBytes)
	}
}

func TestAuditLogger_FailedRotationKeepsLogging(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "audit.jsonl")

	// A non-empty directory in the way of the backup makes the rename fail.
	if err := os.MkdirAll(filepath.Join(logPath+".1", "keep"), 0700); err != nil {
		t.Fatal(err)
	}

	lg, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = lg.Close() }()
	lg.maxBytes = 10

	if err := lg.Log(AuditEvent{Source: "cli", Outcome: "first"}); err != nil {
		t.Fatalf("first Log: %v", err)
	}
	if err := lg.Log(AuditEvent{Source: "cli", Outcome: "second"}); err == nil {
		t.Error("expected the failed rotation to be reported")
	}
	if err := lg.Log(AuditEvent{Source: "cli", Outcome: "third"}); err == nil {
		t.Error("expected the failed rotation to be reported again")
	}
	_ = lg.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	for _, want := range []string{`"outcome":"first"`, `"outcome":"second"`, `"outcome":"third"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log is missing %s after a failed rotation:\n%s", want, data)
		}
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "secure_audit.jsonl")

	logger, err := New(logPath)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	_ = logger.Close()

	info, err := os.Stat(logPath)
	if err != nil {
		t.Fatalf("failed to stat log file: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("expected file permissions 0600, got %04o", perm)
	}
}
