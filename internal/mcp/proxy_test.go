package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

// fakeExecutor answers tools/call requests on the server side of a pipe by
// echoing the "text" argument. It records every line it receives.
type fakeExecutor struct {
	mu       sync.Mutex
	received []string
}

func (f *fakeExecutor) serve(in io.Reader, out io.WriteCloser) {
	defer func() { _ = out.Close() }()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		f.mu.Lock()
		f.received = append(f.received, line)
		f.mu.Unlock()

		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.ID == nil {
			continue
		}
		var params CallToolParams
		_ = json.Unmarshal(msg.Params, &params)
		text, _ := json.Marshal(fmt.Sprintf("Posted: %v", params.Arguments["text"]))
		_, _ = fmt.Fprintf(out, `{"jsonrpc":"2.0","id":%s,"result":{"content":[{"type":"text","text":%s}]}}`+"\n", *msg.ID, text)
	}
}

func (f *fakeExecutor) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.received...)
}

// runProxy pipes clientInput through a proxy to a fakeExecutor and returns
// what the client received.
func runProxy(t *testing.T, rosters *fakeRosters, audit *auditRecorder, clientInput string) (string, *fakeExecutor) {
	t.Helper()

	proxy := NewProxy(ProxyConfig{
		Rosters: rosters,
		OwnerID: "teacher-1",
		OnAudit: audit.record,
		Stderr:  io.Discard,
	})

	toServerR, toServerW := io.Pipe()
	fromServerR, fromServerW := io.Pipe()
	executor := &fakeExecutor{}
	go executor.serve(toServerR, fromServerW)

	var clientOutput bytes.Buffer
	proxy.RunWithIO(context.Background(), strings.NewReader(clientInput), &clientOutput, fromServerR, toServerW)
	return clientOutput.String(), executor
}

func TestProxy_RoundTrip(t *testing.T) {
	audit := &auditRecorder{}
	clientInput := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"post_feedback","arguments":{"course_id":42,"text":"Nice essay M12345_name"}}}` + "\n"

	output, executor := runProxy(t, testRosters(), audit, clientInput)

	received := executor.lines()
	if len(received) != 1 {
		t.Fatalf("expected executor to receive 1 line, got %d", len(received))
	}
	if !strings.Contains(received[0], "Nice essay Jackson Smith") {
		t.Errorf("executor did not receive the real name: %s", received[0])
	}

	if strings.Contains(output, "Jackson") {
		t.Fatalf("client output leaked the real name: %s", output)
	}
	if got := resultText(t, []byte(strings.TrimSpace(output))); got != "Posted: Nice essay M12345_name" {
		t.Errorf("client result = %q", got)
	}

	entries := audit.all()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Source != "mcp-proxy" {
			t.Errorf("expected source mcp-proxy, got %q", e.Source)
		}
	}
}

func TestProxy_SkipsEmptyLines(t *testing.T) {
	clientInput := "\n\n" + `{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n\n"

	output, executor := runProxy(t, testRosters(), &auditRecorder{}, clientInput)

	received := executor.lines()
	if len(received) != 1 {
		t.Fatalf("expected 1 forwarded line, got %d: %v", len(received), received)
	}
	if received[0] != `{"jsonrpc":"2.0","method":"notifications/initialized"}` {
		t.Errorf("notification changed: %s", received[0])
	}
	if output != "" {
		t.Errorf("expected no client output, got %q", output)
	}
}

func TestProxy_MultipleCalls(t *testing.T) {
	var lines []string
	for i := 1; i <= 5; i++ {
		lines = append(lines, fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"post_feedback","arguments":{"course_id":42,"text":"note %d for M12345_name"}}}`, i, i))
	}

	output, _ := runProxy(t, testRosters(), &auditRecorder{}, strings.Join(lines, "\n")+"\n")

	responses := strings.Split(strings.TrimSpace(output), "\n")
	if len(responses) != 5 {
		t.Fatalf("expected 5 responses, got %d", len(responses))
	}
	for i, r := range responses {
		want := fmt.Sprintf("Posted: note %d for M12345_name", i+1)
		if got := resultText(t, []byte(r)); got != want {
			t.Errorf("response %d = %q, want %q", i, got, want)
		}
	}
}

func TestProxy_RunRequiresServerCommand(t *testing.T) {
	proxy := NewProxy(ProxyConfig{Rosters: testRosters(), Stderr: io.Discard})
	if err := proxy.Run(context.Background()); err == nil {
		t.Fatal("expected error with no server command")
	}
}

func TestWriteLineToWriter(t *testing.T) {
	var buf bytes.Buffer
	writeLineToWriter(&buf, []byte(`{"a":1}`))
	if buf.String() != "{\"a\":1}\n" {
		t.Errorf("got %q", buf.String())
	}
}
