package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// AuditEntry records one brokered message for the audit log. It carries
// counts only, never payloads.
type AuditEntry struct {
	Timestamp  string `json:"timestamp"`
	Direction  string `json:"direction"`
	Method     string `json:"method,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	CourseID   int64  `json:"course_id,omitempty"`
	Outcome    string `json:"outcome"`
	Tokens     int    `json:"tokens,omitempty"`
	OneWay     int    `json:"one_way,omitempty"`
	Unresolved int    `json:"unresolved,omitempty"`
	Error      string `json:"error,omitempty"`
	Source     string `json:"source"`
}

// AuditFunc is a callback for logging audit entries.
type AuditFunc func(entry AuditEntry)

// maxMessageBytes bounds a single newline-delimited JSON-RPC message. Tool
// results can carry whole Office files as base64.
const maxMessageBytes = 64 * 1024 * 1024

// ProxyConfig holds configuration for the MCP stdio proxy.
type ProxyConfig struct {
	// ServerCmd launches the browser-command executor's MCP server.
	ServerCmd []string

	// Rosters resolves course rosters for masking and unmasking.
	Rosters RosterSource

	// OwnerID identifies the teacher whose rosters apply.
	OwnerID string

	// OnAudit is called for every brokered tool call and result.
	OnAudit AuditFunc

	// Stderr is where proxy diagnostic messages go. Defaults to os.Stderr.
	Stderr io.Writer
}

// Proxy is an MCP stdio proxy that unmasks tool arguments on the way to the
// executor and masks everything it returns.
type Proxy struct {
	cfg       ProxyConfig
	handler   *MessageHandler
	serverCmd *exec.Cmd
	stderr    io.Writer
}

// NewProxy creates a new MCP stdio proxy with the given configuration.
func NewProxy(cfg ProxyConfig) *Proxy {
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Proxy{
		cfg:    cfg,
		stderr: stderr,
		handler: &MessageHandler{
			Rosters: cfg.Rosters,
			OwnerID: cfg.OwnerID,
			OnAudit: cfg.OnAudit,
			Stderr:  stderr,
			Source:  "mcp-proxy",
		},
	}
}

// Run spawns the child MCP server and bridges it to this process's stdin and
// stdout. It blocks until the client closes stdin and the server exits.
func (p *Proxy) Run(ctx context.Context) error {
	if len(p.cfg.ServerCmd) == 0 {
		return fmt.Errorf("no server command specified")
	}

	p.serverCmd = exec.CommandContext(ctx, p.cfg.ServerCmd[0], p.cfg.ServerCmd[1:]...)
	p.serverCmd.Stderr = p.stderr

	serverStdin, err := p.serverCmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create server stdin pipe: %w", err)
	}
	serverStdout, err := p.serverCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create server stdout pipe: %w", err)
	}

	if err := p.serverCmd.Start(); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}

	p.RunWithIO(ctx, os.Stdin, os.Stdout, serverStdout, serverStdin)

	if err := p.serverCmd.Wait(); err != nil {
		return fmt.Errorf("MCP server exited with error: %w", err)
	}
	return nil
}

// proxyClientToServer reads JSON-RPC messages from the client and forwards
// them with roster tokens restored.
func (p *Proxy) proxyClientToServer(ctx context.Context, clientReader io.Reader, serverWriter io.Writer) {
	scanner := bufio.NewScanner(clientReader)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxMessageBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		writeLineToWriter(serverWriter, p.handler.HandleClientMessage(ctx, line))
	}
	if err := scanner.Err(); err != nil {
		_, _ = fmt.Fprintf(p.stderr, "[RosterShield MCP] client stream error: %v\n", err)
	}
}

// proxyServerToClient reads messages from the MCP server and forwards them
// masked. Messages the handler withholds entirely are not forwarded.
func (p *Proxy) proxyServerToClient(ctx context.Context, serverReader io.Reader, clientWriter io.Writer) {
	scanner := bufio.NewScanner(serverReader)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxMessageBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if out := p.handler.HandleServerMessage(ctx, line); out != nil {
			writeLineToWriter(clientWriter, out)
		}
	}
	if err := scanner.Err(); err != nil {
		_, _ = fmt.Fprintf(p.stderr, "[RosterShield MCP] server stream error: %v\n", err)
	}
}

// writeLineToWriter writes a line followed by a newline to the writer.
func writeLineToWriter(w io.Writer, data []byte) {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, data...)
	buf = append(buf, '\n')
	_, _ = w.Write(buf)
}

// RunWithIO is like Run but accepts explicit reader/writer for testability.
// It does not spawn a child process; the caller provides the server I/O.
// serverWriter is closed once the client is done, which signals the server.
func (p *Proxy) RunWithIO(ctx context.Context, clientReader io.Reader, clientWriter io.Writer, serverReader io.Reader, serverWriter io.WriteCloser) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() { _ = serverWriter.Close() }()
		p.proxyClientToServer(ctx, clientReader, serverWriter)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.proxyServerToClient(ctx, serverReader, clientWriter)
	}()

	wg.Wait()
}
