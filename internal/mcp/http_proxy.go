package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// HTTPProxyConfig holds configuration for the MCP Streamable HTTP proxy.
type HTTPProxyConfig struct {
	// UpstreamURL is the executor's MCP endpoint (e.g., "http://localhost:8080/mcp").
	UpstreamURL string

	// ListenAddr is the local address to listen on (e.g., ":9100" or "127.0.0.1:9100").
	// Defaults to "127.0.0.1:0" (random port on loopback).
	ListenAddr string

	// Rosters resolves course rosters for masking and unmasking.
	Rosters RosterSource

	// OwnerID identifies the teacher whose rosters apply.
	OwnerID string

	// OnAudit is called for every brokered tool call and result.
	OnAudit AuditFunc

	// Stderr is where proxy diagnostic messages go. Defaults to os.Stderr.
	Stderr io.Writer
}

// HTTPProxy is an MCP Streamable HTTP reverse proxy. Client POSTs are unmasked
// before they reach the upstream server; JSON and SSE responses are masked
// before they reach the client.
type HTTPProxy struct {
	cfg      HTTPProxyConfig
	handler  *MessageHandler
	client   *http.Client
	server   *http.Server
	stderr   io.Writer
	listener net.Listener
	mu       sync.Mutex
}

// NewHTTPProxy creates a new MCP Streamable HTTP proxy.
func NewHTTPProxy(cfg HTTPProxyConfig) *HTTPProxy {
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	return &HTTPProxy{
		cfg:    cfg,
		stderr: stderr,
		handler: &MessageHandler{
			Rosters: cfg.Rosters,
			OwnerID: cfg.OwnerID,
			OnAudit: cfg.OnAudit,
			Stderr:  stderr,
			Source:  "mcp-http-proxy",
		},
		client: &http.Client{
			Timeout: 5 * time.Minute, // browser-driven tool calls can be slow
		},
	}
}

// ListenAddr returns the actual address the proxy is listening on.
// Only valid after ListenAndServe has been called.
func (hp *HTTPProxy) ListenAddr() string {
	hp.mu.Lock()
	defer hp.mu.Unlock()
	if hp.listener != nil {
		return hp.listener.Addr().String()
	}
	return ""
}

// Handler returns the proxy's HTTP handler.
func (hp *HTTPProxy) Handler() http.Handler {
	return http.HandlerFunc(hp.handleMCP)
}

// ListenAndServe starts the HTTP proxy and blocks until the server is shut down.
func (hp *HTTPProxy) ListenAndServe() error {
	hp.server = &http.Server{
		Handler:      hp.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long writes for SSE streaming
		IdleTimeout:  120 * time.Second,
	}

	ln, err := net.Listen("tcp", hp.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", hp.cfg.ListenAddr, err)
	}

	hp.mu.Lock()
	hp.listener = ln
	hp.mu.Unlock()

	addr := ln.Addr().String()
	_, _ = fmt.Fprintf(hp.stderr, "[RosterShield MCP-HTTP] listening on http://%s\n", addr)
	_, _ = fmt.Fprintf(hp.stderr, "[RosterShield MCP-HTTP] upstream: %s\n", hp.cfg.UpstreamURL)

	return hp.server.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP proxy.
func (hp *HTTPProxy) Shutdown(ctx context.Context) error {
	if hp.server != nil {
		return hp.server.Shutdown(ctx)
	}
	return nil
}

// handleMCP is the main HTTP handler for all MCP messages.
// Supports POST (client→server requests) and GET (SSE session init).
func (hp *HTTPProxy) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		hp.handlePost(w, r)
	case http.MethodGet:
		// Server-initiated SSE stream; masked like any other server output.
		hp.proxyPassthrough(w, r)
	case http.MethodDelete:
		// Session termination
		hp.proxyPassthrough(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost processes a POST request containing a JSON-RPC message.
func (hp *HTTPProxy) handlePost(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if len(body) == 0 {
		http.Error(w, "Empty request body", http.StatusBadRequest)
		return
	}

	hp.forwardPost(w, r, hp.handler.HandleClientMessage(r.Context(), body))
}

// forwardPost forwards a POST request to the upstream MCP server and relays
// the response back to the client. Handles both plain JSON and SSE responses.
func (hp *HTTPProxy) forwardPost(w http.ResponseWriter, origReq *http.Request, body []byte) {
	req, err := http.NewRequestWithContext(origReq.Context(), http.MethodPost, hp.cfg.UpstreamURL, bytes.NewReader(body))
	if err != nil {
		_, _ = fmt.Fprintf(hp.stderr, "[RosterShield MCP-HTTP] error creating upstream request: %v\n", err)
		http.Error(w, "Internal proxy error", http.StatusBadGateway)
		return
	}

	copyHeaders(req.Header, origReq.Header)
	req.Header.Set("Content-Type", "application/json")

	resp, err := hp.client.Do(req)
	if err != nil {
		_, _ = fmt.Fprintf(hp.stderr, "[RosterShield MCP-HTTP] upstream request failed: %v\n", err)
		http.Error(w, "Upstream server unreachable", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	hp.relay(w, origReq.Context(), resp)
}

func (hp *HTTPProxy) relay(w http.ResponseWriter, ctx context.Context, resp *http.Response) {
	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		hp.relaySSE(w, ctx, resp)
		return
	}
	hp.relayJSON(w, ctx, resp)
}

// relayJSON reads a plain JSON response from upstream, masks it and writes it
// to the client.
func (hp *HTTPProxy) relayJSON(w http.ResponseWriter, ctx context.Context, resp *http.Response) {
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxMessageBytes))
	if err != nil {
		_, _ = fmt.Fprintf(hp.stderr, "[RosterShield MCP-HTTP] error reading upstream response: %v\n", err)
		http.Error(w, "Error reading upstream response", http.StatusBadGateway)
		return
	}

	if len(bytes.TrimSpace(respBody)) > 0 {
		respBody = hp.handler.HandleServerMessage(ctx, respBody)
		if respBody == nil {
			http.Error(w, "Upstream response withheld", http.StatusBadGateway)
			return
		}
	}

	// Copy response headers (skip Content-Length, the body may have changed)
	for k, vs := range resp.Header {
		if k == "Content-Length" {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(respBody)))
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

// relaySSE streams Server-Sent Events from upstream to the client, masking
// each event's data. Events the handler withholds are dropped.
func (hp *HTTPProxy) relaySSE(w http.ResponseWriter, ctx context.Context, resp *http.Response) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		_, _ = fmt.Fprintf(hp.stderr, "[RosterShield MCP-HTTP] warning: ResponseWriter does not support flushing\n")
		hp.relayJSON(w, ctx, resp)
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	flusher.Flush()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxMessageBytes)

	var ev sseEvent
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			hp.writeEvent(w, ctx, &ev)
			flusher.Flush()
			continue
		}
		ev.add(line)
	}
	if !ev.empty() {
		hp.writeEvent(w, ctx, &ev)
		flusher.Flush()
	}
}

// sseEvent accumulates the fields of one Server-Sent Event up to the blank
// line that dispatches it.
type sseEvent struct {
	fields []string
	data   []string
}

// add parses one event-stream line. The space after the colon is optional,
// so "data:{...}" and "data: {...}" carry the same payload. Fields other
// than data are kept verbatim, comments lose their text and unknown fields
// are dropped.
func (e *sseEvent) add(line string) {
	name, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")
	switch name {
	case "data":
		e.data = append(e.data, value)
	case "event", "id", "retry":
		e.fields = append(e.fields, line)
	case "":
		e.fields = append(e.fields, ":")
	}
}

func (e *sseEvent) empty() bool {
	return len(e.fields) == 0 && len(e.data) == 0
}

// writeEvent masks the event's data as one message and writes the event
// followed by its dispatching blank line.
func (hp *HTTPProxy) writeEvent(w io.Writer, ctx context.Context, e *sseEvent) {
	defer func() { *e = sseEvent{} }()

	for _, f := range e.fields {
		_, _ = fmt.Fprintf(w, "%s\n", f)
	}
	if len(e.data) > 0 {
		out := hp.handler.HandleServerMessage(ctx, []byte(strings.Join(e.data, "\n")))
		if out != nil {
			for _, l := range strings.Split(string(out), "\n") {
				_, _ = fmt.Fprintf(w, "data: %s\n", l)
			}
		}
	}
	_, _ = fmt.Fprint(w, "\n")
}

// proxyPassthrough forwards a non-POST request to the upstream server. SSE
// streams are masked; other bodies are relayed unchanged.
func (hp *HTTPProxy) proxyPassthrough(w http.ResponseWriter, origReq *http.Request) {
	req, err := http.NewRequestWithContext(origReq.Context(), origReq.Method, hp.cfg.UpstreamURL, origReq.Body)
	if err != nil {
		http.Error(w, "Internal proxy error", http.StatusBadGateway)
		return
	}
	copyHeaders(req.Header, origReq.Header)

	resp, err := hp.client.Do(req)
	if err != nil {
		_, _ = fmt.Fprintf(hp.stderr, "[RosterShield MCP-HTTP] upstream %s failed: %v\n", origReq.Method, err)
		http.Error(w, "Upstream server unreachable", http.StatusBadGateway)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		hp.relaySSE(w, origReq.Context(), resp)
		return
	}
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// copyHeaders copies selected headers from src to dst, preserving
// MCP session headers and auth while filtering hop-by-hop headers.
func copyHeaders(dst, src http.Header) {
	passthroughPrefixes := []string{
		"Mcp-",          // MCP session headers (Mcp-Session-Id, etc.)
		"Authorization", // Auth tokens
		"Accept",
		"Content-Type",
		"X-",
	}

	for key, values := range src {
		shouldCopy := false
		for _, prefix := range passthroughPrefixes {
			if strings.HasPrefix(key, prefix) {
				shouldCopy = true
				break
			}
		}
		if shouldCopy {
			for _, v := range values {
				dst.Add(key, v)
			}
		}
	}
}
