package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gzhole/rostershield/internal/document"
	"github.com/gzhole/rostershield/internal/metrics"
	"github.com/gzhole/rostershield/internal/redact"
	"github.com/gzhole/rostershield/internal/roster"
	"github.com/gzhole/rostershield/internal/rostercache"
)

// RosterSource resolves course rosters for the broker.
type RosterSource interface {
	// Roster resolves an explicit course (recording it as the owner's
	// context) or falls back to the current context.
	Roster(ctx context.Context, ownerID string, course *int64) (int64, *roster.Index, error)
	// CourseRoster loads one course without touching the context.
	CourseRoster(ctx context.Context, ownerID string, courseID int64) (*roster.Index, error)
}

// Outcomes reported in audit entries and metrics.
const (
	OutcomeUnmasked    = "unmasked"
	OutcomeMasked      = "masked"
	OutcomePassthrough = "passthrough"
	OutcomeWithheld    = "withheld"
	OutcomeDropped     = "dropped"
)

type pendingCall struct {
	method   string
	tool     string
	courseID int64
}

// MessageHandler holds the redaction logic shared by the stdio and HTTP
// transports. Client-to-server traffic fails open: tokens that cannot be
// restored are inert. Server-to-client traffic fails closed: content that
// cannot be masked is withheld.
type MessageHandler struct {
	Rosters RosterSource
	OwnerID string
	OnAudit AuditFunc
	Stderr  io.Writer
	Source  string

	mu      sync.Mutex
	pending map[string]pendingCall
}

func (h *MessageHandler) track(id *json.RawMessage, call pendingCall) {
	key := idKey(id)
	if key == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		h.pending = make(map[string]pendingCall)
	}
	h.pending[key] = call
}

func (h *MessageHandler) take(id *json.RawMessage) (pendingCall, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	call, ok := h.pending[idKey(id)]
	if ok {
		delete(h.pending, idKey(id))
	}
	return call, ok
}

// Pending returns the number of requests awaiting a response.
func (h *MessageHandler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

func (h *MessageHandler) warnf(format string, args ...interface{}) {
	if h.Stderr == nil {
		return
	}
	_, _ = fmt.Fprintf(h.Stderr, "[RosterShield MCP] %s\n", redact.ForLog(fmt.Sprintf(format, args...)))
}

// scrubError masks roster PII in error text before it reaches a warning or
// the audit log; decode and file errors quote the offending input.
func scrubError(err error, idx *roster.Index) error {
	if err == nil {
		return nil
	}
	return errors.New(redact.Mask(err.Error(), idx))
}

func (h *MessageHandler) audit(direction, outcome string, call pendingCall, st redact.Stats, err error) {
	metrics.ToolCalls.WithLabelValues(direction, outcome).Inc()
	metrics.ObserveStats(direction, st)
	if h.OnAudit == nil {
		return
	}
	entry := AuditEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Direction:  direction,
		Method:     call.method,
		ToolName:   call.tool,
		CourseID:   call.courseID,
		Outcome:    outcome,
		Tokens:     st.Tokens(),
		OneWay:     st.OneWay,
		Unresolved: st.Unresolved,
		Source:     h.Source,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.OnAudit(entry)
}

// HandleClientMessage processes one client-to-server message and returns the
// bytes to forward to the server.
func (h *MessageHandler) HandleClientMessage(ctx context.Context, line []byte) []byte {
	msg, kind, err := ParseMessage(line)
	if err != nil {
		// Can't parse: forward as-is, tokens stay inert.
		h.warnf("warning: failed to parse message, forwarding: %v", err)
		return line
	}

	switch kind {
	case KindToolCall:
		return h.HandleToolCall(ctx, msg, line)
	case KindOtherRequest:
		h.track(msg.ID, pendingCall{method: msg.Method})
	}
	return line
}

// HandleToolCall restores roster tokens in a tools/call request's arguments,
// including embedded files, and remembers the call's course so the response
// is masked against the same roster.
func (h *MessageHandler) HandleToolCall(ctx context.Context, msg *Message, raw []byte) []byte {
	const direction = "ingress"

	params, err := ExtractToolCall(msg)
	if err != nil {
		h.warnf("warning: failed to extract tool call: %v", err)
		h.track(msg.ID, pendingCall{method: MethodToolsCall})
		return raw
	}

	var explicit *int64
	if id, ok := CourseFromArguments(params.Arguments); ok {
		explicit = &id
	}

	courseID, idx, err := h.Rosters.Roster(ctx, h.OwnerID, explicit)
	call := pendingCall{method: MethodToolsCall, tool: params.Name, courseID: courseID}
	h.track(msg.ID, call)
	if err != nil {
		if !errors.Is(err, rostercache.ErrNoCourse) {
			h.warnf("warning: roster unavailable for %s, forwarding unchanged: %v", params.Name, err)
		}
		h.audit(direction, OutcomePassthrough, call, redact.Stats{}, err)
		return raw
	}
	if params.Arguments == nil {
		h.audit(direction, OutcomePassthrough, call, redact.Stats{}, nil)
		return raw
	}

	args, st, err := document.RedactTree(params.Arguments, idx, document.Ingress)
	if err != nil {
		err = scrubError(err, idx)
		h.warnf("warning: failed to unmask arguments of %s, forwarding unchanged: %v", params.Name, err)
		h.audit(direction, OutcomePassthrough, call, st, err)
		return raw
	}
	if st.Tokens() == 0 {
		h.audit(direction, OutcomePassthrough, call, st, nil)
		return raw
	}

	params.Arguments = args.(map[string]interface{})
	newParams, err := marshalJSON(params)
	if err != nil {
		h.warnf("warning: failed to encode arguments of %s: %v", params.Name, err)
		return raw
	}
	msg.Params = newParams
	out, err := marshalJSON(msg)
	if err != nil {
		h.warnf("warning: failed to encode tool call %s: %v", params.Name, err)
		return raw
	}

	h.audit(direction, OutcomeUnmasked, call, st, nil)
	return out
}

// HandleServerMessage masks one server-to-client message. It returns nil when
// the message must not be delivered at all.
func (h *MessageHandler) HandleServerMessage(ctx context.Context, line []byte) []byte {
	msg, kind, err := ParseMessage(line)
	if err != nil || kind == KindUnknown {
		return h.maskRaw(ctx, line)
	}

	switch kind {
	case KindResponse:
		call, tracked := h.take(msg.ID)
		if tracked && protocolMethods[call.method] {
			return line
		}
		return h.maskResponse(ctx, msg, line, call)
	case KindNotification, KindOtherRequest, KindToolCall:
		return h.maskServerRequest(ctx, msg, line)
	}
	return h.maskRaw(ctx, line)
}

// egressRoster loads the roster a result is masked against. With no course
// known at all, only the unknown-PII heuristics apply.
func (h *MessageHandler) egressRoster(ctx context.Context, call pendingCall) (*roster.Index, error) {
	if call.courseID > 0 {
		return h.Rosters.CourseRoster(ctx, h.OwnerID, call.courseID)
	}
	_, idx, err := h.Rosters.Roster(ctx, h.OwnerID, nil)
	if errors.Is(err, rostercache.ErrNoCourse) {
		return nil, nil
	}
	return idx, err
}

func (h *MessageHandler) maskResponse(ctx context.Context, msg *Message, raw []byte, call pendingCall) []byte {
	const direction = "egress"

	var idx *roster.Index
	withhold := func(err error) []byte {
		err = scrubError(err, idx)
		h.warnf("WITHHELD result of %s: %v", describe(call), err)
		h.audit(direction, OutcomeWithheld, call, redact.Stats{}, err)
		resp, _ := NewErrorResponse(msg.ID, RPCRedactionFailed,
			"RosterShield could not redact this result; it was withheld")
		return resp
	}

	idx, err := h.egressRoster(ctx, call)
	if err != nil {
		return withhold(err)
	}

	var st redact.Stats
	if len(msg.Result) > 0 {
		masked, rs, err := maskRawJSON(msg.Result, idx)
		if err != nil {
			return withhold(err)
		}
		msg.Result = masked
		st.Add(rs)
	}
	if msg.Error != nil {
		text, es := redact.MaskWithStats(msg.Error.Message, idx)
		msg.Error.Message = text
		st.Add(es)
		if len(msg.Error.Data) > 0 {
			masked, ds, err := maskRawJSON(msg.Error.Data, idx)
			if err != nil {
				return withhold(err)
			}
			msg.Error.Data = masked
			st.Add(ds)
		}
	}

	if st.Total() == 0 {
		h.audit(direction, OutcomePassthrough, call, st, nil)
		return raw
	}
	out, err := marshalJSON(msg)
	if err != nil {
		return withhold(err)
	}
	h.audit(direction, OutcomeMasked, call, st, nil)
	return out
}

func (h *MessageHandler) maskServerRequest(ctx context.Context, msg *Message, raw []byte) []byte {
	const direction = "egress"
	call := pendingCall{method: msg.Method}

	if len(msg.Params) == 0 {
		return raw
	}
	idx, err := h.egressRoster(ctx, call)
	if err != nil {
		h.warnf("DROPPED %s: %v", msg.Method, err)
		h.audit(direction, OutcomeDropped, call, redact.Stats{}, err)
		return nil
	}
	masked, st, err := maskRawJSON(msg.Params, idx)
	if err != nil {
		err = scrubError(err, idx)
		h.warnf("DROPPED %s: %v", msg.Method, err)
		h.audit(direction, OutcomeDropped, call, st, err)
		return nil
	}
	if st.Total() == 0 {
		return raw
	}
	msg.Params = masked
	out, err := marshalJSON(msg)
	if err != nil {
		h.audit(direction, OutcomeDropped, call, st, err)
		return nil
	}
	h.audit(direction, OutcomeMasked, call, st, nil)
	return out
}

// errNotJSON marks server output withheld because it could not be decoded.
var errNotJSON = errors.New("server output is not JSON")

// maskRaw handles server output that is not a single JSON-RPC message. A
// batch is masked element by element; any other JSON value goes through the
// document walker so embedded files are covered. Output that is not JSON at
// all is withheld.
func (h *MessageHandler) maskRaw(ctx context.Context, line []byte) []byte {
	const direction = "egress"

	trimmed := bytes.TrimSpace(line)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err == nil {
			return h.maskBatch(ctx, line, batch)
		}
	}
	if !json.Valid(trimmed) {
		h.warnf("WITHHELD server output that is not JSON (%d bytes)", len(line))
		h.audit(direction, OutcomeDropped, pendingCall{}, redact.Stats{}, errNotJSON)
		return nil
	}

	idx, err := h.egressRoster(ctx, pendingCall{})
	if err != nil {
		h.warnf("DROPPED unrecognised server message: %v", err)
		h.audit(direction, OutcomeDropped, pendingCall{}, redact.Stats{}, err)
		return nil
	}
	masked, st, err := maskRawJSON(trimmed, idx)
	if err != nil {
		err = scrubError(err, idx)
		h.warnf("DROPPED unrecognised server message: %v", err)
		h.audit(direction, OutcomeDropped, pendingCall{}, st, err)
		return nil
	}
	if st.Total() == 0 {
		return line
	}
	h.audit(direction, OutcomeMasked, pendingCall{}, st, nil)
	return masked
}

// maskBatch masks each message of a JSON-RPC batch. Elements that must not
// be delivered are left out; a batch with nothing left is dropped.
func (h *MessageHandler) maskBatch(ctx context.Context, line []byte, batch []json.RawMessage) []byte {
	if len(batch) == 0 {
		return line
	}
	out := make([]json.RawMessage, 0, len(batch))
	changed := false
	for _, elem := range batch {
		masked := h.HandleServerMessage(ctx, elem)
		if masked == nil {
			changed = true
			continue
		}
		if !bytes.Equal(masked, elem) {
			changed = true
		}
		out = append(out, masked)
	}
	if len(out) == 0 {
		return nil
	}
	if !changed {
		return line
	}
	enc, err := marshalJSON(out)
	if err != nil {
		h.audit("egress", OutcomeDropped, pendingCall{}, redact.Stats{}, err)
		return nil
	}
	return enc
}

func describe(call pendingCall) string {
	if call.tool != "" {
		return call.tool
	}
	if call.method != "" {
		return call.method
	}
	return "untracked response"
}

func maskRawJSON(raw json.RawMessage, idx *roster.Index) (json.RawMessage, redact.Stats, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, redact.Stats{}, fmt.Errorf("decode payload: %w", err)
	}
	masked, st, err := document.RedactTree(v, idx, document.Egress)
	if err != nil {
		return nil, st, err
	}
	out, err := marshalJSON(masked)
	return out, st, err
}

// marshalJSON encodes v without HTML escaping and without a trailing newline.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
