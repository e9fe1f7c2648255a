// Package mcp brokers Model Context Protocol (MCP) JSON-RPC traffic between an
// AI client and the LMS browser-command executor. Tool arguments travelling to
// the executor are unmasked; results travelling back to the model are masked.
package mcp

import "encoding/json"

// --- JSON-RPC base types (MCP uses JSON-RPC 2.0) ---

// Message is the top-level envelope for any JSON-RPC 2.0 message.
// We parse into this first, then dispatch based on the Method field.
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`     // present for requests & responses
	Method  string           `json:"method,omitempty"` // present for requests & notifications
	Params  json.RawMessage  `json:"params,omitempty"` // present for requests & notifications
	Result  json.RawMessage  `json:"result,omitempty"` // present for success responses
	Error   *RPCError        `json:"error,omitempty"`  // present for error responses
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// --- MCP tool call types ---

// CallToolParams represents the params of a tools/call request. Meta is kept
// so a rewritten request loses nothing the client sent.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Meta      json.RawMessage        `json:"_meta,omitempty"`
}

// CallToolResult represents the result of a tools/call response.
type CallToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentItem is one piece of content in a tool result.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// --- Message type classification ---

// MessageKind classifies a parsed JSON-RPC message.
type MessageKind int

const (
	KindUnknown      MessageKind = iota
	KindToolCall                 // tools/call request
	KindNotification             // any notification (no id)
	KindResponse                 // any response (has id, has result or error)
	KindOtherRequest             // any other request (has id + method)
)

// String returns a human-readable label for the message kind.
func (k MessageKind) String() string {
	switch k {
	case KindToolCall:
		return "tools/call"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	case KindOtherRequest:
		return "other-request"
	default:
		return "unknown"
	}
}

// --- Well-known MCP methods ---

const (
	MethodInitialize = "initialize"
	MethodPing       = "ping"
	MethodToolsCall  = "tools/call"
	MethodToolsList  = "tools/list"
)

// protocolMethods carry protocol metadata rather than LMS content; their
// responses are relayed without masking. Resource and prompt listings can
// name student files, so they are masked like tool results.
var protocolMethods = map[string]bool{
	MethodInitialize: true,
	MethodPing:       true,
	MethodToolsList:  true,
}

// --- JSON-RPC error codes ---

const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603

	// RPCRedactionFailed is returned in place of a result that could not be
	// masked.
	RPCRedactionFailed = -32001
)
