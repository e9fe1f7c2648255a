package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseMessage parses a raw JSON byte slice into a Message and classifies it.
func ParseMessage(data []byte) (*Message, MessageKind, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, KindUnknown, fmt.Errorf("invalid JSON-RPC message: %w", err)
	}

	kind := ClassifyMessage(&msg)
	return &msg, kind, nil
}

// ClassifyMessage determines the MessageKind of an already-parsed Message.
func ClassifyMessage(msg *Message) MessageKind {
	// Response: has id but no method
	if msg.ID != nil && msg.Method == "" {
		return KindResponse
	}

	// Notification: has method but no id
	if msg.ID == nil && msg.Method != "" {
		return KindNotification
	}

	// Request: has both id and method
	if msg.ID != nil && msg.Method != "" {
		if msg.Method == MethodToolsCall {
			return KindToolCall
		}
		return KindOtherRequest
	}

	return KindUnknown
}

// ExtractToolCall extracts the tool name and arguments from a tools/call request.
// Returns an error if the message is not a tools/call or params are malformed.
func ExtractToolCall(msg *Message) (*CallToolParams, error) {
	if msg.Method != MethodToolsCall {
		return nil, fmt.Errorf("not a tools/call request: method=%q", msg.Method)
	}
	if msg.Params == nil {
		return nil, fmt.Errorf("tools/call request has no params")
	}

	var params CallToolParams
	dec := json.NewDecoder(bytes.NewReader(msg.Params))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil {
		return nil, fmt.Errorf("failed to parse tools/call params: %w", err)
	}
	if params.Name == "" {
		return nil, fmt.Errorf("tools/call params missing required field 'name'")
	}
	return &params, nil
}

// courseArgumentNames are the tool argument names that select a course.
var courseArgumentNames = []string{"course_id", "courseId", "course"}

// CourseFromArguments returns the course a tool call names, if any. Numbers
// and numeric strings are accepted.
func CourseFromArguments(args map[string]interface{}) (int64, bool) {
	for _, name := range courseArgumentNames {
		v, ok := args[name]
		if !ok {
			continue
		}
		var id int64
		var err error
		switch val := v.(type) {
		case json.Number:
			id, err = val.Int64()
		case float64:
			id, err = int64(val), nil
		case int64:
			id, err = val, nil
		case int:
			id, err = int64(val), nil
		case string:
			id, err = strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		default:
			continue
		}
		if err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

// idKey turns a JSON-RPC id into a map key. Numbers and strings with the same
// text stay distinct.
func idKey(id *json.RawMessage) string {
	if id == nil {
		return ""
	}
	return string(bytes.TrimSpace(*id))
}

// NewErrorResponse creates a generic JSON-RPC error response.
func NewErrorResponse(requestID *json.RawMessage, code int, message string) ([]byte, error) {
	resp := Message{
		JSONRPC: "2.0",
		ID:      requestID,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}
	return json.Marshal(resp)
}
