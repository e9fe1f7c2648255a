// echo_server.go is a minimal LMS executor MCP server for testing the
// RosterShield MCP proxy. It reads JSON-RPC messages from stdin and responds to:
//   - initialize: returns server capabilities
//   - tools/list: returns a fixed set of LMS tools
//   - tools/call list_participants: returns a participants table with real PII
//   - tools/call (any other tool): echoes the "text" argument back
//
// Usage: go run ./internal/mcp/testdata/echo_server.go
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

type message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *rpcError        `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

const participantsTable = "Name | ID | Email\nJackson Smith | C00123456 | jackson.smith@example.edu\nAna Li | B87654321 | ana.li@example.edu"

func main() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			writeError(nil, -32700, fmt.Sprintf("Parse error: %v", err))
			continue
		}

		switch msg.Method {
		case "initialize":
			handleInitialize(msg.ID)
		case "tools/list":
			handleToolsList(msg.ID)
		case "tools/call":
			handleToolsCall(msg.ID, msg.Params)
		case "notifications/initialized":
			// no response
		default:
			if msg.ID != nil {
				writeError(msg.ID, -32601, fmt.Sprintf("Method not found: %s", msg.Method))
			}
		}
	}
}

func handleInitialize(id *json.RawMessage) {
	result := map[string]interface{}{
		"protocolVersion": "2025-11-25",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "lms-executor-test-server",
			"version": "0.1.0",
		},
	}
	writeResult(id, result)
}

func handleToolsList(id *json.RawMessage) {
	courseSchema := map[string]interface{}{"type": "integer"}
	tools := []map[string]interface{}{
		{
			"name":        "list_participants",
			"description": "List the participants of a course",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"course_id": courseSchema},
				"required":   []string{"course_id"},
			},
		},
		{
			"name":        "post_feedback",
			"description": "Post feedback on a student's submission",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"course_id": courseSchema,
					"text":      map[string]interface{}{"type": "string"},
				},
				"required": []string{"text"},
			},
		},
	}
	writeResult(id, map[string]interface{}{"tools": tools})
}

func handleToolsCall(id *json.RawMessage, params json.RawMessage) {
	var p callToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		writeError(id, -32602, fmt.Sprintf("Invalid params: %v", err))
		return
	}

	text := participantsTable
	if p.Name != "list_participants" {
		text = fmt.Sprintf("Posted: %v", p.Arguments["text"])
	}

	result := map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": text},
		},
		"isError": false,
	}
	writeResult(id, result)
}

func writeResult(id *json.RawMessage, result interface{}) {
	resultJSON, _ := json.Marshal(result)
	resp := message{
		JSONRPC: "2.0",
		ID:      id,
		Result:  resultJSON,
	}
	data, _ := json.Marshal(resp)
	fmt.Println(string(data))
}

func writeError(id *json.RawMessage, code int, msg string) {
	resp := message{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: msg},
	}
	data, _ := json.Marshal(resp)
	fmt.Println(string(data))
}
