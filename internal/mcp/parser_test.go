package mcp

import (
	"encoding/json"
	"testing"
)

func TestParseMessage_ToolCall(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_gradebook","arguments":{"course_id":42}}}`

	msg, kind, err := ParseMessage([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != KindToolCall {
		t.Errorf("expected KindToolCall, got %v", kind)
	}
	if msg.Method != MethodToolsCall {
		t.Errorf("expected method %q, got %q", MethodToolsCall, msg.Method)
	}
}

func TestParseMessage_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  MessageKind
	}{
		{"tools/list is an ordinary request", `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}`, KindOtherRequest},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"hello"}]}}`, KindResponse},
		{"error response", `{"jsonrpc":"2.0","id":"a","error":{"code":-32601,"message":"nope"}}`, KindResponse},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}`, KindNotification},
		{"other request", `{"jsonrpc":"2.0","id":6,"method":"prompts/get","params":{"name":"test"}}`, KindOtherRequest},
		{"empty object", `{}`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, kind, err := ParseMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != tt.want {
				t.Errorf("kind = %v, want %v", kind, tt.want)
			}
		})
	}
}

func TestParseMessage_InvalidJSON(t *testing.T) {
	_, _, err := ParseMessage([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestExtractToolCall_Valid(t *testing.T) {
	input := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"post_feedback","arguments":{"course_id":42,"text":"M12345_name did well"},"_meta":{"progressToken":7}}}`

	msg, _, err := ParseMessage([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params, err := ExtractToolCall(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Name != "post_feedback" {
		t.Errorf("expected name post_feedback, got %q", params.Name)
	}
	if params.Arguments["text"] != "M12345_name did well" {
		t.Errorf("unexpected text argument: %v", params.Arguments["text"])
	}
	if _, ok := params.Arguments["course_id"].(json.Number); !ok {
		t.Errorf("expected course_id decoded as json.Number, got %T", params.Arguments["course_id"])
	}
	if string(params.Meta) != `{"progressToken":7}` {
		t.Errorf("expected _meta preserved, got %s", params.Meta)
	}
}

func TestExtractToolCall_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"wrong method", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`},
		{"no params", `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`},
		{"missing name", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`},
		{"malformed params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, _, err := ParseMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected parse error: %v", err)
			}
			if _, err := ExtractToolCall(msg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCourseFromArguments(t *testing.T) {
	tests := []struct {
		name   string
		args   map[string]interface{}
		want   int64
		wantOK bool
	}{
		{"json number", map[string]interface{}{"course_id": json.Number("42")}, 42, true},
		{"float", map[string]interface{}{"courseId": float64(7)}, 7, true},
		{"numeric string", map[string]interface{}{"course": " 99 "}, 99, true},
		{"course_id preferred", map[string]interface{}{"course_id": json.Number("1"), "course": "2"}, 1, true},
		{"non numeric string", map[string]interface{}{"course": "algebra"}, 0, false},
		{"zero", map[string]interface{}{"course_id": json.Number("0")}, 0, false},
		{"negative", map[string]interface{}{"course_id": json.Number("-3")}, 0, false},
		{"bool ignored", map[string]interface{}{"course_id": true}, 0, false},
		{"absent", map[string]interface{}{"text": "hi"}, 0, false},
		{"nil", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CourseFromArguments(tt.args)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CourseFromArguments() = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIDKey_NumbersAndStringsDistinct(t *testing.T) {
	num := json.RawMessage(`1`)
	str := json.RawMessage(`"1"`)
	if idKey(&num) == idKey(&str) {
		t.Error("expected numeric and string ids to produce different keys")
	}
	if idKey(nil) != "" {
		t.Error("expected empty key for nil id")
	}
}

func TestNewErrorResponse_PreservesStringID(t *testing.T) {
	id := json.RawMessage(`"req-7"`)
	resp, err := NewErrorResponse(&id, RPCRedactionFailed, "withheld")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(resp, &msg); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if string(*msg.ID) != `"req-7"` {
		t.Errorf("expected id \"req-7\", got %s", *msg.ID)
	}
	if msg.Error == nil || msg.Error.Code != RPCRedactionFailed {
		t.Fatalf("expected error code %d, got %+v", RPCRedactionFailed, msg.Error)
	}
	if msg.JSONRPC != "2.0" {
		t.Errorf("expected jsonrpc 2.0, got %q", msg.JSONRPC)
	}
}

func TestMessageKind_String(t *testing.T) {
	tests := []struct {
		kind MessageKind
		want string
	}{
		{KindToolCall, "tools/call"},
		{KindNotification, "notification"},
		{KindResponse, "response"},
		{KindOtherRequest, "other-request"},
		{KindUnknown, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
