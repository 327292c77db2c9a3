package kernel

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNewEnvelope(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	env := NewEnvelope("kernel-1", "session-1", MsgExecuteRequest, map[string]any{"code": "1+1"})

	if env.Header.Version != ProtocolVersion {
		t.Errorf("Version = %q, want %q", env.Header.Version, ProtocolVersion)
	}
	if env.Header.KernelID != "kernel-1" {
		t.Errorf("KernelID = %q, want %q", env.Header.KernelID, "kernel-1")
	}
	if env.Header.Session != "session-1" {
		t.Errorf("Session = %q, want %q", env.Header.Session, "session-1")
	}
	if env.Type() != MsgExecuteRequest {
		t.Errorf("Type() = %q, want %q", env.Type(), MsgExecuteRequest)
	}
	if len(env.ID()) != 32 {
		t.Errorf("ID() = %q, want 32 hex characters", env.ID())
	}
	if env.Channel != "shell" {
		t.Errorf("Channel = %q, want shell", env.Channel)
	}
	if env.ParentHeader == nil || len(env.ParentHeader) != 0 {
		t.Errorf("ParentHeader = %v, want empty map", env.ParentHeader)
	}
	if env.Metadata == nil || len(env.Metadata) != 0 {
		t.Errorf("Metadata = %v, want empty map", env.Metadata)
	}
	if string(env.Buffers) != "[]" {
		t.Errorf("Buffers = %s, want []", env.Buffers)
	}

	ts, err := time.Parse(timestampLayout, env.Header.Datetime)
	if err != nil {
		t.Fatalf("Datetime %q does not parse: %v", env.Header.Datetime, err)
	}
	if ts.Before(before) {
		t.Errorf("Datetime %v is before %v", ts, before)
	}
	if env.Header.Date != env.Header.Datetime {
		t.Errorf("Date = %q, want %q", env.Header.Date, env.Header.Datetime)
	}
}

func TestNewEnvelope_NilContent(t *testing.T) {
	env := NewEnvelope("k", "", MsgCompleteRequest, nil)
	if env.Content == nil {
		t.Error("Content should default to an empty map")
	}
}

func TestNewEnvelope_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		id := NewEnvelope("k", "s", MsgExecuteRequest, nil).ID()
		if seen[id] {
			t.Fatalf("Duplicate msg_id %q", id)
		}
		seen[id] = true
	}
}

func TestNewEnvelope_SortableTimestamps(t *testing.T) {
	a := NewEnvelope("k", "s", MsgExecuteRequest, nil)
	time.Sleep(2 * time.Millisecond)
	b := NewEnvelope("k", "s", MsgExecuteRequest, nil)
	if len(a.Header.Datetime) != len(b.Header.Datetime) {
		t.Errorf("Timestamps differ in width: %q vs %q", a.Header.Datetime, b.Header.Datetime)
	}
	if a.Header.Datetime >= b.Header.Datetime {
		t.Errorf("Timestamps do not sort: %q >= %q", a.Header.Datetime, b.Header.Datetime)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	content := map[string]any{
		"code":          "print('hi')",
		"silent":        false,
		"store_history": true,
		"user_expressions": map[string]any{
			"x": "1",
		},
	}
	env := NewEnvelope("kernel-1", "session-1", MsgExecuteRequest, content)

	data, err := env.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}

	if got.ID() != env.ID() {
		t.Errorf("msg_id = %q, want %q", got.ID(), env.ID())
	}
	if got.Type() != env.Type() {
		t.Errorf("msg_type = %q, want %q", got.Type(), env.Type())
	}
	if diff := cmp.Diff(content, got.Content); diff != "" {
		t.Errorf("Content mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(env.Header, got.Header); diff != "" {
		t.Errorf("Header mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `not json`},
		{"array", `[1, 2]`},
		{"missing header", `{"content": {}}`},
		{"header not object", `{"header": "x"}`},
		{"missing msg_type", `{"header": {"msg_id": "a"}}`},
		{"numeric msg_type", `{"header": {"msg_type": 7}}`},
		{"content not object", `{"header": {"msg_type": "execute_reply"}, "content": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope([]byte(tt.input))
			if !errors.Is(err, &ProtocolViolation{Reason: MalformedEnvelope}) {
				t.Errorf("DecodeEnvelope(%q) error = %v, want malformed envelope", tt.input, err)
			}
		})
	}
}

func TestDecodeEnvelope_Defaults(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"header": {"msg_type": "status", "msg_id": "x"}}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.Content == nil || env.Metadata == nil || env.ParentHeader == nil {
		t.Errorf("Decoded envelope has nil maps: %+v", env)
	}
	if env.ParentID() != "" {
		t.Errorf("ParentID() = %q, want empty", env.ParentID())
	}
}

func TestEnvelope_TopLevelFallback(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{
		"header": {"msg_type": ""},
		"parent_header": {"msg_id": "req-1"},
		"msg_id": "top-id",
		"msg_type": "execute_reply"
	}`))
	if err != nil {
		t.Fatalf("DecodeEnvelope failed: %v", err)
	}
	if env.Type() != MsgExecuteReply {
		t.Errorf("Type() = %q, want %q", env.Type(), MsgExecuteReply)
	}
	if env.ID() != "top-id" {
		t.Errorf("ID() = %q, want top-id", env.ID())
	}
	if !env.IsReply() {
		t.Error("IsReply() = false, want true")
	}
	if env.ParentID() != "req-1" {
		t.Errorf("ParentID() = %q, want req-1", env.ParentID())
	}
}

func TestIsReply(t *testing.T) {
	tests := []struct {
		msgType string
		want    bool
	}{
		{MsgExecuteReply, true},
		{MsgCompleteReply, true},
		{"kernel_info_reply", true},
		{MsgExecuteResult, false},
		{MsgDisplayData, false},
		{"reply_to_me", false},
	}
	for _, tt := range tests {
		env := &Envelope{Header: Header{MsgType: tt.msgType}}
		if got := env.IsReply(); got != tt.want {
			t.Errorf("IsReply(%q) = %v, want %v", tt.msgType, got, tt.want)
		}
	}
}

func TestChannelsURL(t *testing.T) {
	tests := []struct {
		base, id, want string
	}{
		{"ws://localhost:8888", "abc", "ws://localhost:8888/api/kernels/abc/channels"},
		{"ws://localhost:8888/", "abc", "ws://localhost:8888/api/kernels/abc/channels"},
		{"wss://host/prefix", "a b/c", "wss://host/prefix/api/kernels/a%20b%2Fc/channels"},
	}
	for _, tt := range tests {
		if got := ChannelsURL(tt.base, tt.id); got != tt.want {
			t.Errorf("ChannelsURL(%q, %q) = %q, want %q", tt.base, tt.id, got, tt.want)
		}
	}
}

func TestProtocolViolation_Is(t *testing.T) {
	err := violation(IncompleteReply, "closed after %d frames", 2)
	if !errors.Is(err, &ProtocolViolation{Reason: IncompleteReply}) {
		t.Errorf("errors.Is(%v, IncompleteReply) = false", err)
	}
	if errors.Is(err, &ProtocolViolation{Reason: MalformedEnvelope}) {
		t.Errorf("errors.Is(%v, MalformedEnvelope) = true", err)
	}
	if got, want := err.Error(), "kernel: protocol violation: incomplete reply: closed after 2 frames"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
