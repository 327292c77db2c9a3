package kernel

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the only messaging protocol version spoken by this
// package.
const ProtocolVersion = "5.0"

// Message types used on the shell and iopub channels.
const (
	MsgExecuteRequest  = "execute_request"
	MsgExecuteReply    = "execute_reply"
	MsgExecuteResult   = "execute_result"
	MsgExecuteInput    = "execute_input"
	MsgCompleteRequest = "complete_request"
	MsgCompleteReply   = "complete_reply"
	MsgDisplayData     = "display_data"
	MsgStream          = "stream"
	MsgStatus          = "status"
	MsgError           = "error"
)

// replySuffix marks the terminal frame of a reply stream.
const replySuffix = "_reply"

// timestampLayout is a fixed-width ISO-8601 layout so that timestamps sort
// lexically.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Header is the envelope header.
type Header struct {
	Version  string `json:"version"`
	KernelID string `json:"kernel_id,omitempty"`
	MsgID    string `json:"msg_id"`
	Datetime string `json:"datetime,omitempty"`
	MsgType  string `json:"msg_type"`

	// Date, Session and Username are the field names used by stock Jupyter
	// servers. Date carries the same value as Datetime.
	Date     string `json:"date,omitempty"`
	Session  string `json:"session,omitempty"`
	Username string `json:"username,omitempty"`
}

// Envelope is one protocol message.
type Envelope struct {
	Header       Header          `json:"header"`
	ParentHeader map[string]any  `json:"parent_header"`
	Channel      string          `json:"channel,omitempty"`
	Content      map[string]any  `json:"content"`
	Metadata     map[string]any  `json:"metadata"`
	Buffers      json.RawMessage `json:"buffers,omitempty"`

	// Jupyter servers copy msg_id and msg_type onto the top level of the
	// frames they forward.
	MsgID   string `json:"msg_id,omitempty"`
	MsgType string `json:"msg_type,omitempty"`
}

// Stream is the ordered list of envelopes received for one request. A
// complete stream ends with exactly one terminal reply.
type Stream []*Envelope

// NewEnvelope builds a shell request envelope with a fresh message ID.
// A nil content is replaced by an empty map.
func NewEnvelope(kernelID, session, msgType string, content map[string]any) *Envelope {
	if content == nil {
		content = map[string]any{}
	}
	ts := time.Now().UTC().Format(timestampLayout)
	return &Envelope{
		Header: Header{
			Version:  ProtocolVersion,
			KernelID: kernelID,
			MsgID:    newID(),
			Datetime: ts,
			MsgType:  msgType,
			Date:     ts,
			Session:  session,
		},
		ParentHeader: map[string]any{},
		Channel:      "shell",
		Content:      content,
		Metadata:     map[string]any{},
		Buffers:      json.RawMessage("[]"),
	}
}

// newID returns a random UUID in its 32 character hex form.
func newID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Type returns the message type of e.
func (e *Envelope) Type() string {
	if e.Header.MsgType != "" {
		return e.Header.MsgType
	}
	return e.MsgType
}

// ID returns the message ID of e.
func (e *Envelope) ID() string {
	if e.Header.MsgID != "" {
		return e.Header.MsgID
	}
	return e.MsgID
}

// ParentID returns the msg_id of the request e replies to, or "".
func (e *Envelope) ParentID() string {
	id, _ := e.ParentHeader["msg_id"].(string)
	return id
}

// IsReply reports whether e terminates a reply stream.
func (e *Envelope) IsReply() bool {
	return strings.HasSuffix(e.Type(), replySuffix)
}

// Encode serializes e to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses and validates one wire frame.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	if err := validateFrame(data); err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, violation(MalformedEnvelope, "decode: %v", err)
	}
	if env.ParentHeader == nil {
		env.ParentHeader = map[string]any{}
	}
	if env.Metadata == nil {
		env.Metadata = map[string]any{}
	}
	if env.Content == nil {
		env.Content = map[string]any{}
	}
	return &env, nil
}
