package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyResults is reported when a reply stream carries more than one
	// execute_result block.
	ErrTooManyResults = errors.New("kernel: more than one execute_result in reply")

	// ErrReplyTimeout is returned when no terminal reply arrived before the
	// exchange deadline.
	ErrReplyTimeout = errors.New("kernel: timed out waiting for reply")

	// ErrClosed is returned when submitting to a closed connection.
	ErrClosed = errors.New("kernel: connection closed")
)

// ViolationReason classifies a ProtocolViolation.
type ViolationReason int

const (
	// IncompleteReply means the channel closed before a terminal reply.
	IncompleteReply ViolationReason = iota + 1
	// UnexpectedReplyCount means the number of blocks of the expected type
	// was not exactly one.
	UnexpectedReplyCount
	// MalformedEnvelope means a frame could not be decoded or validated.
	MalformedEnvelope
)

func (r ViolationReason) String() string {
	switch r {
	case IncompleteReply:
		return "incomplete reply"
	case UnexpectedReplyCount:
		return "unexpected reply count"
	case MalformedEnvelope:
		return "malformed envelope"
	default:
		return fmt.Sprintf("violation(%d)", int(r))
	}
}

// ProtocolViolation reports a reply that does not follow the protocol.
type ProtocolViolation struct {
	Reason ViolationReason
	Detail string
}

func (e *ProtocolViolation) Error() string {
	if e.Detail == "" {
		return "kernel: protocol violation: " + e.Reason.String()
	}
	return fmt.Sprintf("kernel: protocol violation: %s: %s", e.Reason, e.Detail)
}

// Is reports whether target is a ProtocolViolation with the same reason.
func (e *ProtocolViolation) Is(target error) bool {
	t, ok := target.(*ProtocolViolation)
	return ok && t.Reason == e.Reason
}

func violation(reason ViolationReason, format string, args ...any) error {
	return &ProtocolViolation{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// TransportError reports a failure at the channel layer. Op is one of
// "dial", "send" or "recv", or "exchange" for a panic raised while the
// exchange ran.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("kernel: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandlerFault reports a payload handler that failed or panicked.
type HandlerFault struct {
	MIME string
	Err  error
}

func (e *HandlerFault) Error() string {
	return fmt.Sprintf("kernel: handler for %q: %v", e.MIME, e.Err)
}

func (e *HandlerFault) Unwrap() error { return e.Err }
