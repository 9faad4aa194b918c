package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Stage identifies where in the request pipeline an error originated.
type Stage string

const (
	StageUnknown        Stage = ""
	StageTranslation    Stage = "translation"
	StageTransport      Stage = "transport"
	StageReconstruction Stage = "reconstruction"
	StageAuth           Stage = "auth"
)

// TranslationErrorKind enumerates the reasons canonical content could not be translated.
type TranslationErrorKind string

const (
	UnsupportedToolChoice TranslationErrorKind = "unsupported_tool_choice"
	UnpairedToolResult    TranslationErrorKind = "unpaired_tool_result"
	DuplicateToolUseID    TranslationErrorKind = "duplicate_tool_use_id"
	UnmappableContent     TranslationErrorKind = "unmappable_content"
	InvalidWireMessage    TranslationErrorKind = "invalid_wire_message"
	InvalidThinkingBudget TranslationErrorKind = "invalid_thinking_budget"
)

// TranslationError reports a local failure converting between the canonical
// model and a backend wire format. It is never retryable.
type TranslationError struct {
	Backend string
	Kind    TranslationErrorKind
	Detail  string
	Err     error
}

func (e *TranslationError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Backend)
	sb.WriteString(": translation failed: ")
	sb.WriteString(string(e.Kind))
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *TranslationError) Unwrap() error { return e.Err }

// MalformedToolInputError reports tool call arguments that are not a JSON object
// once the block carrying them has closed.
type MalformedToolInputError struct {
	Backend   string
	Index     int
	ToolUseID string
	Name      string
	Raw       string
	Err       error
}

func (e *MalformedToolInputError) Error() string {
	return fmt.Sprintf("%s: malformed input for tool %s (%s) at block %d: %v", e.Backend, e.Name, e.ToolUseID, e.Index, e.Err)
}

func (e *MalformedToolInputError) Unwrap() error { return e.Err }

// TransportError reports a connection or HTTP level failure.
// StatusCode and Body are set when the backend answered.
type TransportError struct {
	Backend    string
	StatusCode int
	Body       []byte
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: http %d: %v: %s", e.Backend, e.StatusCode, e.Err, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d: %s", e.Backend, e.StatusCode, e.Body)
	case e.Timeout:
		return fmt.Sprintf("%s: request timed out: %v", e.Backend, e.Err)
	default:
		return fmt.Sprintf("%s: transport: %v", e.Backend, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether a caller supplied retry policy may reasonably retry.
func (e *TransportError) Temporary() bool {
	return e.Timeout || e.StatusCode == 429 || e.StatusCode >= 500
}

// ProtocolViolationError reports an out of order or duplicate stream event.
type ProtocolViolationError struct {
	Backend string
	Index   int
	Reason  string
}

func (e *ProtocolViolationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: stream protocol violation: %s", e.Backend, e.Reason)
	}
	return fmt.Sprintf("%s: stream protocol violation at block %d: %s", e.Backend, e.Index, e.Reason)
}

// AuthError reports a credential fetch failure. No request was sent.
type AuthError struct {
	Backend string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: credential fetch failed: %v", e.Backend, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// StageOf attributes err to the pipeline stage that produced it.
func StageOf(err error) Stage {
	var (
		te *TranslationError
		me *MalformedToolInputError
		pe *ProtocolViolationError
		xe *TransportError
		ae *AuthError
	)
	switch {
	case errors.As(err, &ae):
		return StageAuth
	case errors.As(err, &te):
		return StageTranslation
	case errors.As(err, &me), errors.As(err, &pe):
		return StageReconstruction
	case errors.As(err, &xe):
		return StageTransport
	default:
		return StageUnknown
	}
}

// NewTransportError wraps a connection level failure, flagging timeouts.
func NewTransportError(backend string, err error) *TransportError {
	var ne net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
	return &TransportError{Backend: backend, Timeout: timeout, Err: err}
}
