package provider

import (
	"context"
	"errors"
	"iter"
	"net/http"

	"github.com/casualjim/llmux/messages"
)

// Provider is the surface an agent loop uses to talk to a model backend.
type Provider interface {
	// Name reports the canonical backend tag such as "openai".
	Name() string
	// Model reports the model identifier requests are sent to.
	Model() string
	// Send issues one request without tools and returns the translated response.
	Send(ctx context.Context, params Params) (messages.Response, error)
	// SendWithTools is Send with the tool catalogue and tool choice attached.
	SendWithTools(ctx context.Context, params Params) (messages.Response, error)
	// Stream issues a streaming request. The sequence is lazy and single pass;
	// nothing is sent before the first iteration and any failure is yielded as
	// the final item. Stopping the iteration releases the connection.
	Stream(ctx context.Context, params Params) iter.Seq2[StreamEvent, error]
}

// Params is the canonical parameter set of every Provider operation.
type Params struct {
	Messages   []messages.Message
	System     *messages.SystemPrompt
	Tools      []messages.Tool
	ToolChoice messages.ToolChoice
	Thinking   *messages.ThinkingConfig
	// SessionID tags requests for telemetry. It never carries state.
	SessionID string

	// MaxTokens overrides the provider default when positive.
	MaxTokens int64
}

// Request is what a Translator turns into a wire body.
type Request struct {
	Model      string
	MaxTokens  int64
	Messages   []messages.Message
	System     *messages.SystemPrompt
	Tools      []messages.Tool
	ToolChoice messages.ToolChoice
	Thinking   *messages.ThinkingConfig
	Stream     bool
}

// Translator converts between the canonical model and one backend wire protocol.
type Translator interface {
	// Name is the canonical backend tag.
	Name() string
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL() string
	// Endpoint returns the request URL for model.
	Endpoint(baseURL, model string, stream bool) string
	// Authorize places the credential on the request headers.
	Authorize(h http.Header, credential string)
	// ToWire encodes a request body.
	ToWire(req Request) ([]byte, error)
	// FromWire decodes a non streaming response body. When some tool input
	// is malformed the response is returned without that block, along with the error.
	FromWire(body []byte) (messages.Response, error)
	// DecodeRequest is the inverse of ToWire for messages, system prompt and tools.
	DecodeRequest(body []byte) (Request, error)
	// NewFragmentParser returns a parser for one stream.
	NewFragmentParser() FragmentParser
}

// FragmentParser turns backend stream frames into canonical events.
// Implementations carry the per stream state needed to split merged frames.
type FragmentParser interface {
	// Parse consumes one frame. done reports that the backend end marker was seen.
	Parse(event string, data []byte) (events []StreamEvent, done bool, err error)
	// Finish is called when the transport reaches EOF without an end marker.
	Finish() ([]StreamEvent, error)
}

// CheckPairing validates tool call pairing in msgs on behalf of backend translators.
func CheckPairing(backend string, msgs []messages.Message) (map[string]string, error) {
	names, err := messages.CheckToolPairing(msgs)
	if err == nil {
		return names, nil
	}
	var pe *messages.PairingError
	if !errors.As(err, &pe) {
		return nil, &TranslationError{Backend: backend, Kind: UnmappableContent, Err: err}
	}
	kind := UnpairedToolResult
	if errors.Is(err, messages.ErrDuplicateToolUseID) {
		kind = DuplicateToolUseID
	}
	return nil, &TranslationError{Backend: backend, Kind: kind, Detail: pe.ToolUseID, Err: err}
}

// CheckToolChoice rejects tool choices that cannot be honoured with the offered tools.
// A None choice with no tools is always acceptable.
func CheckToolChoice(backend string, choice messages.ToolChoice, tools []messages.Tool) error {
	switch c := choice.(type) {
	case nil, messages.Auto, messages.None:
		return nil
	case messages.Any:
		if len(tools) == 0 {
			return &TranslationError{Backend: backend, Kind: UnsupportedToolChoice, Detail: "any requires at least one tool"}
		}
		return nil
	case messages.Specific:
		if c.Name == "" {
			return &TranslationError{Backend: backend, Kind: UnsupportedToolChoice, Detail: "specific tool choice without a name"}
		}
		if _, ok := messages.FindTool(tools, c.Name); !ok {
			return &TranslationError{Backend: backend, Kind: UnsupportedToolChoice, Detail: "unknown tool " + c.Name}
		}
		return nil
	default:
		return &TranslationError{Backend: backend, Kind: UnsupportedToolChoice, Detail: "unknown tool choice"}
	}
}
