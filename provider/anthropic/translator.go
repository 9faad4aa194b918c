package anthropic

import (
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/jsonx"
	"github.com/casualjim/llmux/provider"
)

const (
	// Name is the canonical backend tag.
	Name = "anthropic"
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.anthropic.com"
	// APIVersion is sent as the anthropic-version header.
	APIVersion = "2023-06-01"

	// ReasoningPrefix and ReasoningSuffix wrap unsigned thinking sent as text.
	ReasoningPrefix = "[Internal reasoning: "
	ReasoningSuffix = "]"
)

// Translator implements provider.Translator for the messages protocol.
type Translator struct{}

var _ provider.Translator = Translator{}

func (Translator) Name() string           { return Name }
func (Translator) DefaultBaseURL() string { return DefaultBaseURL }

func (Translator) Endpoint(baseURL, _ string, _ bool) string {
	return strings.TrimSuffix(baseURL, "/") + "/v1/messages"
}

func (Translator) Authorize(h http.Header, credential string) {
	h.Set("x-api-key", credential)
	h.Set("anthropic-version", APIVersion)
}

func (Translator) NewFragmentParser() provider.FragmentParser {
	return &streamParser{skipped: make(map[int64]bool)}
}

func (Translator) ToWire(req provider.Request) ([]byte, error) {
	if _, err := provider.CheckPairing(Name, req.Messages); err != nil {
		return nil, err
	}
	if err := provider.CheckToolChoice(Name, req.ToolChoice, req.Tools); err != nil {
		return nil, err
	}

	wire := messagesRequest{Model: req.Model, MaxTokens: req.MaxTokens, Stream: req.Stream}
	if wire.MaxTokens <= 0 {
		wire.MaxTokens = provider.DefaultMaxTokens
	}

	if !req.System.IsEmpty() {
		system, err := encodeSystem(req.System)
		if err != nil {
			return nil, err
		}
		wire.System = system
	}

	for _, msg := range req.Messages {
		blocks, err := convertBlocks(msg)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		wire.Messages = append(wire.Messages, wireMessage{Role: string(msg.Role), Content: blocks})
	}

	if len(req.Tools) > 0 {
		wire.Tools = make([]wireTool, len(req.Tools))
		for i, t := range req.Tools {
			schema, err := t.Schema()
			if err != nil {
				return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: t.Name, Err: err}
			}
			wire.Tools[i] = wireTool{Name: t.Name, Description: t.Description, InputSchema: schema}
		}
		tc, err := encodeToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		wire.ToolChoice = tc
	}

	if req.Thinking != nil && req.Thinking.BudgetTokens > 0 {
		// The budget is counted inside max_tokens.
		if req.Thinking.BudgetTokens >= wire.MaxTokens {
			return nil, &provider.TranslationError{
				Backend: Name,
				Kind:    provider.InvalidThinkingBudget,
				Detail:  fmt.Sprintf("budget %d must be below max_tokens %d", req.Thinking.BudgetTokens, wire.MaxTokens),
			}
		}
		wire.Thinking = &thinking{Type: "enabled", BudgetTokens: req.Thinking.BudgetTokens}
	}
	return json.Marshal(wire)
}

func encodeSystem(s *messages.SystemPrompt) (json.RawMessage, error) {
	if !s.Structured() {
		return json.Marshal(s.Text)
	}
	blocks := make([]wireBlock, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		if b.Text == "" {
			continue
		}
		blocks = append(blocks, wireBlock{Type: "text", Text: b.Text, CacheControl: b.Cache})
	}
	return json.Marshal(blocks)
}

func encodeToolChoice(choice messages.ToolChoice) (*toolChoice, error) {
	switch c := choice.(type) {
	case nil:
		return nil, nil
	case messages.Auto:
		return &toolChoice{Type: "auto", DisableParallelToolUse: c.DisableParallelToolUse}, nil
	case messages.Any:
		return &toolChoice{Type: "any"}, nil
	case messages.None:
		return &toolChoice{Type: "none"}, nil
	case messages.Specific:
		return &toolChoice{Type: "tool", Name: c.Name}, nil
	default:
		return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnsupportedToolChoice, Detail: fmt.Sprintf("%T", choice)}
	}
}

func convertBlocks(msg messages.Message) ([]wireBlock, error) {
	out := make([]wireBlock, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch b := block.(type) {
		case messages.Text:
			if b.Text == "" {
				continue
			}
			out = append(out, wireBlock{Type: "text", Text: b.Text, CacheControl: b.Cache})
		case messages.ToolUse:
			if msg.Role != messages.Assistant {
				return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: "tool use in user message"}
			}
			out = append(out, wireBlock{Type: "tool_use", ID: b.ID, Name: b.Name, Input: jsonx.OrEmptyObject(b.Input), CacheControl: b.Cache})
		case messages.ToolResult:
			if msg.Role != messages.User {
				return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: "tool result in assistant message"}
			}
			out = append(out, wireBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError, CacheControl: b.Cache})
		case messages.Thinking:
			if b.Signature == "" || msg.Role != messages.Assistant {
				out = append(out, wireBlock{Type: "text", Text: ReasoningPrefix + b.Text + ReasoningSuffix})
				continue
			}
			out = append(out, wireBlock{Type: "thinking", Thinking: b.Text, Signature: b.Signature})
		case messages.Image:
			out = append(out, wireBlock{
				Type:         "image",
				Source:       &source{Type: "base64", MediaType: b.MediaType, Data: b.Data},
				CacheControl: b.Cache,
			})
		case messages.Document:
			out = append(out, wireBlock{
				Type:         "document",
				Source:       &source{Type: "base64", MediaType: b.MediaType, Data: b.Data},
				Title:        b.Title,
				CacheControl: b.Cache,
			})
		}
	}
	return out, nil
}
