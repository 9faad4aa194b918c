package openai

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
	Name = "openai"
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// ReasoningPrefix and ReasoningSuffix wrap thinking sent as plain text.
	ReasoningPrefix = "[Internal reasoning: "
	ReasoningSuffix = "]"

	errorPrefix = "Error: "
)

var reasoningModelPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

// Translator implements provider.Translator for the chat completions protocol.
type Translator struct{}

var _ provider.Translator = Translator{}

func (Translator) Name() string           { return Name }
func (Translator) DefaultBaseURL() string { return DefaultBaseURL }

func (Translator) Endpoint(baseURL, _ string, _ bool) string {
	return strings.TrimSuffix(baseURL, "/") + "/chat/completions"
}

func (Translator) Authorize(h http.Header, credential string) {
	h.Set("Authorization", "Bearer "+credential)
}

func (Translator) NewFragmentParser() provider.FragmentParser {
	return newStreamParser()
}

// IsReasoningModel reports whether model takes max_completion_tokens.
// Dated, sized and point releases such as o1-mini or gpt-5.1 match their family.
func IsReasoningModel(model string) bool {
	for _, p := range reasoningModelPrefixes {
		if model == p || strings.HasPrefix(model, p+"-") || strings.HasPrefix(model, p+".") {
			return true
		}
	}
	return false
}

func (Translator) ToWire(req provider.Request) ([]byte, error) {
	if _, err := provider.CheckPairing(Name, req.Messages); err != nil {
		return nil, err
	}
	if err := provider.CheckToolChoice(Name, req.ToolChoice, req.Tools); err != nil {
		return nil, err
	}

	wire := chatRequest{Model: req.Model}
	if IsReasoningModel(req.Model) {
		wire.MaxCompletionTokens = req.MaxTokens
	} else {
		wire.MaxTokens = req.MaxTokens
	}

	if !req.System.IsEmpty() {
		content, _ := json.Marshal(req.System.String())
		wire.Messages = append(wire.Messages, chatMessage{Role: "system", Content: content})
	}
	for _, msg := range req.Messages {
		converted, err := convertMessage(msg)
		if err != nil {
			return nil, err
		}
		wire.Messages = append(wire.Messages, converted...)
	}

	if len(req.Tools) > 0 {
		wire.Tools = make([]chatTool, len(req.Tools))
		for i, t := range req.Tools {
			schema, err := t.Schema()
			if err != nil {
				return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: t.Name, Err: err}
			}
			wire.Tools[i] = chatTool{
				Type:     "function",
				Function: functionDefinition{Name: t.Name, Description: t.Description, Parameters: schema},
			}
		}
		choice, parallel, err := toolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		wire.ToolChoice = choice
		wire.ParallelToolCalls = parallel
	}

	if req.Stream {
		wire.Stream = true
		wire.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return json.Marshal(wire)
}

func toolChoice(choice messages.ToolChoice) (json.RawMessage, *bool, error) {
	switch c := choice.(type) {
	case nil:
		return nil, nil, nil
	case messages.Auto:
		if c.DisableParallelToolUse {
			no := false
			return json.RawMessage(`"auto"`), &no, nil
		}
		return json.RawMessage(`"auto"`), nil, nil
	case messages.Any:
		return json.RawMessage(`"required"`), nil, nil
	case messages.None:
		return json.RawMessage(`"none"`), nil, nil
	case messages.Specific:
		data, err := json.Marshal(map[string]any{
			"type":     "function",
			"function": map[string]string{"name": c.Name},
		})
		return data, nil, err
	default:
		return nil, nil, &provider.TranslationError{Backend: Name, Kind: provider.UnsupportedToolChoice, Detail: fmt.Sprintf("%T", choice)}
	}
}

func convertMessage(msg messages.Message) ([]chatMessage, error) {
	switch msg.Role {
	case messages.Assistant:
		return convertAssistant(msg)
	case messages.User:
		return convertUser(msg)
	default:
		return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: "role " + string(msg.Role)}
	}
}

func convertAssistant(msg messages.Message) ([]chatMessage, error) {
	var (
		parts []contentPart
		calls []toolCall
	)
	for _, block := range msg.Content {
		switch b := block.(type) {
		case messages.Text:
			parts = append(parts, contentPart{Type: "text", Text: b.Text})
		case messages.Thinking:
			parts = append(parts, contentPart{Type: "text", Text: ReasoningPrefix + b.Text + ReasoningSuffix})
		case messages.ToolUse:
			calls = append(calls, toolCall{
				ID:       b.ID,
				Type:     "function",
				Function: toolFunction{Name: b.Name, Arguments: string(jsonx.OrEmptyObject(b.Input))},
			})
		case messages.Document, messages.Image:
			// images are user only; documents are unsupported
		case messages.ToolResult:
			return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: "tool result in assistant message"}
		}
	}
	if len(parts) == 0 && len(calls) == 0 {
		return nil, nil
	}
	out := chatMessage{Role: "assistant", ToolCalls: calls}
	if len(parts) > 0 {
		content, err := encodeParts(parts)
		if err != nil {
			return nil, err
		}
		out.Content = content
	}
	return []chatMessage{out}, nil
}

func convertUser(msg messages.Message) ([]chatMessage, error) {
	var (
		out     []chatMessage
		pending []contentPart
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		content, err := encodeParts(pending)
		if err != nil {
			return err
		}
		out = append(out, chatMessage{Role: "user", Content: content})
		pending = nil
		return nil
	}

	for _, block := range msg.Content {
		switch b := block.(type) {
		case messages.Text:
			pending = append(pending, contentPart{Type: "text", Text: b.Text})
		case messages.Thinking:
			pending = append(pending, contentPart{Type: "text", Text: ReasoningPrefix + b.Text + ReasoningSuffix})
		case messages.Image:
			pending = append(pending, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: "data:" + b.MediaType + ";base64," + b.Data},
			})
		case messages.Document:
			// no document input on this protocol
		case messages.ToolResult:
			if err := flush(); err != nil {
				return nil, err
			}
			text := b.Content
			if b.IsError {
				text = errorPrefix + text
			}
			content, _ := json.Marshal(text)
			out = append(out, chatMessage{Role: "tool", ToolCallID: b.ToolUseID, Content: content})
		case messages.ToolUse:
			return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: "tool use in user message"}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// encodeParts renders a lone text part as a plain string and anything else as a parts array.
func encodeParts(parts []contentPart) (json.RawMessage, error) {
	if len(parts) == 1 && parts[0].Type == "text" {
		return json.Marshal(parts[0].Text)
	}
	return json.Marshal(parts)
}
