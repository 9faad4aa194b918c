package gemini

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/sjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/jsonx"
	"github.com/casualjim/llmux/provider"
)

const (
	// Name is the canonical backend tag.
	Name = "gemini"
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// APIVersion is the path segment the endpoints live under.
	APIVersion = "v1beta"

	roleUser  = "user"
	roleModel = "model"
)

// Translator implements provider.Translator for generateContent.
type Translator struct{}

var _ provider.Translator = Translator{}

func (Translator) Name() string           { return Name }
func (Translator) DefaultBaseURL() string { return DefaultBaseURL }

func (Translator) Endpoint(baseURL, model string, stream bool) string {
	base := strings.TrimSuffix(baseURL, "/") + "/" + APIVersion + "/models/" + url.PathEscape(model)
	if stream {
		return base + ":streamGenerateContent?alt=sse"
	}
	return base + ":generateContent"
}

func (Translator) Authorize(h http.Header, credential string) {
	h.Set("x-goog-api-key", credential)
}

func (Translator) NewFragmentParser() provider.FragmentParser {
	return newStreamParser()
}

func (Translator) ToWire(req provider.Request) ([]byte, error) {
	names, err := provider.CheckPairing(Name, req.Messages)
	if err != nil {
		return nil, err
	}
	if err := provider.CheckToolChoice(Name, req.ToolChoice, req.Tools); err != nil {
		return nil, err
	}

	wire := generateRequest{Contents: make([]content, 0, len(req.Messages))}
	if !req.System.IsEmpty() {
		wire.SystemInstruction = encodeSystem(req.System)
	}

	for _, msg := range req.Messages {
		parts, err := convertParts(msg, names)
		if err != nil {
			return nil, err
		}
		if len(parts) == 0 {
			continue
		}
		role := roleUser
		if msg.Role == messages.Assistant {
			role = roleModel
		}
		wire.Contents = append(wire.Contents, content{Role: role, Parts: parts})
	}

	if len(req.Tools) > 0 {
		decls := make([]functionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			schema, err := parameterSchema(t)
			if err != nil {
				return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: t.Name, Err: err}
			}
			decls[i] = functionDeclaration{Name: t.Name, Description: t.Description, Parameters: schema}
		}
		wire.Tools = []tool{{FunctionDeclarations: decls}}
		tc, err := encodeToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		wire.ToolConfig = tc
	}

	gc := &generationConfig{MaxOutputTokens: req.MaxTokens}
	if gc.MaxOutputTokens <= 0 {
		gc.MaxOutputTokens = provider.DefaultMaxTokens
	}
	if req.Thinking != nil && req.Thinking.BudgetTokens > 0 {
		gc.ThinkingConfig = &thinkingConfig{ThinkingBudget: req.Thinking.BudgetTokens, IncludeThoughts: true}
	}
	wire.GenerationConfig = gc
	return json.Marshal(wire)
}

// parameterSchema drops the JSON Schema keywords that functionDeclarations
// reject, since parameters only accepts the OpenAPI schema subset.
func parameterSchema(t messages.Tool) (json.RawMessage, error) {
	schema, err := t.Schema()
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"$id", "$schema"} {
		if schema, err = sjson.DeleteBytes(schema, key); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

func encodeSystem(s *messages.SystemPrompt) *content {
	if !s.Structured() {
		return &content{Parts: []part{{Text: s.Text}}}
	}
	sys := &content{Parts: make([]part, 0, len(s.Blocks))}
	for _, b := range s.Blocks {
		if b.Text != "" {
			sys.Parts = append(sys.Parts, part{Text: b.Text})
		}
	}
	return sys
}

func encodeToolChoice(choice messages.ToolChoice) (*toolConfig, error) {
	switch c := choice.(type) {
	case nil:
		return nil, nil
	case messages.Auto:
		if c.DisableParallelToolUse {
			return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnsupportedToolChoice, Detail: "parallel tool use cannot be disabled"}
		}
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "AUTO"}}, nil
	case messages.Any:
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "ANY"}}, nil
	case messages.None:
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "NONE"}}, nil
	case messages.Specific:
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "ANY", AllowedFunctionNames: []string{c.Name}}}, nil
	default:
		return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnsupportedToolChoice, Detail: fmt.Sprintf("%T", choice)}
	}
}

func convertParts(msg messages.Message, names map[string]string) ([]part, error) {
	out := make([]part, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch b := block.(type) {
		case messages.Text:
			if b.Text != "" {
				out = append(out, part{Text: b.Text})
			}
		case messages.Thinking:
			out = append(out, part{Text: b.Text, Thought: true, ThoughtSignature: b.Signature})
		case messages.Image:
			out = append(out, part{InlineData: &blob{MimeType: b.MediaType, Data: b.Data}})
		case messages.Document:
			out = append(out, part{InlineData: &blob{MimeType: b.MediaType, Data: b.Data}})
		case messages.ToolUse:
			if msg.Role != messages.Assistant {
				return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: "tool use in user message"}
			}
			out = append(out, part{FunctionCall: &functionCall{ID: b.ID, Name: b.Name, Args: jsonx.OrEmptyObject(b.Input)}})
		case messages.ToolResult:
			if msg.Role != messages.User {
				return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: "tool result in assistant message"}
			}
			key := "result"
			if b.IsError {
				key = "error"
			}
			resp, err := sjson.SetBytes([]byte(`{}`), key, b.Content)
			if err != nil {
				return nil, &provider.TranslationError{Backend: Name, Kind: provider.UnmappableContent, Detail: b.ToolUseID, Err: err}
			}
			out = append(out, part{FunctionResponse: &functionResponse{ID: b.ToolUseID, Name: names[b.ToolUseID], Response: resp}})
		}
	}
	return out, nil
}
