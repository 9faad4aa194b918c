package openai

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/jsonx"
	"github.com/casualjim/llmux/provider"
)

var stopReasons = map[string]messages.StopKind{
	"stop":           messages.EndTurn,
	"length":         messages.MaxTokens,
	"tool_calls":     messages.ToolUseStop,
	"function_call":  messages.ToolUseStop,
	"content_filter": messages.Refusal,
}

// StopReason maps a finish_reason to the canonical stop reason.
func StopReason(raw string) messages.StopReason {
	if kind, ok := stopReasons[raw]; ok {
		return messages.Stop(kind)
	}
	return messages.Other(raw)
}

func (Translator) FromWire(body []byte) (messages.Response, error) {
	var completion openai.ChatCompletion
	if err := json.Unmarshal(body, &completion); err != nil {
		return messages.Response{}, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Err: err}
	}
	if len(completion.Choices) == 0 {
		return messages.Response{}, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: "no choices in response"}
	}

	choice := completion.Choices[0]
	resp := messages.Response{
		ID:         completion.ID,
		Model:      completion.Model,
		StopReason: StopReason(string(choice.FinishReason)),
		Usage: messages.Usage{
			InputTokens:          completion.Usage.PromptTokens,
			OutputTokens:         completion.Usage.CompletionTokens,
			CacheReadInputTokens: gjson.GetBytes(body, "usage.prompt_tokens_details.cached_tokens").Int(),
		},
	}

	text := choice.Message.Content
	if text == "" {
		text = gjson.GetBytes(body, "choices.0.message.refusal").String()
	}
	if text != "" {
		resp.Content = append(resp.Content, messages.Text{Text: text})
	}

	var errs []error
	for _, call := range choice.Message.ToolCalls {
		input, err := jsonx.Object(call.Function.Arguments)
		if err != nil {
			errs = append(errs, &provider.MalformedToolInputError{
				Backend:   Name,
				Index:     len(resp.Content),
				ToolUseID: call.ID,
				Name:      call.Function.Name,
				Raw:       call.Function.Arguments,
				Err:       err,
			})
			continue
		}
		resp.Content = append(resp.Content, messages.ToolUse{ID: call.ID, Name: call.Function.Name, Input: input})
	}
	return resp, errors.Join(errs...)
}

func (Translator) DecodeRequest(body []byte) (provider.Request, error) {
	if !gjson.ValidBytes(body) {
		return provider.Request{}, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: "invalid json"}
	}
	root := gjson.ParseBytes(body)
	req := provider.Request{
		Model:     root.Get("model").String(),
		MaxTokens: root.Get("max_tokens").Int(),
		Stream:    root.Get("stream").Bool(),
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = root.Get("max_completion_tokens").Int()
	}

	var (
		out     []messages.Message
		pending *messages.Message
	)
	push := func(role messages.Role, blocks ...messages.ContentBlock) {
		if pending != nil && pending.Role == role && role == messages.User {
			pending.Content = append(pending.Content, blocks...)
			return
		}
		if pending != nil {
			out = append(out, *pending)
		}
		pending = &messages.Message{Role: role, Content: blocks}
	}

	for i, m := range root.Get("messages").Array() {
		switch role := m.Get("role").String(); role {
		case "system", "developer":
			if req.System == nil {
				req.System = messages.System(partsText(m.Get("content")))
			} else {
				req.System.Text += "\n" + partsText(m.Get("content"))
			}
		case "user":
			push(messages.User, decodeParts(m.Get("content"))...)
		case "tool":
			content := partsText(m.Get("content"))
			result := messages.ToolResult{ToolUseID: m.Get("tool_call_id").String(), Content: content}
			if rest, ok := strings.CutPrefix(content, errorPrefix); ok {
				result.Content, result.IsError = rest, true
			}
			push(messages.User, result)
		case "assistant":
			blocks := decodeParts(m.Get("content"))
			for _, call := range m.Get("tool_calls").Array() {
				input, err := jsonx.Object(call.Get("function.arguments").String())
				if err != nil {
					return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: fmt.Sprintf("message %d tool call arguments", i), Err: err}
				}
				blocks = append(blocks, messages.ToolUse{
					ID:    call.Get("id").String(),
					Name:  call.Get("function.name").String(),
					Input: input,
				})
			}
			push(messages.Assistant, blocks...)
		default:
			return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: fmt.Sprintf("message %d has role %q", i, role)}
		}
	}
	if pending != nil {
		out = append(out, *pending)
	}
	req.Messages = out

	for _, t := range root.Get("tools").Array() {
		tool, err := messages.ToolFromSchema(t.Get("function.name").String(), t.Get("function.description").String(), []byte(t.Get("function.parameters").Raw))
		if err != nil {
			return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Err: err}
		}
		req.Tools = append(req.Tools, tool)
	}
	req.ToolChoice = decodeToolChoice(root)
	return req, nil
}

func decodeToolChoice(root gjson.Result) messages.ToolChoice {
	tc := root.Get("tool_choice")
	if !tc.Exists() {
		return nil
	}
	if tc.IsObject() {
		return messages.Specific{Name: tc.Get("function.name").String()}
	}
	switch tc.String() {
	case "required":
		return messages.Any{}
	case "none":
		return messages.None{}
	default:
		pc := root.Get("parallel_tool_calls")
		return messages.Auto{DisableParallelToolUse: pc.Exists() && !pc.Bool()}
	}
}

func partsText(content gjson.Result) string {
	if !content.IsArray() {
		return content.String()
	}
	var sb strings.Builder
	for _, p := range content.Array() {
		if p.Get("type").String() == "text" {
			sb.WriteString(p.Get("text").String())
		}
	}
	return sb.String()
}

func decodeParts(content gjson.Result) []messages.ContentBlock {
	if !content.Exists() || content.Type == gjson.Null {
		return nil
	}
	if !content.IsArray() {
		return []messages.ContentBlock{decodeText(content.String())}
	}
	var blocks []messages.ContentBlock
	for _, p := range content.Array() {
		switch p.Get("type").String() {
		case "text":
			blocks = append(blocks, decodeText(p.Get("text").String()))
		case "image_url":
			if img, ok := decodeDataURL(p.Get("image_url.url").String()); ok {
				blocks = append(blocks, img)
			}
		}
	}
	return blocks
}

func decodeText(text string) messages.ContentBlock {
	if strings.HasPrefix(text, ReasoningPrefix) && strings.HasSuffix(text, ReasoningSuffix) {
		return messages.Thinking{Text: strings.TrimSuffix(strings.TrimPrefix(text, ReasoningPrefix), ReasoningSuffix)}
	}
	return messages.Text{Text: text}
}

func decodeDataURL(url string) (messages.Image, bool) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return messages.Image{}, false
	}
	mediaType, data, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return messages.Image{}, false
	}
	return messages.Image{MediaType: mediaType, Data: data}, true
}
