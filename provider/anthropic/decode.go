package anthropic

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/jsonx"
	"github.com/casualjim/llmux/provider"
)

var stopReasons = map[string]messages.StopKind{
	"end_turn":      messages.EndTurn,
	"tool_use":      messages.ToolUseStop,
	"max_tokens":    messages.MaxTokens,
	"stop_sequence": messages.StopSequence,
	"refusal":       messages.Refusal,
}

// StopReason maps a stop_reason to the canonical stop reason.
func StopReason(raw string) messages.StopReason {
	if kind, ok := stopReasons[raw]; ok {
		return messages.Stop(kind)
	}
	return messages.Other(raw)
}

func decodeUsage(u gjson.Result) messages.Usage {
	return messages.Usage{
		InputTokens:              u.Get("input_tokens").Int(),
		OutputTokens:             u.Get("output_tokens").Int(),
		CacheCreationInputTokens: u.Get("cache_creation_input_tokens").Int(),
		CacheReadInputTokens:     u.Get("cache_read_input_tokens").Int(),
	}
}

func (Translator) FromWire(body []byte) (messages.Response, error) {
	if !gjson.ValidBytes(body) {
		return messages.Response{}, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: "invalid json"}
	}
	root := gjson.ParseBytes(body)
	if root.Get("type").String() == "error" {
		return messages.Response{}, &provider.TransportError{Backend: Name, Body: body, Err: errors.New(root.Get("error.message").String())}
	}

	resp := messages.Response{
		ID:         root.Get("id").String(),
		Model:      root.Get("model").String(),
		StopReason: StopReason(root.Get("stop_reason").String()),
		Usage:      decodeUsage(root.Get("usage")),
	}
	var errs []error
	for _, b := range root.Get("content").Array() {
		block, err := decodeBlock(b)
		if err != nil {
			var me *provider.MalformedToolInputError
			if errors.As(err, &me) {
				me.Index = len(resp.Content)
			}
			errs = append(errs, err)
			continue
		}
		if block != nil {
			resp.Content = append(resp.Content, block)
		}
	}
	return resp, errors.Join(errs...)
}

// decodeBlock converts one wire block. Unknown block types decode to nil.
func decodeBlock(b gjson.Result) (messages.ContentBlock, error) {
	cache := decodeCache(b)
	switch b.Get("type").String() {
	case "text":
		return decodeText(b.Get("text").String(), cache), nil
	case "tool_use":
		input := b.Get("input")
		raw := json.RawMessage(`{}`)
		if input.Exists() {
			parsed, err := jsonx.Object(input.Raw)
			if err != nil {
				return nil, &provider.MalformedToolInputError{Backend: Name, ToolUseID: b.Get("id").String(), Name: b.Get("name").String(), Raw: input.Raw, Err: err}
			}
			raw = parsed
		}
		return messages.ToolUse{ID: b.Get("id").String(), Name: b.Get("name").String(), Input: raw, Cache: cache}, nil
	case "tool_result":
		return messages.ToolResult{
			ToolUseID: b.Get("tool_use_id").String(),
			Content:   resultText(b.Get("content")),
			IsError:   b.Get("is_error").Bool(),
			Cache:     cache,
		}, nil
	case "thinking":
		return messages.Thinking{Text: b.Get("thinking").String(), Signature: b.Get("signature").String()}, nil
	case "image":
		return messages.Image{MediaType: b.Get("source.media_type").String(), Data: b.Get("source.data").String(), Cache: cache}, nil
	case "document":
		return messages.Document{
			MediaType: b.Get("source.media_type").String(),
			Data:      b.Get("source.data").String(),
			Title:     b.Get("title").String(),
			Cache:     cache,
		}, nil
	default:
		return nil, nil
	}
}

func decodeCache(b gjson.Result) *messages.CacheControl {
	cc := b.Get("cache_control")
	if !cc.Exists() {
		return nil
	}
	return &messages.CacheControl{Type: cc.Get("type").String()}
}

func decodeText(text string, cache *messages.CacheControl) messages.ContentBlock {
	if strings.HasPrefix(text, ReasoningPrefix) && strings.HasSuffix(text, ReasoningSuffix) && cache == nil {
		return messages.Thinking{Text: strings.TrimSuffix(strings.TrimPrefix(text, ReasoningPrefix), ReasoningSuffix)}
	}
	return messages.Text{Text: text, Cache: cache}
}

func resultText(content gjson.Result) string {
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

	if sys := root.Get("system"); sys.Exists() {
		if sys.IsArray() {
			req.System = &messages.SystemPrompt{}
			for _, b := range sys.Array() {
				req.System.Blocks = append(req.System.Blocks, messages.SystemBlock{Text: b.Get("text").String(), Cache: decodeCache(b)})
			}
		} else {
			req.System = messages.System(sys.String())
		}
	}

	for i, m := range root.Get("messages").Array() {
		role := messages.Role(m.Get("role").String())
		if role != messages.User && role != messages.Assistant {
			return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: fmt.Sprintf("message %d has role %q", i, role)}
		}
		msg := messages.Message{Role: role}
		content := m.Get("content")
		if !content.IsArray() {
			msg.Content = []messages.ContentBlock{messages.Text{Text: content.String()}}
			req.Messages = append(req.Messages, msg)
			continue
		}
		for _, b := range content.Array() {
			block, err := decodeBlock(b)
			if err != nil {
				return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: fmt.Sprintf("message %d", i), Err: err}
			}
			if block != nil {
				msg.Content = append(msg.Content, block)
			}
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range root.Get("tools").Array() {
		tool, err := messages.ToolFromSchema(t.Get("name").String(), t.Get("description").String(), []byte(t.Get("input_schema").Raw))
		if err != nil {
			return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Err: err}
		}
		req.Tools = append(req.Tools, tool)
	}

	if tc := root.Get("tool_choice"); tc.Exists() {
		switch tc.Get("type").String() {
		case "any":
			req.ToolChoice = messages.Any{}
		case "none":
			req.ToolChoice = messages.None{}
		case "tool":
			req.ToolChoice = messages.Specific{Name: tc.Get("name").String()}
		default:
			req.ToolChoice = messages.Auto{DisableParallelToolUse: tc.Get("disable_parallel_tool_use").Bool()}
		}
	}
	if th := root.Get("thinking"); th.Get("type").String() == "enabled" {
		req.Thinking = &messages.ThinkingConfig{BudgetTokens: th.Get("budget_tokens").Int()}
	}
	return req, nil
}
