package gemini

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/jsonx"
	"github.com/casualjim/llmux/pkg/uuidx"
	"github.com/casualjim/llmux/provider"
)

// callIDPrefix marks tool call ids synthesized for function calls without one.
const callIDPrefix = "call_"

var stopReasons = map[string]messages.StopKind{
	"STOP":                    messages.EndTurn,
	"MAX_TOKENS":              messages.MaxTokens,
	"MALFORMED_FUNCTION_CALL": messages.ErrorStop,
	"SAFETY":                  messages.Refusal,
	"RECITATION":              messages.Refusal,
	"BLOCKLIST":               messages.Refusal,
	"PROHIBITED_CONTENT":      messages.Refusal,
	"SPII":                    messages.Refusal,
}

// StopReason maps a finishReason to the canonical stop reason. STOP becomes
// ToolUseStop when the candidate carried a function call.
func StopReason(raw string, sawCall bool) messages.StopReason {
	kind, ok := stopReasons[raw]
	if !ok {
		return messages.Other(raw)
	}
	if kind == messages.EndTurn && sawCall {
		kind = messages.ToolUseStop
	}
	return messages.Stop(kind)
}

func decodeUsage(u gjson.Result) messages.Usage {
	return messages.Usage{
		InputTokens:          u.Get("promptTokenCount").Int(),
		OutputTokens:         u.Get("candidatesTokenCount").Int() + u.Get("thoughtsTokenCount").Int(),
		CacheReadInputTokens: u.Get("cachedContentTokenCount").Int(),
	}
}

func apiError(body []byte, root gjson.Result) error {
	e := root.Get("error")
	return &provider.TransportError{
		Backend:    Name,
		StatusCode: int(e.Get("code").Int()),
		Body:       body,
		Err:        errors.New(e.Get("status").String() + ": " + e.Get("message").String()),
	}
}

func (Translator) FromWire(body []byte) (messages.Response, error) {
	if !gjson.ValidBytes(body) {
		return messages.Response{}, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: "invalid json"}
	}
	root := gjson.ParseBytes(body)
	if root.Get("error").Exists() {
		return messages.Response{}, apiError(body, root)
	}

	resp := messages.Response{
		ID:    root.Get("responseId").String(),
		Model: root.Get("modelVersion").String(),
		Usage: decodeUsage(root.Get("usageMetadata")),
	}
	candidate := root.Get("candidates.0")
	if !candidate.Exists() {
		if block := root.Get("promptFeedback.blockReason"); block.Exists() {
			resp.StopReason = messages.StopReason{Kind: messages.Refusal, Raw: block.String()}
			return resp, nil
		}
		return resp, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: "no candidates"}
	}

	var (
		errs    []error
		sawCall bool
	)
	for _, p := range candidate.Get("content.parts").Array() {
		block, err := decodePart(p)
		if err != nil {
			var me *provider.MalformedToolInputError
			if errors.As(err, &me) {
				me.Index = len(resp.Content)
			}
			errs = append(errs, err)
			continue
		}
		if _, ok := block.(messages.ToolUse); ok {
			sawCall = true
		}
		if block != nil {
			resp.Content = append(resp.Content, block)
		}
	}
	resp.StopReason = StopReason(candidate.Get("finishReason").String(), sawCall)
	return resp, errors.Join(errs...)
}

func decodeArgs(call gjson.Result) (json.RawMessage, error) {
	args := call.Get("args")
	if !args.Exists() {
		return json.RawMessage(`{}`), nil
	}
	parsed, err := jsonx.Object(args.Raw)
	if err != nil {
		return nil, &provider.MalformedToolInputError{Backend: Name, ToolUseID: call.Get("id").String(), Name: call.Get("name").String(), Raw: args.Raw, Err: err}
	}
	return parsed, nil
}

// decodePart converts one model part. Parts with no canonical equivalent,
// such as executable code, decode to nil.
func decodePart(p gjson.Result) (messages.ContentBlock, error) {
	switch {
	case p.Get("functionCall").Exists():
		call := p.Get("functionCall")
		args, err := decodeArgs(call)
		if err != nil {
			return nil, err
		}
		id := call.Get("id").String()
		if id == "" {
			id = uuidx.CallID(callIDPrefix)
		}
		return messages.ToolUse{ID: id, Name: call.Get("name").String(), Input: args}, nil
	case p.Get("inlineData").Exists():
		return decodeBlob(p.Get("inlineData")), nil
	case p.Get("thought").Bool():
		return messages.Thinking{Text: p.Get("text").String(), Signature: p.Get("thoughtSignature").String()}, nil
	case p.Get("text").Exists():
		return messages.Text{Text: p.Get("text").String()}, nil
	default:
		return nil, nil
	}
}

func decodeBlob(b gjson.Result) messages.ContentBlock {
	mime := b.Get("mimeType").String()
	if strings.HasPrefix(mime, "image/") {
		return messages.Image{MediaType: mime, Data: b.Get("data").String()}
	}
	return messages.Document{MediaType: mime, Data: b.Get("data").String()}
}

func decodeResult(id string, resp gjson.Result) messages.ToolResult {
	if e := resp.Get("error"); e.Exists() {
		return messages.ToolResult{ToolUseID: id, Content: e.String(), IsError: true}
	}
	if r := resp.Get("result"); r.Exists() {
		return messages.ToolResult{ToolUseID: id, Content: r.String()}
	}
	return messages.ToolResult{ToolUseID: id, Content: resp.Raw}
}

func (Translator) DecodeRequest(body []byte) (provider.Request, error) {
	if !gjson.ValidBytes(body) {
		return provider.Request{}, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: "invalid json"}
	}
	root := gjson.ParseBytes(body)
	var req provider.Request

	if sys := root.Get("systemInstruction.parts").Array(); len(sys) == 1 {
		req.System = messages.System(sys[0].Get("text").String())
	} else if len(sys) > 1 {
		req.System = &messages.SystemPrompt{}
		for _, p := range sys {
			req.System.Blocks = append(req.System.Blocks, messages.SystemBlock{Text: p.Get("text").String()})
		}
	}

	// pending holds ids of calls not yet answered, per function name, for
	// responses that arrive without an id.
	pending := make(map[string][]string)
	for i, c := range root.Get("contents").Array() {
		var msg messages.Message
		switch c.Get("role").String() {
		case roleModel:
			msg.Role = messages.Assistant
		case roleUser, "function", "":
			msg.Role = messages.User
		default:
			return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: fmt.Sprintf("content %d has role %q", i, c.Get("role").String())}
		}

		for _, p := range c.Get("parts").Array() {
			if fr := p.Get("functionResponse"); fr.Exists() {
				name := fr.Get("name").String()
				id := fr.Get("id").String()
				if id == "" && len(pending[name]) > 0 {
					id = pending[name][0]
				}
				pending[name] = removeID(pending[name], id)
				msg.Content = append(msg.Content, decodeResult(id, fr.Get("response")))
				continue
			}
			block, err := decodePart(p)
			if err != nil {
				return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Detail: fmt.Sprintf("content %d", i), Err: err}
			}
			if tu, ok := block.(messages.ToolUse); ok {
				pending[tu.Name] = append(pending[tu.Name], tu.ID)
			}
			if block != nil {
				msg.Content = append(msg.Content, block)
			}
		}
		req.Messages = append(req.Messages, msg)
	}

	for _, t := range root.Get("tools.#.functionDeclarations|@flatten").Array() {
		def, err := messages.ToolFromSchema(t.Get("name").String(), t.Get("description").String(), []byte(t.Get("parameters").Raw))
		if err != nil {
			return req, &provider.TranslationError{Backend: Name, Kind: provider.InvalidWireMessage, Err: err}
		}
		req.Tools = append(req.Tools, def)
	}

	if fc := root.Get("toolConfig.functionCallingConfig"); fc.Exists() {
		allowed := fc.Get("allowedFunctionNames").Array()
		switch fc.Get("mode").String() {
		case "ANY":
			if len(allowed) == 1 {
				req.ToolChoice = messages.Specific{Name: allowed[0].String()}
			} else {
				req.ToolChoice = messages.Any{}
			}
		case "NONE":
			req.ToolChoice = messages.None{}
		default:
			req.ToolChoice = messages.Auto{}
		}
	}

	gc := root.Get("generationConfig")
	req.MaxTokens = gc.Get("maxOutputTokens").Int()
	if budget := gc.Get("thinkingConfig.thinkingBudget"); budget.Exists() {
		req.Thinking = &messages.ThinkingConfig{BudgetTokens: budget.Int()}
	}
	return req, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
