package anthropic

import (
	"bytes"
	"errors"

	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/provider"
)

type streamParser struct {
	// skipped holds indices of blocks with no canonical equivalent, such as redacted thinking.
	skipped map[int64]bool
}

func (p *streamParser) violation(reason string) error {
	return &provider.ProtocolViolationError{Backend: Name, Index: -1, Reason: reason}
}

func (p *streamParser) Parse(event string, data []byte) ([]provider.StreamEvent, bool, error) {
	if !gjson.ValidBytes(data) {
		return nil, false, p.violation("invalid json frame: " + string(data))
	}
	frame := gjson.ParseBytes(data)
	kind := frame.Get("type").String()
	if kind == "" {
		kind = event
	}

	switch kind {
	case "ping":
		return nil, false, nil

	case "error":
		return nil, false, &provider.TransportError{
			Backend: Name,
			Body:    bytes.Clone(data),
			Err:     errors.New(frame.Get("error.type").String() + ": " + frame.Get("error.message").String()),
		}

	case "message_start":
		msg := frame.Get("message")
		return []provider.StreamEvent{
			provider.MessageStart{ID: msg.Get("id").String(), Model: msg.Get("model").String()},
			provider.Usage{Usage: decodeUsage(msg.Get("usage"))},
		}, false, nil

	case "content_block_start":
		index := frame.Get("index").Int()
		cb := frame.Get("content_block")
		start := provider.ContentBlockStart{Index: int(index)}
		switch cb.Get("type").String() {
		case "text":
			start.Kind = messages.KindText
		case "thinking":
			start.Kind = messages.KindThinking
		case "tool_use", "server_tool_use":
			start.Kind = messages.KindToolUse
			start.ID = cb.Get("id").String()
			start.Name = cb.Get("name").String()
		default:
			p.skipped[index] = true
			return nil, false, nil
		}
		out := []provider.StreamEvent{start}
		if text := cb.Get("text").String(); text != "" {
			out = append(out, provider.ContentBlockDelta{Index: start.Index, Delta: provider.TextDelta{Text: text}})
		}
		return out, false, nil

	case "content_block_delta":
		index := frame.Get("index").Int()
		if p.skipped[index] {
			return nil, false, nil
		}
		d := frame.Get("delta")
		var delta provider.Delta
		switch dt := d.Get("type").String(); dt {
		case "text_delta":
			delta = provider.TextDelta{Text: d.Get("text").String()}
		case "thinking_delta":
			delta = provider.TextDelta{Text: d.Get("thinking").String()}
		case "input_json_delta":
			delta = provider.InputJSONDelta{PartialJSON: d.Get("partial_json").String()}
		case "signature_delta":
			delta = provider.SignatureDelta{Signature: d.Get("signature").String()}
		default:
			return nil, false, &provider.ProtocolViolationError{Backend: Name, Index: int(index), Reason: "unknown delta type " + dt}
		}
		return []provider.StreamEvent{provider.ContentBlockDelta{Index: int(index), Delta: delta}}, false, nil

	case "content_block_stop":
		index := frame.Get("index").Int()
		if p.skipped[index] {
			return nil, false, nil
		}
		return []provider.StreamEvent{provider.ContentBlockStop{Index: int(index)}}, false, nil

	case "message_delta":
		var out []provider.StreamEvent
		if reason := frame.Get("delta.stop_reason"); reason.Exists() && reason.Type != gjson.Null {
			sr := StopReason(reason.String())
			out = append(out, provider.MessageDelta{StopReason: &sr})
		}
		if usage := frame.Get("usage"); usage.Exists() {
			out = append(out, provider.Usage{Usage: decodeUsage(usage)})
		}
		return out, false, nil

	case "message_stop":
		return []provider.StreamEvent{provider.MessageStop{}}, true, nil

	default:
		return nil, false, nil
	}
}

func (p *streamParser) Finish() ([]provider.StreamEvent, error) {
	return nil, nil
}
