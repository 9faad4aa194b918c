package gemini

import (
	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/uuidx"
	"github.com/casualjim/llmux/provider"
)

// streamParser turns generateContent chunks into block events. Each chunk
// carries whole parts; consecutive text parts of the same kind extend one block
// and every function call is a complete block of its own.
type streamParser struct {
	started  bool
	open     int
	openKind messages.BlockKind
	next     int
	sawCall  bool
}

func newStreamParser() *streamParser {
	return &streamParser{open: -1}
}

func (p *streamParser) closeOpen(out []provider.StreamEvent) []provider.StreamEvent {
	if p.open < 0 {
		return out
	}
	out = append(out, provider.ContentBlockStop{Index: p.open})
	p.open = -1
	p.openKind = ""
	return out
}

func (p *streamParser) openBlock(out []provider.StreamEvent, start provider.ContentBlockStart) []provider.StreamEvent {
	out = p.closeOpen(out)
	start.Index = p.next
	p.next++
	p.open = start.Index
	p.openKind = start.Kind
	return append(out, start)
}

func (p *streamParser) Parse(_ string, data []byte) ([]provider.StreamEvent, bool, error) {
	if !gjson.ValidBytes(data) {
		return nil, false, &provider.ProtocolViolationError{Backend: Name, Index: -1, Reason: "invalid json frame: " + string(data)}
	}
	root := gjson.ParseBytes(data)
	if root.Get("error").Exists() {
		return nil, false, apiError(data, root)
	}

	var out []provider.StreamEvent
	if !p.started {
		p.started = true
		out = append(out, provider.MessageStart{ID: root.Get("responseId").String(), Model: root.Get("modelVersion").String()})
	}

	candidate := root.Get("candidates.0")
	for _, part := range candidate.Get("content.parts").Array() {
		switch {
		case part.Get("functionCall").Exists():
			call := part.Get("functionCall")
			id := call.Get("id").String()
			if id == "" {
				id = uuidx.CallID(callIDPrefix)
			}
			p.sawCall = true
			out = p.openBlock(out, provider.ContentBlockStart{Kind: messages.KindToolUse, ID: id, Name: call.Get("name").String()})
			args := call.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			out = append(out, provider.ContentBlockDelta{Index: p.open, Delta: provider.InputJSONDelta{PartialJSON: args}})
			out = p.closeOpen(out)
		case part.Get("thought").Bool():
			if p.openKind != messages.KindThinking {
				out = p.openBlock(out, provider.ContentBlockStart{Kind: messages.KindThinking})
			}
			if text := part.Get("text").String(); text != "" {
				out = append(out, provider.ContentBlockDelta{Index: p.open, Delta: provider.TextDelta{Text: text}})
			}
			if sig := part.Get("thoughtSignature").String(); sig != "" {
				out = append(out, provider.ContentBlockDelta{Index: p.open, Delta: provider.SignatureDelta{Signature: sig}})
			}
		case part.Get("text").Exists():
			text := part.Get("text").String()
			if text == "" {
				continue
			}
			if p.openKind != messages.KindText {
				out = p.openBlock(out, provider.ContentBlockStart{Kind: messages.KindText})
			}
			out = append(out, provider.ContentBlockDelta{Index: p.open, Delta: provider.TextDelta{Text: text}})
		}
	}

	if usage := root.Get("usageMetadata"); usage.Exists() {
		out = append(out, provider.Usage{Usage: decodeUsage(usage)})
	}

	reason := candidate.Get("finishReason")
	if !reason.Exists() {
		block := root.Get("promptFeedback.blockReason")
		if !block.Exists() {
			return out, false, nil
		}
		out = p.closeOpen(out)
		sr := messages.StopReason{Kind: messages.Refusal, Raw: block.String()}
		return append(out, provider.MessageDelta{StopReason: &sr}, provider.MessageStop{}), true, nil
	}
	out = p.closeOpen(out)
	sr := StopReason(reason.String(), p.sawCall)
	return append(out, provider.MessageDelta{StopReason: &sr}, provider.MessageStop{}), true, nil
}

// Finish reports nothing. A stream without a finishReason is incomplete and
// the reconstructor rejects it.
func (p *streamParser) Finish() ([]provider.StreamEvent, error) {
	return nil, nil
}
