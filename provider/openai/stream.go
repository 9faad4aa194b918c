package openai

import (
	"bytes"
	"errors"

	json "github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/provider"
)

var doneMarker = []byte("[DONE]")

type streamParser struct {
	started  bool
	open     int
	openKind messages.BlockKind
	next     int
	tools    map[int64]int
	finished bool
}

func newStreamParser() *streamParser {
	return &streamParser{open: -1, tools: make(map[int64]int)}
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
	if bytes.Equal(data, doneMarker) {
		out := p.closeOpen(nil)
		return append(out, provider.MessageStop{}), true, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, false, &provider.ProtocolViolationError{Backend: Name, Index: -1, Reason: "invalid json frame: " + string(data)}
	}
	if apiErr := gjson.GetBytes(data, "error"); apiErr.Exists() {
		return nil, false, &provider.TransportError{
			Backend: Name,
			Body:    bytes.Clone(data),
			Err:     errors.New(apiErr.Get("message").String()),
		}
	}

	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, false, &provider.ProtocolViolationError{Backend: Name, Index: -1, Reason: err.Error()}
	}

	var out []provider.StreamEvent
	if !p.started {
		p.started = true
		out = append(out, provider.MessageStart{ID: chunk.ID, Model: chunk.Model})
	}

	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		delta := choice.Delta
		if delta.Content != "" {
			if p.openKind != messages.KindText {
				out = p.openBlock(out, provider.ContentBlockStart{Kind: messages.KindText})
			}
			out = append(out, provider.ContentBlockDelta{Index: p.open, Delta: provider.TextDelta{Text: delta.Content}})
		}
		for _, call := range delta.ToolCalls {
			idx, seen := p.tools[call.Index]
			if !seen {
				out = p.openBlock(out, provider.ContentBlockStart{
					Kind: messages.KindToolUse,
					ID:   call.ID,
					Name: call.Function.Name,
				})
				idx = p.open
				p.tools[call.Index] = idx
			}
			if call.Function.Arguments != "" {
				out = append(out, provider.ContentBlockDelta{Index: idx, Delta: provider.InputJSONDelta{PartialJSON: call.Function.Arguments}})
			}
		}
		if choice.FinishReason != "" {
			out = p.closeOpen(out)
			reason := StopReason(string(choice.FinishReason))
			out = append(out, provider.MessageDelta{StopReason: &reason})
			p.finished = true
		}
	}

	if usage := gjson.GetBytes(data, "usage"); usage.IsObject() {
		out = append(out, provider.Usage{Usage: messages.Usage{
			InputTokens:          chunk.Usage.PromptTokens,
			OutputTokens:         chunk.Usage.CompletionTokens,
			CacheReadInputTokens: usage.Get("prompt_tokens_details.cached_tokens").Int(),
		}})
	}
	return out, false, nil
}

// Finish closes a stream that ended after its finish_reason without the [DONE] marker.
func (p *streamParser) Finish() ([]provider.StreamEvent, error) {
	if !p.finished {
		return nil, nil
	}
	out := p.closeOpen(nil)
	return append(out, provider.MessageStop{}), nil
}
