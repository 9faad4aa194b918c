package provider

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/jsonx"
)

type blockState int

const (
	blockOpen blockState = iota + 1
	blockClosed
)

type block struct {
	state     blockState
	kind      messages.BlockKind
	id        string
	name      string
	text      strings.Builder
	input     strings.Builder
	signature string
}

// Reconstructor validates and completes a canonical event sequence.
// It tracks every content block through NotStarted, Open and Closed, merges
// deltas, parses tool input only when its block closes and holds usage back
// until the message stops. The first error is terminal.
//
// A Reconstructor is not safe for concurrent use.
type Reconstructor struct {
	backend string
	started bool
	stopped bool
	err     error
	next    int
	blocks  map[int]*block
	usage   messages.Usage
}

// NewReconstructor returns a Reconstructor attributing errors to backend.
func NewReconstructor(backend string) *Reconstructor {
	return &Reconstructor{backend: backend, blocks: make(map[int]*block)}
}

// Push feeds one event and returns the events to deliver downstream.
func (r *Reconstructor) Push(ev StreamEvent) ([]StreamEvent, error) {
	if r.err != nil {
		return nil, r.err
	}
	out, err := r.push(ev)
	if err != nil {
		r.err = err
		return out, err
	}
	return out, nil
}

// PushAll feeds events in order, stopping at the first error.
func (r *Reconstructor) PushAll(events []StreamEvent) ([]StreamEvent, error) {
	var out []StreamEvent
	for _, ev := range events {
		emitted, err := r.Push(ev)
		out = append(out, emitted...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// Done reports whether MessageStop has been delivered.
func (r *Reconstructor) Done() bool { return r.stopped }

// Finish reports an error if the stream ended before MessageStop.
func (r *Reconstructor) Finish() error {
	if r.err != nil {
		return r.err
	}
	if !r.stopped {
		r.err = r.violation(-1, "stream ended before message stop")
	}
	return r.err
}

func (r *Reconstructor) violation(index int, format string, args ...any) error {
	return &ProtocolViolationError{Backend: r.backend, Index: index, Reason: fmt.Sprintf(format, args...)}
}

func (r *Reconstructor) push(ev StreamEvent) ([]StreamEvent, error) {
	if r.stopped {
		return nil, r.violation(-1, "%T after message stop", ev)
	}

	var out []StreamEvent
	if _, isStart := ev.(MessageStart); !isStart && !r.started {
		r.started = true
		out = append(out, MessageStart{})
	}

	switch e := ev.(type) {
	case MessageStart:
		if r.started {
			return nil, r.violation(-1, "duplicate message start")
		}
		r.started = true
		return append(out, e), nil

	case ContentBlockStart:
		if _, seen := r.blocks[e.Index]; seen {
			return out, r.violation(e.Index, "block started twice")
		}
		if e.Index < r.next {
			return out, r.violation(e.Index, "block index out of order, expected at least %d", r.next)
		}
		if e.Kind == "" {
			return out, r.violation(e.Index, "block without kind")
		}
		r.blocks[e.Index] = &block{state: blockOpen, kind: e.Kind, id: e.ID, name: e.Name}
		r.next = e.Index + 1
		return append(out, e), nil

	case ContentBlockDelta:
		b, err := r.openBlock(e.Index, "delta")
		if err != nil {
			return out, err
		}
		switch d := e.Delta.(type) {
		case TextDelta:
			if b.kind != messages.KindText && b.kind != messages.KindThinking {
				return out, r.violation(e.Index, "text_delta on %s block", b.kind)
			}
			b.text.WriteString(d.Text)
		case InputJSONDelta:
			if b.kind != messages.KindToolUse {
				return out, r.violation(e.Index, "input_json_delta on %s block", b.kind)
			}
			b.input.WriteString(d.PartialJSON)
		case SignatureDelta:
			if b.kind != messages.KindThinking {
				return out, r.violation(e.Index, "signature_delta on %s block", b.kind)
			}
			b.signature += d.Signature
		default:
			return out, r.violation(e.Index, "unknown delta %s", deltaName(e.Delta))
		}
		return append(out, e), nil

	case ContentBlockStop:
		b, err := r.openBlock(e.Index, "stop")
		if err != nil {
			return out, err
		}
		b.state = blockClosed
		completed, err := r.complete(e.Index, b, e.Block)
		if err != nil {
			return out, err
		}
		return append(out, ContentBlockStop{Index: e.Index, Block: completed}), nil

	case MessageDelta:
		return append(out, e), nil

	case Usage:
		r.usage = r.usage.Merge(e.Usage)
		return out, nil

	case MessageStop:
		if idx, open := r.firstOpen(); open {
			return out, r.violation(idx, "message stopped with block still open")
		}
		r.stopped = true
		return append(out, Usage{Usage: r.usage}, e), nil

	default:
		return out, r.violation(-1, "unknown event %T", ev)
	}
}

func (r *Reconstructor) firstOpen() (int, bool) {
	first, found := 0, false
	for idx, b := range r.blocks {
		if b.state == blockOpen && (!found || idx < first) {
			first, found = idx, true
		}
	}
	return first, found
}

func (r *Reconstructor) openBlock(index int, what string) (*block, error) {
	b, ok := r.blocks[index]
	if !ok {
		return nil, r.violation(index, "%s for block that was never started", what)
	}
	if b.state == blockClosed {
		return nil, r.violation(index, "%s after block closed", what)
	}
	return b, nil
}

func (r *Reconstructor) complete(index int, b *block, given messages.ContentBlock) (messages.ContentBlock, error) {
	switch b.kind {
	case messages.KindText:
		return messages.Text{Text: b.text.String()}, nil
	case messages.KindThinking:
		return messages.Thinking{Text: b.text.String(), Signature: b.signature}, nil
	case messages.KindToolUse:
		raw := b.input.String()
		input, err := jsonx.Object(raw)
		if err != nil {
			return nil, &MalformedToolInputError{Backend: r.backend, Index: index, ToolUseID: b.id, Name: b.name, Raw: raw, Err: err}
		}
		return messages.ToolUse{ID: b.id, Name: b.name, Input: json.RawMessage(input)}, nil
	default:
		if given == nil || given.Kind() != b.kind {
			return nil, r.violation(index, "%s block closed without content", b.kind)
		}
		return given, nil
	}
}
