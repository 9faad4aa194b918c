package provider

import (
	"fmt"

	"github.com/casualjim/llmux/messages"
)

// StreamEvent is one item of a streamed completion.
// Events arrive in the order MessageStart, then per block ContentBlockStart,
// ContentBlockDelta..., ContentBlockStop, then MessageDelta, Usage, MessageStop.
type StreamEvent interface {
	streamEvent()
}

// MessageStart opens the response.
type MessageStart struct {
	ID    string
	Model string
}

// ContentBlockStart opens the block at Index. ID and Name are set for tool use blocks.
type ContentBlockStart struct {
	Index int
	Kind  messages.BlockKind
	ID    string
	Name  string
}

// ContentBlockDelta carries an increment for an open block.
type ContentBlockDelta struct {
	Index int
	Delta Delta
}

// ContentBlockStop closes the block at Index. Block holds the completed block;
// parsers leave it nil and the Reconstructor fills it in.
type ContentBlockStop struct {
	Index int
	Block messages.ContentBlock
}

// MessageDelta carries message level updates.
type MessageDelta struct {
	StopReason *messages.StopReason
}

// MessageStop ends the response. Nothing follows it.
type MessageStop struct{}

// Usage reports token accounting.
type Usage struct {
	Usage messages.Usage
}

func (MessageStart) streamEvent()      {}
func (ContentBlockStart) streamEvent() {}
func (ContentBlockDelta) streamEvent() {}
func (ContentBlockStop) streamEvent()  {}
func (MessageDelta) streamEvent()      {}
func (MessageStop) streamEvent()       {}
func (Usage) streamEvent()             {}

// Delta is the payload of a ContentBlockDelta.
type Delta interface {
	delta()
}

// TextDelta appends to a text or thinking block.
type TextDelta struct {
	Text string
}

// InputJSONDelta appends a raw fragment of tool input JSON.
type InputJSONDelta struct {
	PartialJSON string
}

// SignatureDelta sets the signature on a thinking block.
type SignatureDelta struct {
	Signature string
}

func (TextDelta) delta()      {}
func (InputJSONDelta) delta() {}
func (SignatureDelta) delta() {}

func deltaName(d Delta) string {
	switch d.(type) {
	case TextDelta:
		return "text_delta"
	case InputJSONDelta:
		return "input_json_delta"
	case SignatureDelta:
		return "signature_delta"
	default:
		return fmt.Sprintf("%T", d)
	}
}
