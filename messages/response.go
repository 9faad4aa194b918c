package messages

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// StopKind enumerates the canonical reasons a completion ended.
type StopKind string

const (
	EndTurn      StopKind = "end_turn"
	ToolUseStop  StopKind = "tool_use"
	MaxTokens    StopKind = "max_tokens"
	StopSequence StopKind = "stop_sequence"
	ErrorStop    StopKind = "error"
	// Refusal marks output withheld by the backend content policy.
	Refusal      StopKind = "refusal"
	OtherStop    StopKind = "other"
)

// StopReason is the canonical stop reason. Raw is only set for OtherStop and
// holds the backend value that had no canonical equivalent.
type StopReason struct {
	Kind StopKind
	Raw  string
}

// Stop returns a stop reason of the given kind.
func Stop(kind StopKind) StopReason {
	return StopReason{Kind: kind}
}

// Other returns the catch-all stop reason for an unmapped backend value.
func Other(raw string) StopReason {
	return StopReason{Kind: OtherStop, Raw: raw}
}

func (s StopReason) String() string {
	if s.Kind == OtherStop {
		return fmt.Sprintf("other(%s)", s.Raw)
	}
	return string(s.Kind)
}

// Usage reports token accounting for one completion.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitempty"`
}

// Merge folds other into u. Non-zero counts in other replace those in u,
// since backends report cumulative totals.
func (u Usage) Merge(other Usage) Usage {
	if other.InputTokens != 0 {
		u.InputTokens = other.InputTokens
	}
	if other.OutputTokens != 0 {
		u.OutputTokens = other.OutputTokens
	}
	if other.CacheCreationInputTokens != 0 {
		u.CacheCreationInputTokens = other.CacheCreationInputTokens
	}
	if other.CacheReadInputTokens != 0 {
		u.CacheReadInputTokens = other.CacheReadInputTokens
	}
	return u
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Response is the result of one completion.
type Response struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// Text concatenates the text blocks of the response.
func (r Response) Text() string {
	return JoinText(r.Content)
}

// ToolUses returns the tool use blocks of the response in order.
func (r Response) ToolUses() []ToolUse {
	return r.Message().ToolUses()
}

// Message returns the response as an assistant message suitable for appending to history.
func (r Response) Message() Message {
	return Message{Role: Assistant, Content: r.Content}
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	data := []byte(`{}`)
	var err error
	if r.ID != "" {
		if data, err = sjson.SetBytes(data, "id", r.ID); err != nil {
			return nil, err
		}
	}
	if r.Model != "" {
		if data, err = sjson.SetBytes(data, "model", r.Model); err != nil {
			return nil, err
		}
	}
	content := r.Content
	if content == nil {
		content = []ContentBlock{}
	}
	blocks, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	if data, err = sjson.SetRawBytes(data, "content", blocks); err != nil {
		return nil, err
	}
	if data, err = sjson.SetBytes(data, "stop_reason.kind", string(r.StopReason.Kind)); err != nil {
		return nil, err
	}
	if r.StopReason.Raw != "" {
		if data, err = sjson.SetBytes(data, "stop_reason.raw", r.StopReason.Raw); err != nil {
			return nil, err
		}
	}
	usage, err := json.Marshal(r.Usage)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(data, "usage", usage)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	v := gjson.ParseBytes(data)
	r.ID = v.Get("id").String()
	r.Model = v.Get("model").String()
	var blocks Blocks
	if content := v.Get("content"); content.Exists() {
		if err := blocks.UnmarshalJSON([]byte(content.Raw)); err != nil {
			return err
		}
	}
	r.Content = blocks
	r.StopReason = StopReason{Kind: StopKind(v.Get("stop_reason.kind").String()), Raw: v.Get("stop_reason.raw").String()}
	r.Usage = Usage{}
	if usage := v.Get("usage"); usage.Exists() {
		if err := json.Unmarshal([]byte(usage.Raw), &r.Usage); err != nil {
			return fmt.Errorf("invalid usage: %w", err)
		}
	}
	return nil
}
