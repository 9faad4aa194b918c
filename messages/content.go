package messages

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// BlockKind discriminates the content block variants.
type BlockKind string

const (
	KindText       BlockKind = "text"
	KindToolUse    BlockKind = "tool_use"
	KindToolResult BlockKind = "tool_result"
	KindThinking   BlockKind = "thinking"
	KindImage      BlockKind = "image"
	KindDocument   BlockKind = "document"
)

func (k BlockKind) String() string { return string(k) }

// ContentBlock is one unit of message content.
// The set of implementations is closed.
type ContentBlock interface {
	Kind() BlockKind
	contentBlock()
}

// CacheControl is a prompt caching directive attached to a block.
// Backends without prompt caching ignore it.
type CacheControl struct {
	Type string `json:"type"`
}

// Ephemeral returns the short-lived cache directive.
func Ephemeral() *CacheControl {
	return &CacheControl{Type: "ephemeral"}
}

// Text is plain text content.
type Text struct {
	Text  string
	Cache *CacheControl
}

func (Text) Kind() BlockKind { return KindText }
func (Text) contentBlock()   {}

// ToolUse is a request from the model to invoke a tool.
// Input always holds a JSON object.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
	Cache *CacheControl
}

func (ToolUse) Kind() BlockKind { return KindToolUse }
func (ToolUse) contentBlock()   {}

// ToolResult carries the outcome of a tool invocation back to the model.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
	Cache     *CacheControl
}

func (ToolResult) Kind() BlockKind { return KindToolResult }
func (ToolResult) contentBlock()   {}

// Thinking is model reasoning. The signature is opaque and backend issued.
type Thinking struct {
	Text      string
	Signature string
}

func (Thinking) Kind() BlockKind { return KindThinking }
func (Thinking) contentBlock()   {}

// Image is inline image content. Data is base64 encoded.
type Image struct {
	MediaType string
	Data      string
	Cache     *CacheControl
}

func (Image) Kind() BlockKind { return KindImage }
func (Image) contentBlock()   {}

// Document is an inline document such as a PDF. Data is base64 encoded.
type Document struct {
	MediaType string
	Data      string
	Title     string
	Cache     *CacheControl
}

func (Document) Kind() BlockKind { return KindDocument }
func (Document) contentBlock()   {}

func withCache(data []byte, c *CacheControl) ([]byte, error) {
	if c == nil {
		return data, nil
	}
	return sjson.SetBytes(data, "cache_control.type", c.Type)
}

func cacheFrom(v gjson.Result) *CacheControl {
	cc := v.Get("cache_control")
	if !cc.Exists() {
		return nil
	}
	return &CacheControl{Type: cc.Get("type").String()}
}

// MarshalJSON implements json.Marshaler.
func (t Text) MarshalJSON() ([]byte, error) {
	data, err := sjson.SetBytes([]byte(`{"type":"text"}`), "text", t.Text)
	if err != nil {
		return nil, err
	}
	return withCache(data, t.Cache)
}

// MarshalJSON implements json.Marshaler.
func (t ToolUse) MarshalJSON() ([]byte, error) {
	data := []byte(`{"type":"tool_use"}`)
	var err error
	if data, err = sjson.SetBytes(data, "id", t.ID); err != nil {
		return nil, err
	}
	if data, err = sjson.SetBytes(data, "name", t.Name); err != nil {
		return nil, err
	}
	input := t.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if data, err = sjson.SetRawBytes(data, "input", input); err != nil {
		return nil, err
	}
	return withCache(data, t.Cache)
}

// MarshalJSON implements json.Marshaler.
func (t ToolResult) MarshalJSON() ([]byte, error) {
	data := []byte(`{"type":"tool_result"}`)
	var err error
	if data, err = sjson.SetBytes(data, "tool_use_id", t.ToolUseID); err != nil {
		return nil, err
	}
	if data, err = sjson.SetBytes(data, "content", t.Content); err != nil {
		return nil, err
	}
	if t.IsError {
		if data, err = sjson.SetBytes(data, "is_error", true); err != nil {
			return nil, err
		}
	}
	return withCache(data, t.Cache)
}

// MarshalJSON implements json.Marshaler.
func (t Thinking) MarshalJSON() ([]byte, error) {
	data, err := sjson.SetBytes([]byte(`{"type":"thinking"}`), "thinking", t.Text)
	if err != nil {
		return nil, err
	}
	if t.Signature != "" {
		return sjson.SetBytes(data, "signature", t.Signature)
	}
	return data, nil
}

// MarshalJSON implements json.Marshaler.
func (i Image) MarshalJSON() ([]byte, error) {
	data := []byte(`{"type":"image"}`)
	var err error
	if data, err = sjson.SetBytes(data, "media_type", i.MediaType); err != nil {
		return nil, err
	}
	if data, err = sjson.SetBytes(data, "data", i.Data); err != nil {
		return nil, err
	}
	return withCache(data, i.Cache)
}

// MarshalJSON implements json.Marshaler.
func (d Document) MarshalJSON() ([]byte, error) {
	data := []byte(`{"type":"document"}`)
	var err error
	if data, err = sjson.SetBytes(data, "media_type", d.MediaType); err != nil {
		return nil, err
	}
	if data, err = sjson.SetBytes(data, "data", d.Data); err != nil {
		return nil, err
	}
	if d.Title != "" {
		if data, err = sjson.SetBytes(data, "title", d.Title); err != nil {
			return nil, err
		}
	}
	return withCache(data, d.Cache)
}

// UnmarshalBlock decodes one content block from its JSON form.
func UnmarshalBlock(data []byte) (ContentBlock, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	v := gjson.ParseBytes(data)
	switch tpe := v.Get("type").String(); BlockKind(tpe) {
	case KindText:
		return Text{Text: v.Get("text").String(), Cache: cacheFrom(v)}, nil
	case KindToolUse:
		input := v.Get("input")
		raw := json.RawMessage(`{}`)
		if input.Exists() {
			if !input.IsObject() {
				return nil, fmt.Errorf("tool_use %q input must be an object", v.Get("id").String())
			}
			raw = json.RawMessage(input.Raw)
		}
		return ToolUse{
			ID:    v.Get("id").String(),
			Name:  v.Get("name").String(),
			Input: raw,
			Cache: cacheFrom(v),
		}, nil
	case KindToolResult:
		return ToolResult{
			ToolUseID: v.Get("tool_use_id").String(),
			Content:   v.Get("content").String(),
			IsError:   v.Get("is_error").Bool(),
			Cache:     cacheFrom(v),
		}, nil
	case KindThinking:
		return Thinking{Text: v.Get("thinking").String(), Signature: v.Get("signature").String()}, nil
	case KindImage:
		return Image{MediaType: v.Get("media_type").String(), Data: v.Get("data").String(), Cache: cacheFrom(v)}, nil
	case KindDocument:
		return Document{
			MediaType: v.Get("media_type").String(),
			Data:      v.Get("data").String(),
			Title:     v.Get("title").String(),
			Cache:     cacheFrom(v),
		}, nil
	default:
		return nil, fmt.Errorf("unknown content block type %q", tpe)
	}
}

// Blocks is an ordered list of content blocks with a JSON codec.
type Blocks []ContentBlock

// UnmarshalJSON implements json.Unmarshaler.
func (b *Blocks) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	arr := gjson.ParseBytes(data)
	if arr.Type == gjson.Null {
		*b = nil
		return nil
	}
	if !arr.IsArray() {
		return fmt.Errorf("content must be an array")
	}
	items := arr.Array()
	out := make(Blocks, len(items))
	for idx, item := range items {
		block, err := UnmarshalBlock([]byte(item.Raw))
		if err != nil {
			return fmt.Errorf("invalid content block at %d: %w", idx, err)
		}
		out[idx] = block
	}
	*b = out
	return nil
}
