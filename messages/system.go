package messages

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SystemBlock is one segment of a structured system prompt.
type SystemBlock struct {
	Text  string
	Cache *CacheControl
}

// SystemPrompt is either plain text or a list of structured blocks.
// When Blocks is non-empty it takes precedence over Text.
type SystemPrompt struct {
	Text   string
	Blocks []SystemBlock
}

// System returns a plain text system prompt.
func System(text string) *SystemPrompt {
	return &SystemPrompt{Text: text}
}

// IsEmpty reports whether the prompt carries no text at all.
func (s *SystemPrompt) IsEmpty() bool {
	return s == nil || strings.TrimSpace(s.String()) == ""
}

// Structured reports whether the prompt is block based.
func (s *SystemPrompt) Structured() bool {
	return s != nil && len(s.Blocks) > 0
}

// String joins the prompt into a single string, blocks separated by newlines.
func (s *SystemPrompt) String() string {
	if s == nil {
		return ""
	}
	if len(s.Blocks) == 0 {
		return s.Text
	}
	parts := make([]string, len(s.Blocks))
	for i, b := range s.Blocks {
		parts[i] = b.Text
	}
	return strings.Join(parts, "\n")
}

// MarshalJSON renders a string for plain prompts and an array of text blocks otherwise.
func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if len(s.Blocks) == 0 {
		return json.Marshal(s.Text)
	}
	data := []byte(`[]`)
	for _, b := range s.Blocks {
		block, err := Text(b).MarshalJSON()
		if err != nil {
			return nil, err
		}
		if data, err = sjson.SetRawBytes(data, "-1", block); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	v := gjson.ParseBytes(data)
	if !v.IsArray() {
		s.Text = v.String()
		s.Blocks = nil
		return nil
	}
	s.Text = ""
	s.Blocks = nil
	for _, item := range v.Array() {
		s.Blocks = append(s.Blocks, SystemBlock{Text: item.Get("text").String(), Cache: cacheFrom(item)})
	}
	return nil
}
