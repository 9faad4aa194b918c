package messages

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Role identifies the author of a message.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
)

func (r Role) String() string { return string(r) }

// Message is one turn of a conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// UserText returns a user message holding a single text block.
func UserText(text string) Message {
	return Message{Role: User, Content: []ContentBlock{Text{Text: text}}}
}

// AssistantText returns an assistant message holding a single text block.
func AssistantText(text string) Message {
	return Message{Role: Assistant, Content: []ContentBlock{Text{Text: text}}}
}

// ToolResults returns a user message carrying the given tool results.
func ToolResults(results ...ToolResult) Message {
	content := make([]ContentBlock, len(results))
	for i, r := range results {
		content[i] = r
	}
	return Message{Role: User, Content: content}
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	return JoinText(m.Content)
}

// ToolUses returns the tool use blocks of the message in order.
func (m Message) ToolUses() []ToolUse {
	var out []ToolUse
	for _, b := range m.Content {
		if tu, ok := b.(ToolUse); ok {
			out = append(out, tu)
		}
	}
	return out
}

// JoinText concatenates the text of every Text block in content.
func JoinText(content []ContentBlock) string {
	var sb strings.Builder
	for _, b := range content {
		if t, ok := b.(Text); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	data, err := sjson.SetBytes([]byte(`{}`), "role", string(m.Role))
	if err != nil {
		return nil, err
	}
	content := m.Content
	if content == nil {
		content = []ContentBlock{}
	}
	blocks, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal content: %w", err)
	}
	return sjson.SetRawBytes(data, "content", blocks)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}
	role := gjson.GetBytes(data, "role")
	if !role.Exists() {
		return fmt.Errorf("missing required field 'role'")
	}
	switch Role(role.String()) {
	case User, Assistant:
		m.Role = Role(role.String())
	default:
		return fmt.Errorf("invalid role %q", role.String())
	}

	var blocks Blocks
	if content := gjson.GetBytes(data, "content"); content.Exists() {
		if err := blocks.UnmarshalJSON([]byte(content.Raw)); err != nil {
			return err
		}
	}
	m.Content = blocks
	return nil
}
