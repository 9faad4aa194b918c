package messages

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_JSONRoundTrip(t *testing.T) {
	history := []Message{
		{Role: User, Content: []ContentBlock{
			Text{Text: "look at this", Cache: Ephemeral()},
			Image{MediaType: "image/png", Data: "aGVsbG8="},
			Document{MediaType: "application/pdf", Data: "JVBERi0=", Title: "report"},
		}},
		{Role: Assistant, Content: []ContentBlock{
			Thinking{Text: "the user wants weather", Signature: "sig-1"},
			Text{Text: "checking"},
			ToolUse{ID: "t1", Name: "weather", Input: json.RawMessage(`{"city":"Paris"}`)},
		}},
		ToolResults(ToolResult{ToolUseID: "t1", Content: "18C", IsError: true}),
	}

	data, err := json.Marshal(history)
	require.NoError(t, err)

	var decoded []Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 3)

	assert.Equal(t, history[0], decoded[0])
	assert.Equal(t, history[2], decoded[2])

	tu, ok := decoded[1].Content[2].(ToolUse)
	require.True(t, ok)
	assert.Equal(t, "t1", tu.ID)
	assert.JSONEq(t, `{"city":"Paris"}`, string(tu.Input))
	assert.Equal(t, Thinking{Text: "the user wants weather", Signature: "sig-1"}, decoded[1].Content[0])
}

func TestMessage_MarshalShape(t *testing.T) {
	data, err := json.Marshal(UserText("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":[{"type":"text","text":"hi"}]}`, string(data))

	data, err = json.Marshal(Message{Role: Assistant})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","content":[]}`, string(data))
}

func TestMessage_UnmarshalErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid json", input: `{"role":`},
		{name: "missing role", input: `{"content":[]}`},
		{name: "unknown role", input: `{"role":"system","content":[]}`},
		{name: "unknown block", input: `{"role":"user","content":[{"type":"audio"}]}`},
		{name: "content not array", input: `{"role":"user","content":"hi"}`},
		{name: "tool input not object", input: `{"role":"assistant","content":[{"type":"tool_use","id":"a","name":"b","input":[1]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			assert.Error(t, json.Unmarshal([]byte(tt.input), &m))
		})
	}
}

func TestMessage_Helpers(t *testing.T) {
	m := Message{Role: Assistant, Content: []ContentBlock{
		Text{Text: "a"},
		ToolUse{ID: "1", Name: "x"},
		Text{Text: "b"},
	}}
	assert.Equal(t, "ab", m.Text())
	assert.Len(t, m.ToolUses(), 1)
	assert.Equal(t, "assistant", m.Role.String())
}

func TestSystemPrompt(t *testing.T) {
	var nilPrompt *SystemPrompt
	assert.True(t, nilPrompt.IsEmpty())
	assert.Equal(t, "", nilPrompt.String())

	plain := System("be brief")
	assert.False(t, plain.Structured())
	data, err := json.Marshal(plain)
	require.NoError(t, err)
	assert.JSONEq(t, `"be brief"`, string(data))

	structured := &SystemPrompt{Blocks: []SystemBlock{{Text: "one", Cache: Ephemeral()}, {Text: "two"}}}
	assert.True(t, structured.Structured())
	assert.Equal(t, "one\ntwo", structured.String())
	data, err = json.Marshal(structured)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"text","text":"one","cache_control":{"type":"ephemeral"}},{"type":"text","text":"two"}]`, string(data))

	var decoded SystemPrompt
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *structured, decoded)
}

func TestResponse_JSONRoundTrip(t *testing.T) {
	resp := Response{
		ID:         "msg_1",
		Model:      "m",
		Content:    []ContentBlock{Text{Text: "4"}},
		StopReason: Other("weird"),
		Usage:      Usage{InputTokens: 3, OutputTokens: 1},
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, resp, decoded)
	assert.Equal(t, "4", decoded.Text())
	assert.Equal(t, "other(weird)", decoded.StopReason.String())
}

func TestUsage_Merge(t *testing.T) {
	u := Usage{InputTokens: 10}.Merge(Usage{OutputTokens: 5})
	assert.Equal(t, Usage{InputTokens: 10, OutputTokens: 5}, u)
	assert.Equal(t, int64(15), u.Total())
	u = u.Merge(Usage{OutputTokens: 7, CacheReadInputTokens: 2})
	assert.Equal(t, Usage{InputTokens: 10, OutputTokens: 7, CacheReadInputTokens: 2}, u)
}
