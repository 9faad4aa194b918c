package openai

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/provider"
)

func mustWire(t *testing.T, req provider.Request) gjson.Result {
	t.Helper()
	data, err := Translator{}.ToWire(req)
	require.NoError(t, err)
	require.True(t, gjson.ValidBytes(data))
	return gjson.ParseBytes(data)
}

func TestToWire_PlainQuestion(t *testing.T) {
	wire := mustWire(t, provider.Request{
		Model:     "gpt-4o-mini",
		MaxTokens: 4096,
		Messages:  []messages.Message{messages.UserText("2+2?")},
	})

	msgs := wire.Get("messages").Array()
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].Get("role").String())
	assert.Equal(t, "2+2?", msgs[0].Get("content").String())
	assert.False(t, wire.Get("tools").Exists())
	assert.False(t, wire.Get("tool_choice").Exists())
	assert.Equal(t, int64(4096), wire.Get("max_tokens").Int())
	assert.False(t, wire.Get("stream").Exists())
}

func TestFromWire_PlainAnswer(t *testing.T) {
	resp, err := Translator{}.FromWire([]byte(`{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "4"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 9, "completion_tokens": 1, "total_tokens": 10}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []messages.ContentBlock{messages.Text{Text: "4"}}, resp.Content)
	assert.Equal(t, messages.Stop(messages.EndTurn), resp.StopReason)
	assert.Equal(t, messages.Usage{InputTokens: 9, OutputTokens: 1}, resp.Usage)
	assert.Equal(t, "chatcmpl-1", resp.ID)
}

func TestToWire_SystemAndToolOrdering(t *testing.T) {
	wire := mustWire(t, provider.Request{
		Model:  "gpt-4o",
		System: messages.System("be terse"),
		Messages: []messages.Message{
			messages.UserText("search x"),
			{Role: messages.Assistant, Content: []messages.ContentBlock{
				messages.ToolUse{ID: "t1", Name: "search", Input: json.RawMessage(`{"q":"x"}`)},
			}},
			{Role: messages.User, Content: []messages.ContentBlock{
				messages.Text{Text: "before"},
				messages.ToolResult{ToolUseID: "t1", Content: "ok"},
				messages.Text{Text: "after"},
			}},
		},
	})

	msgs := wire.Get("messages").Array()
	require.Len(t, msgs, 6)
	assert.Equal(t, "system", msgs[0].Get("role").String())
	assert.Equal(t, "be terse", msgs[0].Get("content").String())

	assert.Equal(t, "assistant", msgs[2].Get("role").String())
	assert.Equal(t, "t1", msgs[2].Get("tool_calls.0.id").String())
	assert.Equal(t, "search", msgs[2].Get("tool_calls.0.function.name").String())
	assert.JSONEq(t, `{"q":"x"}`, msgs[2].Get("tool_calls.0.function.arguments").String())

	assert.Equal(t, "before", msgs[3].Get("content").String())
	assert.Equal(t, "tool", msgs[4].Get("role").String())
	assert.Equal(t, "t1", msgs[4].Get("tool_call_id").String())
	assert.Equal(t, "ok", msgs[4].Get("content").String())
	assert.Equal(t, "after", msgs[5].Get("content").String())
}

func TestToWire_Degradation(t *testing.T) {
	wire := mustWire(t, provider.Request{
		Model: "gpt-4o",
		Messages: []messages.Message{
			{Role: messages.User, Content: []messages.ContentBlock{
				messages.Document{MediaType: "application/pdf", Data: "JVBERi0="},
				messages.Text{Text: "summarise", Cache: messages.Ephemeral()},
			}},
			{Role: messages.Assistant, Content: []messages.ContentBlock{
				messages.Thinking{Text: "they want a summary", Signature: "sig"},
				messages.Text{Text: "Sure."},
			}},
			{Role: messages.User, Content: []messages.ContentBlock{
				messages.Document{MediaType: "application/pdf", Data: "JVBERi0="},
			}},
		},
	})

	msgs := wire.Get("messages").Array()
	require.Len(t, msgs, 2, "a message holding only a document is dropped")
	assert.Equal(t, "summarise", msgs[0].Get("content").String())
	assert.NotContains(t, wire.Raw, "JVBERi0=")
	assert.NotContains(t, wire.Raw, "cache_control")

	parts := msgs[1].Get("content").Array()
	require.Len(t, parts, 2)
	assert.Equal(t, "[Internal reasoning: they want a summary]", parts[0].Get("text").String())
	assert.Equal(t, "Sure.", parts[1].Get("text").String())
}

func TestToWire_Image(t *testing.T) {
	wire := mustWire(t, provider.Request{
		Model: "gpt-4o",
		Messages: []messages.Message{{Role: messages.User, Content: []messages.ContentBlock{
			messages.Text{Text: "what is this"},
			messages.Image{MediaType: "image/png", Data: "aGVsbG8="},
		}}},
	})
	parts := wire.Get("messages.0.content").Array()
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[1].Get("type").String())
	assert.Equal(t, "data:image/png;base64,aGVsbG8=", parts[1].Get("image_url.url").String())
}

func TestToWire_ToolErrorResult(t *testing.T) {
	wire := mustWire(t, provider.Request{
		Model: "gpt-4o",
		Messages: []messages.Message{
			{Role: messages.Assistant, Content: []messages.ContentBlock{messages.ToolUse{ID: "t1", Name: "search"}}},
			messages.ToolResults(messages.ToolResult{ToolUseID: "t1", Content: "boom", IsError: true}),
		},
	})
	assert.Equal(t, "Error: boom", wire.Get("messages.1.content").String())
	assert.Equal(t, "{}", wire.Get("messages.0.tool_calls.0.function.arguments").String())
}

func TestToWire_RejectsUnpairedResult(t *testing.T) {
	_, err := Translator{}.ToWire(provider.Request{
		Model:    "gpt-4o",
		Messages: []messages.Message{messages.ToolResults(messages.ToolResult{ToolUseID: "ghost", Content: "x"})},
	})
	var te *provider.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, provider.UnpairedToolResult, te.Kind)
	assert.Equal(t, provider.StageTranslation, provider.StageOf(err))
}

func TestToWire_ToolChoice(t *testing.T) {
	tools := []messages.Tool{{Name: "search", Description: "web search"}}
	tests := []struct {
		name       string
		choice     messages.ToolChoice
		tools      []messages.Tool
		want       string
		noParallel bool
		wantErr    bool
	}{
		{name: "unset", choice: nil, tools: tools},
		{name: "auto", choice: messages.Auto{}, tools: tools, want: `"auto"`},
		{name: "auto serial", choice: messages.Auto{DisableParallelToolUse: true}, tools: tools, want: `"auto"`, noParallel: true},
		{name: "any", choice: messages.Any{}, tools: tools, want: `"required"`},
		{name: "none", choice: messages.None{}, tools: tools, want: `"none"`},
		{name: "specific", choice: messages.Specific{Name: "search"}, tools: tools, want: `{"type":"function","function":{"name":"search"}}`},
		{name: "none without tools", choice: messages.None{}},
		{name: "specific unknown", choice: messages.Specific{Name: "other"}, tools: tools, wantErr: true},
		{name: "any without tools", choice: messages.Any{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Translator{}.ToWire(provider.Request{
				Model:      "gpt-4o",
				Messages:   []messages.Message{messages.UserText("hi")},
				Tools:      tt.tools,
				ToolChoice: tt.choice,
			})
			if tt.wantErr {
				var te *provider.TranslationError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, provider.UnsupportedToolChoice, te.Kind)
				return
			}
			require.NoError(t, err)
			tc := gjson.GetBytes(data, "tool_choice")
			if tt.want == "" {
				assert.False(t, tc.Exists())
			} else {
				assert.JSONEq(t, tt.want, tc.Raw)
			}
			pc := gjson.GetBytes(data, "parallel_tool_calls")
			assert.Equal(t, tt.noParallel, pc.Exists() && !pc.Bool())
		})
	}
}

func TestToWire_Tools(t *testing.T) {
	type searchArgs struct {
		Query string `json:"q"`
	}
	wire := mustWire(t, provider.Request{
		Model:    "gpt-4o",
		Messages: []messages.Message{messages.UserText("hi")},
		Tools:    []messages.Tool{messages.ToolFor[searchArgs]("search", "web search")},
	})
	assert.Equal(t, "function", wire.Get("tools.0.type").String())
	assert.Equal(t, "search", wire.Get("tools.0.function.name").String())
	assert.Equal(t, "web search", wire.Get("tools.0.function.description").String())
	assert.Equal(t, "string", wire.Get("tools.0.function.parameters.properties.q.type").String())
	assert.Equal(t, "q", wire.Get("tools.0.function.parameters.required.0").String())
}

func TestToWire_ReasoningModels(t *testing.T) {
	for _, model := range []string{"o1", "o1-mini", "o3-mini", "o4-mini", "gpt-5", "gpt-5-nano", "gpt-5.1", "gpt-5.2-codex"} {
		wire := mustWire(t, provider.Request{Model: model, MaxTokens: 100, Messages: []messages.Message{messages.UserText("hi")}})
		assert.Equal(t, int64(100), wire.Get("max_completion_tokens").Int(), model)
		assert.False(t, wire.Get("max_tokens").Exists(), model)
	}
	wire := mustWire(t, provider.Request{Model: "gpt-4o", MaxTokens: 100, Messages: []messages.Message{messages.UserText("hi")}})
	assert.Equal(t, int64(100), wire.Get("max_tokens").Int())
	assert.False(t, IsReasoningModel("o10"))
	assert.False(t, IsReasoningModel("gpt-50"))
}

func TestToWire_Stream(t *testing.T) {
	wire := mustWire(t, provider.Request{Model: "gpt-4o", Stream: true, Messages: []messages.Message{messages.UserText("hi")}})
	assert.True(t, wire.Get("stream").Bool())
	assert.True(t, wire.Get("stream_options.include_usage").Bool())
}

func TestRoundTrip(t *testing.T) {
	history := []messages.Message{
		messages.UserText("search x"),
		{Role: messages.Assistant, Content: []messages.ContentBlock{
			messages.Text{Text: "let me look"},
			messages.ToolUse{ID: "t1", Name: "search", Input: json.RawMessage(`{"q":"x"}`)},
			messages.ToolUse{ID: "t2", Name: "search", Input: json.RawMessage(`{"q":"y"}`)},
		}},
		messages.ToolResults(
			messages.ToolResult{ToolUseID: "t1", Content: "ok"},
			messages.ToolResult{ToolUseID: "t2", Content: "bad", IsError: true},
		),
		messages.AssistantText("done"),
	}
	system := messages.System("be terse")
	tools := []messages.Tool{{Name: "search"}}

	tr := Translator{}
	data, err := tr.ToWire(provider.Request{Model: "gpt-4o", MaxTokens: 10, System: system, Messages: history, Tools: tools, ToolChoice: messages.Any{}})
	require.NoError(t, err)

	req, err := tr.DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.Equal(t, int64(10), req.MaxTokens)
	assert.Equal(t, system.String(), req.System.String())
	assert.Equal(t, messages.Any{}, req.ToolChoice)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "search", req.Tools[0].Name)

	want, err := json.Marshal(history)
	require.NoError(t, err)
	got, err := json.Marshal(req.Messages)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}

func TestFromWire_ToolCalls(t *testing.T) {
	resp, err := Translator{}.FromWire([]byte(`{
		"id": "chatcmpl-2",
		"model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {"role": "assistant", "content": null, "tool_calls": [
			{"id": "call_1", "type": "function", "function": {"name": "search", "arguments": "{\"q\":\"x\"}"}},
			{"id": "call_2", "type": "function", "function": {"name": "search", "arguments": "{\"q\":"}}
		]}}]
	}`))
	var me *provider.MalformedToolInputError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "call_2", me.ToolUseID)
	assert.Equal(t, provider.StageReconstruction, provider.StageOf(err))

	require.Len(t, resp.Content, 1)
	tu := resp.Content[0].(messages.ToolUse)
	assert.Equal(t, "call_1", tu.ID)
	assert.JSONEq(t, `{"q":"x"}`, string(tu.Input))
	assert.Equal(t, messages.Stop(messages.ToolUseStop), resp.StopReason)
}

func TestStopReason(t *testing.T) {
	assert.Equal(t, messages.Stop(messages.EndTurn), StopReason("stop"))
	assert.Equal(t, messages.Stop(messages.MaxTokens), StopReason("length"))
	assert.Equal(t, messages.Stop(messages.ToolUseStop), StopReason("tool_calls"))
	assert.Equal(t, messages.Stop(messages.ToolUseStop), StopReason("function_call"))
	assert.Equal(t, messages.Stop(messages.Refusal), StopReason("content_filter"))
	assert.Equal(t, messages.Other("mystery"), StopReason("mystery"))
}

func TestFromWire_Invalid(t *testing.T) {
	_, err := Translator{}.FromWire([]byte(`{"choices": []}`))
	assert.Equal(t, provider.StageTranslation, provider.StageOf(err))
	_, err = Translator{}.FromWire([]byte(`not json`))
	assert.Error(t, err)
}
