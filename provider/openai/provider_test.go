package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/provider"
)

func sseServer(t *testing.T, frames ...string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var lastBody atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(body)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, f := range frames {
			_, err := fmt.Fprintf(w, "data: %s\n\n", f)
			require.NoError(t, err)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server, &lastBody
}

func newClient(t *testing.T, baseURL string) *provider.Client {
	t.Helper()
	client, err := New(provider.WithAPIKey("test-key"), provider.WithBaseURL(baseURL))
	require.NoError(t, err)
	return client
}

func collectEvents(t *testing.T, seq func(func(provider.StreamEvent, error) bool)) ([]provider.StreamEvent, error) {
	t.Helper()
	var (
		events []provider.StreamEvent
		last   error
	)
	for ev, err := range seq {
		if err != nil {
			last = err
			break
		}
		events = append(events, ev)
	}
	return events, last
}

func TestStream_TextAndToolCall(t *testing.T) {
	server, body := sseServer(t,
		`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Let "}}]}`,
		`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"me check."}}]}`,
		`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"search","arguments":""}}]}}]}`,
		`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"q\":"}}]}}]}`,
		`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\"}"}}]}}]}`,
		`{"id":"c1","model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"c1","model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}}`,
		`[DONE]`,
	)
	client := newClient(t, server.URL)

	events, err := collectEvents(t, client.Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("search x")},
		Tools:    []messages.Tool{{Name: "search"}},
	}))
	require.NoError(t, err)

	stop := messages.Stop(messages.ToolUseStop)
	want := []provider.StreamEvent{
		provider.MessageStart{ID: "c1", Model: "gpt-4o-mini"},
		provider.ContentBlockStart{Index: 0, Kind: messages.KindText},
		provider.ContentBlockDelta{Index: 0, Delta: provider.TextDelta{Text: "Let "}},
		provider.ContentBlockDelta{Index: 0, Delta: provider.TextDelta{Text: "me check."}},
		provider.ContentBlockStop{Index: 0, Block: messages.Text{Text: "Let me check."}},
		provider.ContentBlockStart{Index: 1, Kind: messages.KindToolUse, ID: "call_1", Name: "search"},
		provider.ContentBlockDelta{Index: 1, Delta: provider.InputJSONDelta{PartialJSON: `{"q":`}},
		provider.ContentBlockDelta{Index: 1, Delta: provider.InputJSONDelta{PartialJSON: `"x"}`}},
		provider.ContentBlockStop{Index: 1, Block: messages.ToolUse{ID: "call_1", Name: "search", Input: []byte(`{"q":"x"}`)}},
		provider.MessageDelta{StopReason: &stop},
		provider.Usage{Usage: messages.Usage{InputTokens: 12, OutputTokens: 7}},
		provider.MessageStop{},
	}
	assert.Equal(t, want, events)

	sent := gjson.ParseBytes(body.Load().([]byte))
	assert.True(t, sent.Get("stream").Bool())
	assert.True(t, sent.Get("stream_options.include_usage").Bool())
	assert.Equal(t, "gpt-4o-mini", sent.Get("model").String())
}

func TestStream_UsageSynthesized(t *testing.T) {
	server, _ := sseServer(t,
		`{"id":"c2","choices":[{"index":0,"delta":{"content":"4"}}]}`,
		`{"id":"c2","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	)
	resp, err := provider.Collect(newClient(t, server.URL).Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("2+2?")},
	}))
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Text())
	assert.Equal(t, messages.Stop(messages.EndTurn), resp.StopReason)
	assert.Equal(t, messages.Usage{}, resp.Usage)
}

func TestStream_MalformedToolInput(t *testing.T) {
	server, _ := sseServer(t,
		`{"id":"c3","choices":[{"index":0,"delta":{"content":"ok"}}]}`,
		`{"id":"c3","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"search","arguments":"{\"q\":"}}]}}]}`,
		`{"id":"c3","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"x\""}}]}}]}`,
		`{"id":"c3","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	)
	events, err := collectEvents(t, newClient(t, server.URL).Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("go")},
	}))

	var me *provider.MalformedToolInputError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "call_9", me.ToolUseID)
	assert.Equal(t, `{"q":"x"`, me.Raw)

	require.Len(t, events, 7)
	assert.IsType(t, provider.ContentBlockDelta{}, events[len(events)-1])
	assert.Equal(t, provider.ContentBlockStop{Index: 0, Block: messages.Text{Text: "ok"}}, events[3])
}

func TestStream_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	t.Cleanup(server.Close)

	_, err := collectEvents(t, newClient(t, server.URL).Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("hi")},
	}))
	var te *provider.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	assert.Contains(t, string(te.Body), "slow down")
	assert.True(t, te.Temporary())
}

func TestStream_ErrorFrame(t *testing.T) {
	server, _ := sseServer(t,
		`{"id":"c4","choices":[{"index":0,"delta":{"content":"partial"}}]}`,
		`{"error":{"message":"server overloaded","type":"server_error"}}`,
	)
	events, err := collectEvents(t, newClient(t, server.URL).Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("hi")},
	}))
	var te *provider.TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Error(), "server overloaded")
	assert.Len(t, events, 3)
}

func TestStream_TruncatedStream(t *testing.T) {
	server, _ := sseServer(t, `{"id":"c5","choices":[{"index":0,"delta":{"content":"half"}}]}`)
	_, err := collectEvents(t, newClient(t, server.URL).Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("hi")},
	}))
	var pe *provider.ProtocolViolationError
	require.ErrorAs(t, err, &pe)
}

func TestStream_EOFAfterFinish(t *testing.T) {
	server, _ := sseServer(t,
		`{"id":"c6","choices":[{"index":0,"delta":{"content":"fine"}}]}`,
		`{"id":"c6","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	)
	resp, err := provider.Collect(newClient(t, server.URL).Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("hi")},
	}))
	require.NoError(t, err)
	assert.Equal(t, "fine", resp.Text())
}

func TestStream_ConsumerStopReleasesConnection(t *testing.T) {
	released := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i := 0; ; i++ {
			select {
			case <-r.Context().Done():
				close(released)
				return
			default:
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", fmt.Sprintf(`{"id":"c7","choices":[{"index":0,"delta":{"content":"%d "}}]}`, i))
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	t.Cleanup(server.Close)

	seen := 0
	for _, err := range newClient(t, server.URL).Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("count")},
	}) {
		require.NoError(t, err)
		seen++
		if seen == 4 {
			break
		}
	}

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not released after the consumer stopped")
	}
}

func TestStream_SinglePass(t *testing.T) {
	server, _ := sseServer(t,
		`{"id":"c8","choices":[{"index":0,"delta":{"content":"x"},"finish_reason":"stop"}]}`,
		`[DONE]`,
	)
	seq := newClient(t, server.URL).Stream(context.Background(), provider.Params{Messages: []messages.Message{messages.UserText("hi")}})
	_, err := provider.Collect(seq)
	require.NoError(t, err)
	_, err = provider.Collect(seq)
	assert.ErrorIs(t, err, provider.ErrStreamConsumed)
}

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.False(t, gjson.GetBytes(body, "tools").Exists(), "send strips tools")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c9","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"4"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`))
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL)
	resp, err := client.Send(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("2+2?")},
		Tools:    []messages.Tool{{Name: "calc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Text())
	assert.Equal(t, messages.Stop(messages.EndTurn), resp.StopReason)

	text, err := provider.SendText(context.Background(), client, nil, "2+2?")
	require.NoError(t, err)
	assert.Equal(t, "4", text)
}

func TestModels(t *testing.T) {
	client, err := GPT4oMini(provider.WithAPIKey("k"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.Model())
	assert.Equal(t, Name, client.Name())
	assert.Equal(t, DefaultBaseURL, client.BaseURL())

	client, err = Model("o3-mini", provider.WithAPIKey("k"))
	require.NoError(t, err)
	assert.Equal(t, "o3-mini", client.Model())

	_, err = New()
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
}

func TestStream_StallAfterFinishIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c7\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"done\"},\"finish_reason\":\"stop\"}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	client, err := New(provider.WithAPIKey("test-key"), provider.WithBaseURL(server.URL),
		provider.WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))
	require.NoError(t, err)

	_, err = provider.Collect(client.Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("hi")},
	}))
	var te *provider.TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Timeout)
}

func TestTransport_SDKClient(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "0", r.Header.Get("X-Stainless-Retry-Count"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"engine overloaded","type":"server_error"}}`)
	}))
	t.Cleanup(server.Close)

	client := newClient(t, server.URL+"/v1")
	_, err := client.Send(context.Background(), provider.Params{Messages: []messages.Message{messages.UserText("hi")}})

	var te *provider.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.Contains(t, string(te.Body), "engine overloaded")
	assert.True(t, te.Temporary())
	assert.Equal(t, int32(1), hits.Load(), "the sdk client must not retry")
}
