package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/provider"
)

func geminiServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T, url string) *provider.Client {
	t.Helper()
	client, err := New(provider.WithAPIKey("test-key"), provider.WithBaseURL(url))
	require.NoError(t, err)
	return client
}

func TestStream(t *testing.T) {
	server := geminiServer(t,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Let me ","thought":true}]}}],"responseId":"r1","modelVersion":"gemini-2.5-flash"}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"check","thought":true,"thoughtSignature":"sig"}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Calling "}]}}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"now."},{"functionCall":{"id":"fc1","name":"weather","args":{"city":"Paris"}}}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":4}}`,
	)
	client := newClient(t, server.URL)

	var kinds []messages.BlockKind
	var resp messages.Response
	for ev, err := range client.Stream(context.Background(), provider.Params{Messages: []messages.Message{messages.UserText("weather?")}}) {
		require.NoError(t, err)
		switch e := ev.(type) {
		case provider.MessageStart:
			resp.ID = e.ID
		case provider.ContentBlockStart:
			kinds = append(kinds, e.Kind)
		case provider.ContentBlockStop:
			resp.Content = append(resp.Content, e.Block)
		case provider.MessageDelta:
			resp.StopReason = *e.StopReason
		case provider.Usage:
			resp.Usage = e.Usage
		}
	}

	assert.Equal(t, "r1", resp.ID)
	assert.Equal(t, []messages.BlockKind{messages.KindThinking, messages.KindText, messages.KindToolUse}, kinds)
	require.Len(t, resp.Content, 3)
	assert.Equal(t, messages.Thinking{Text: "Let me check", Signature: "sig"}, resp.Content[0])
	assert.Equal(t, messages.Text{Text: "Calling now."}, resp.Content[1])
	call := resp.Content[2].(messages.ToolUse)
	assert.Equal(t, "fc1", call.ID)
	assert.JSONEq(t, `{"city":"Paris"}`, string(call.Input))
	assert.Equal(t, messages.Stop(messages.ToolUseStop), resp.StopReason)
	assert.Equal(t, messages.Usage{InputTokens: 9, OutputTokens: 4}, resp.Usage)
}

func TestStream_Truncated(t *testing.T) {
	server := geminiServer(t, `{"candidates":[{"content":{"parts":[{"text":"partial"}]}}]}`)
	client := newClient(t, server.URL)

	_, err := provider.Collect(client.Stream(context.Background(), provider.Params{Messages: []messages.Message{messages.UserText("hi")}}))
	var pe *provider.ProtocolViolationError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provider.StageReconstruction, provider.StageOf(err))
}

func TestStream_ErrorChunk(t *testing.T) {
	server := geminiServer(t, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`)
	client := newClient(t, server.URL)

	_, err := provider.Collect(client.Stream(context.Background(), provider.Params{Messages: []messages.Message{messages.UserText("hi")}}))
	var te *provider.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 503, te.StatusCode)
	assert.True(t, te.Temporary())
}

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"4"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":1}}`)
	}))
	t.Cleanup(server.Close)

	client, err := Pro(provider.WithAPIKey("test-key"), provider.WithBaseURL(server.URL))
	require.NoError(t, err)
	text, err := provider.SendText(context.Background(), client, nil, "2+2?")
	require.NoError(t, err)
	assert.Equal(t, "4", text)
}

func TestStream_LargeToolArguments(t *testing.T) {
	content := strings.Repeat("a", 100<<10)
	server := geminiServer(t,
		fmt.Sprintf(`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"id":"fc9","name":"write_file","args":{"path":"big.txt","content":%q}}}]},"finishReason":"STOP"}]}`, content),
	)

	resp, err := provider.Collect(newClient(t, server.URL).Stream(context.Background(), provider.Params{
		Messages: []messages.Message{messages.UserText("write it")},
	}))
	require.NoError(t, err)
	calls := resp.ToolUses()
	require.Len(t, calls, 1)
	assert.Equal(t, "write_file", calls[0].Name)
	assert.Equal(t, content, gjson.GetBytes(calls[0].Input, "content").String())
}

func TestStream_StallIsTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"half\"}]}}]}\n\n")
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
	assert.Equal(t, provider.StageTransport, provider.StageOf(err))
}
