package provider

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// Call is one encoded request, authorized and ready to send.
type Call struct {
	URL    string
	Header http.Header
	Body   []byte
	Stream bool
}

// Transport delivers a Call and returns a response with a 2xx status.
// Any other answer is a TransportError carrying the status and body.
type Transport interface {
	Do(ctx context.Context, call Call) (*http.Response, error)
}

// TransportFactory is implemented by translators whose backend ships an SDK
// client. New asks it for a transport when none is configured.
type TransportFactory interface {
	NewTransport(cfg Config) Transport
}

// HTTPTransport posts calls with a plain http.Client.
type HTTPTransport struct {
	Backend string
	Client  *http.Client
}

func (t HTTPTransport) Do(ctx context.Context, call Call) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, call.URL, bytes.NewReader(call.Body))
	if err != nil {
		return nil, NewTransportError(t.Backend, err)
	}
	for k, v := range call.Header {
		req.Header[k] = v
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewTransportError(t.Backend, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, StatusError(t.Backend, resp, nil)
	}
	return resp, nil
}

// StatusError drains and closes resp and reports it as a TransportError.
func StatusError(backend string, resp *http.Response, cause error) *TransportError {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &TransportError{Backend: backend, StatusCode: resp.StatusCode, Body: data, Err: cause}
}
