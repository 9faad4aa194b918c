package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/casualjim/llmux/provider"
)

// Transport posts translated bodies through the openai-go client, so base
// URL, HTTP client and middleware options apply the way they do for the SDK.
// Retries are disabled; retry policy belongs to the caller.
type Transport struct {
	client *openai.Client
}

var _ provider.Transport = (*Transport)(nil)

// NewTransport returns a transport for cfg. Extra SDK options are applied
// after the ones derived from cfg.
func NewTransport(cfg provider.Config, options ...option.RequestOption) *Transport {
	base := []option.RequestOption{
		option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/") + "/"),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		base = append(base, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Transport{client: openai.NewClient(append(base, options...)...)}
}

// NewTransport implements provider.TransportFactory.
func (Translator) NewTransport(cfg provider.Config) provider.Transport {
	return NewTransport(cfg)
}

func (t *Transport) Do(ctx context.Context, call provider.Call) (*http.Response, error) {
	var resp *http.Response
	reqOpts := []option.RequestOption{
		option.WithRequestBody("application/json", call.Body),
		option.WithResponseInto(&resp),
	}
	for k := range call.Header {
		reqOpts = append(reqOpts, option.WithHeader(k, call.Header.Get(k)))
	}

	err := t.client.Post(ctx, call.URL, nil, nil, reqOpts...)
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		var apiErr *openai.Error
		var cause error
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			cause = errors.New(apiErr.Message)
		}
		return nil, provider.StatusError(Name, resp, cause)
	}
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, provider.NewTransportError(Name, err)
	}
	return resp, nil
}
