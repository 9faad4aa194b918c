package anthropic

import (
	"context"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/casualjim/llmux/provider"
)

// Transport posts translated bodies through the anthropic-sdk-go client.
// Retries are disabled; retry policy belongs to the caller.
type Transport struct {
	client anthropic.Client
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
	return &Transport{client: anthropic.NewClient(append(base, options...)...)}
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

	// Error statuses arrive with the body buffered, which TransportError carries.
	err := t.client.Post(ctx, call.URL, nil, nil, reqOpts...)
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return nil, provider.StatusError(Name, resp, nil)
	}
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, provider.NewTransportError(Name, err)
	}
	return resp, nil
}
