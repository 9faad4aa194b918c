package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/slogx"
	"github.com/casualjim/llmux/pkg/uuidx"
	"github.com/casualjim/llmux/telemetry"
)

// DefaultMaxTokens is used when no max token count is configured.
const DefaultMaxTokens int64 = 4096

const maxErrorBody = 1 << 20

// ErrStreamConsumed is yielded when a stream sequence is iterated a second time.
var ErrStreamConsumed = errors.New("stream already consumed")

// Config holds everything a Client binds.
type Config struct {
	Credentials Credentials
	Model       string
	BaseURL     string
	MaxTokens   int64
	HTTPClient  *http.Client
	Transport   Transport
	Telemetry   telemetry.Sink
	Logger      *slog.Logger
}

// Option configures a Client.
type Option = opts.Option[Config]

var (
	// WithModel sets the model identifier.
	WithModel = opts.ForName[Config, string]("Model")
	// WithBaseURL overrides the backend base URL, for proxies and compatible deployments.
	WithBaseURL = opts.ForName[Config, string]("BaseURL")
	// WithMaxTokens sets the default maximum output tokens.
	WithMaxTokens = opts.ForName[Config, int64]("MaxTokens")
	// WithHTTPClient sets the HTTP client used for every request.
	WithHTTPClient = opts.ForName[Config, *http.Client]("HTTPClient")
)

// WithTransport replaces the transport chosen for the backend.
func WithTransport(t Transport) Option {
	return opts.Type[Config](func(c *Config) error {
		c.Transport = t
		return nil
	})
}

// WithCredentials sets the credential source.
func WithCredentials(creds Credentials) Option {
	return opts.Type[Config](func(c *Config) error {
		c.Credentials = creds
		return nil
	})
}

// WithAPIKey sets a static credential.
func WithAPIKey(key string) Option {
	return WithCredentials(StaticKey(key))
}

// WithTelemetry sets the telemetry sink.
func WithTelemetry(sink telemetry.Sink) Option {
	return opts.Type[Config](func(c *Config) error {
		c.Telemetry = sink
		return nil
	})
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return opts.Type[Config](func(c *Config) error {
		c.Logger = logger
		return nil
	})
}

// Client is a Provider speaking one backend protocol over HTTP.
// It holds no per request state and is safe for concurrent use.
type Client struct {
	tr  Translator
	cfg Config
}

var _ Provider = (*Client)(nil)

// New binds translator to the configured transport and credentials.
// A missing model or static credential is reported here rather than per request.
func New(translator Translator, options ...Option) (*Client, error) {
	if translator == nil {
		return nil, errors.New("provider: translator is required")
	}
	var cfg Config
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("%s: %w", translator.Name(), ErrMissingCredential)
	}
	if key, ok := cfg.Credentials.(StaticKey); ok && strings.TrimSpace(string(key)) == "" {
		return nil, fmt.Errorf("%s: %w", translator.Name(), ErrMissingCredential)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("%s: model is required", translator.Name())
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = translator.DefaultBaseURL()
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Transport == nil {
		if tf, ok := translator.(TransportFactory); ok {
			cfg.Transport = tf.NewTransport(cfg)
		} else {
			cfg.Transport = HTTPTransport{Backend: translator.Name(), Client: cfg.HTTPClient}
		}
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With(slogx.Provider(translator.Name()))
	return &Client{tr: translator, cfg: cfg}, nil
}

// Name implements Provider.
func (c *Client) Name() string { return c.tr.Name() }

// Model implements Provider.
func (c *Client) Model() string { return c.cfg.Model }

// BaseURL reports the resolved base URL.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// MaxTokens reports the default maximum output tokens.
func (c *Client) MaxTokens() int64 { return c.cfg.MaxTokens }

// Translator returns the bound translator.
func (c *Client) Translator() Translator { return c.tr }

// Variant returns a client for another model sharing transport and credentials.
// A non positive maxTokens keeps the current default.
func (c *Client) Variant(model string, maxTokens int64) *Client {
	cfg := c.cfg
	if model != "" {
		cfg.Model = model
	}
	if maxTokens > 0 {
		cfg.MaxTokens = maxTokens
	}
	return &Client{tr: c.tr, cfg: cfg}
}

// Send implements Provider. Tools and tool choice in params are ignored.
func (c *Client) Send(ctx context.Context, params Params) (messages.Response, error) {
	params.Tools = nil
	params.ToolChoice = nil
	return c.send(ctx, params)
}

// SendWithTools implements Provider.
func (c *Client) SendWithTools(ctx context.Context, params Params) (messages.Response, error) {
	return c.send(ctx, params)
}

func (c *Client) request(params Params, stream bool) Request {
	maxTokens := c.cfg.MaxTokens
	if params.MaxTokens > 0 {
		maxTokens = params.MaxTokens
	}
	return Request{
		Model:      c.cfg.Model,
		MaxTokens:  maxTokens,
		Messages:   params.Messages,
		System:     params.System,
		Tools:      params.Tools,
		ToolChoice: params.ToolChoice,
		Thinking:   params.Thinking,
		Stream:     stream,
	}
}

func (c *Client) send(ctx context.Context, params Params) (messages.Response, error) {
	rec := c.begin(ctx, telemetry.OpSend, params.SessionID)

	resp, err := c.roundTrip(ctx, c.request(params, false))
	if err != nil {
		rec.fail(ctx, err)
		return messages.Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = NewTransportError(c.Name(), err)
		rec.fail(ctx, err)
		return messages.Response{}, err
	}

	out, err := c.tr.FromWire(body)
	if err != nil {
		rec.fail(ctx, err)
		return out, err
	}
	rec.complete(ctx, out.StopReason, out.Usage)
	return out, nil
}

// roundTrip translates, authorizes and issues req, returning a response with a 2xx status.
func (c *Client) roundTrip(ctx context.Context, req Request) (*http.Response, error) {
	body, err := c.tr.ToWire(req)
	if err != nil {
		return nil, err
	}
	key, err := fetchCredential(ctx, c.Name(), c.cfg.Credentials)
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	if req.Stream {
		header.Set("Accept", "text/event-stream")
	} else {
		header.Set("Accept", "application/json")
	}
	c.tr.Authorize(header, key)

	c.cfg.Logger.DebugContext(ctx, "sending request",
		slogx.Model(c.cfg.Model),
		slog.Bool("stream", req.Stream),
		slog.Int("messages", len(req.Messages)),
		slog.Int("tools", len(req.Tools)),
	)

	resp, err := c.cfg.Transport.Do(ctx, Call{
		URL:    c.tr.Endpoint(c.cfg.BaseURL, c.cfg.Model, req.Stream),
		Header: header,
		Body:   body,
		Stream: req.Stream,
	})
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			c.cfg.Logger.DebugContext(ctx, "backend rejected request", slog.Int("status", te.StatusCode), slogx.ByteString("body", te.Body))
		}
		return nil, err
	}
	return resp, nil
}

// Stream implements Provider.
func (c *Client) Stream(ctx context.Context, params Params) iter.Seq2[StreamEvent, error] {
	var consumed atomic.Bool
	return func(yield func(StreamEvent, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(nil, ErrStreamConsumed)
			return
		}
		c.stream(ctx, params, yield)
	}
}

func (c *Client) stream(ctx context.Context, params Params, yield func(StreamEvent, error) bool) {
	rec := c.begin(ctx, telemetry.OpStream, params.SessionID)

	var (
		stop  messages.StopReason
		usage messages.Usage
	)
	fail := func(err error) {
		rec.fail(ctx, err)
		yield(nil, err)
	}

	resp, err := c.roundTrip(ctx, c.request(params, true))
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	dec := newEventDecoder(resp.Body, MaxFrameSize)
	defer dec.Close()

	parser := c.tr.NewFragmentParser()
	recon := NewReconstructor(c.Name())

	// deliver pushes parsed events through the reconstructor. It reports false
	// when iteration must end, either because the consumer stopped or an error was yielded.
	deliver := func(events []StreamEvent) bool {
		out, err := recon.PushAll(events)
		for _, ev := range out {
			switch e := ev.(type) {
			case MessageDelta:
				if e.StopReason != nil {
					stop = *e.StopReason
				}
			case Usage:
				usage = e.Usage
			}
			if !yield(ev, nil) {
				rec.fail(ctx, context.Canceled)
				return false
			}
		}
		if err != nil {
			fail(err)
			return false
		}
		return true
	}

	for dec.Next() {
		if err := ctx.Err(); err != nil {
			fail(NewTransportError(c.Name(), err))
			return
		}
		ev := dec.Event()
		data := bytes.TrimSpace(ev.Data)
		if len(data) == 0 && ev.Type == "" {
			continue
		}
		events, done, err := parser.Parse(ev.Type, data)
		if err != nil {
			fail(err)
			return
		}
		if !deliver(events) {
			return
		}
		if done || recon.Done() {
			break
		}
	}
	if err := dec.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		fail(NewTransportError(c.Name(), err))
		return
	}
	if err := ctx.Err(); err != nil {
		fail(NewTransportError(c.Name(), err))
		return
	}

	if !recon.Done() {
		events, err := parser.Finish()
		if err != nil {
			fail(err)
			return
		}
		if !deliver(events) {
			return
		}
	}
	if err := recon.Finish(); err != nil {
		fail(err)
		return
	}
	rec.complete(ctx, stop, usage)
}

type requestRecord struct {
	c     *Client
	event telemetry.Event
	start time.Time
}

func (c *Client) begin(ctx context.Context, op telemetry.Operation, sessionID string) *requestRecord {
	now := time.Now()
	r := &requestRecord{
		c:     c,
		start: now,
		event: telemetry.Event{
			RequestID: uuidx.NewString(),
			SessionID: sessionID,
			Provider:  c.Name(),
			Model:     c.cfg.Model,
			Operation: op,
			Status:    telemetry.Started,
			Timestamp: strfmt.DateTime(now),
		},
	}
	c.cfg.Telemetry.Emit(ctx, r.event)
	return r
}

func (r *requestRecord) complete(ctx context.Context, stop messages.StopReason, usage messages.Usage) {
	e := r.event
	e.Status = telemetry.Completed
	e.StopReason = stop.String()
	e.Usage = usage
	e.Duration = time.Since(r.start)
	e.Timestamp = strfmt.DateTime(time.Now())
	r.c.cfg.Telemetry.Emit(ctx, e)
	r.c.cfg.Logger.DebugContext(ctx, "request completed", slogx.Stringer("stop_reason", stop), slog.Duration("duration", e.Duration))
}

func (r *requestRecord) fail(ctx context.Context, err error) {
	e := r.event
	e.Status = telemetry.Failed
	e.Stage = string(StageOf(err))
	e.Error = err.Error()
	e.Duration = time.Since(r.start)
	e.Timestamp = strfmt.DateTime(time.Now())
	r.c.cfg.Telemetry.Emit(ctx, e)
	r.c.cfg.Logger.DebugContext(ctx, "request failed", slogx.Error(err), slog.String("stage", e.Stage))
}
