package provider

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"

	"github.com/casualjim/llmux/messages"
)

// ErrNoProvider is returned by a Handle that has never been given a provider.
var ErrNoProvider = errors.New("no provider configured")

type binding struct {
	p Provider
}

// Handle gives callers the currently active Provider.
// Reads are lock free; a swap through the paired Swapper is visible to every
// Current call that starts after it, while requests that already took a
// snapshot finish on the instance they took.
type Handle struct {
	current atomic.Pointer[binding]
}

// Swapper replaces the provider behind a Handle.
type Swapper struct {
	h *Handle
}

// NewHandle returns a handle bound to p and the swapper that controls it.
func NewHandle(p Provider) (*Handle, *Swapper) {
	h := &Handle{}
	if p != nil {
		h.current.Store(&binding{p: p})
	}
	return h, &Swapper{h: h}
}

// Current returns the provider to use for one request, or nil if none is set.
func (h *Handle) Current() Provider {
	b := h.current.Load()
	if b == nil {
		return nil
	}
	return b.p
}

// ProviderName reports the canonical tag of the current provider.
func (h *Handle) ProviderName() string {
	if p := h.Current(); p != nil {
		return p.Name()
	}
	return ""
}

// SetProvider installs p and returns the provider it replaced.
func (s *Swapper) SetProvider(p Provider) Provider {
	var next *binding
	if p != nil {
		next = &binding{p: p}
	}
	prev := s.h.current.Swap(next)
	if prev == nil {
		return nil
	}
	return prev.p
}

var _ Provider = (*Handle)(nil)

// Name implements Provider.
func (h *Handle) Name() string { return h.ProviderName() }

// Model implements Provider.
func (h *Handle) Model() string {
	if p := h.Current(); p != nil {
		return p.Model()
	}
	return ""
}

// Send implements Provider against a snapshot of the current provider.
func (h *Handle) Send(ctx context.Context, params Params) (messages.Response, error) {
	p := h.Current()
	if p == nil {
		return messages.Response{}, ErrNoProvider
	}
	return p.Send(ctx, params)
}

// SendWithTools implements Provider against a snapshot of the current provider.
func (h *Handle) SendWithTools(ctx context.Context, params Params) (messages.Response, error) {
	p := h.Current()
	if p == nil {
		return messages.Response{}, ErrNoProvider
	}
	return p.SendWithTools(ctx, params)
}

// Stream implements Provider. The snapshot is taken when Stream is called,
// not when iteration begins.
func (h *Handle) Stream(ctx context.Context, params Params) iter.Seq2[StreamEvent, error] {
	p := h.Current()
	if p == nil {
		return func(yield func(StreamEvent, error) bool) {
			yield(nil, ErrNoProvider)
		}
	}
	return p.Stream(ctx, params)
}
