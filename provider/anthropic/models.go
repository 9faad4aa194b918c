package anthropic

import "github.com/casualjim/llmux/provider"

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

// New returns a provider speaking the Anthropic messages protocol.
func New(options ...provider.Option) (*provider.Client, error) {
	return provider.New(Translator{}, append([]provider.Option{provider.WithModel(DefaultModel)}, options...)...)
}

// Model returns a provider bound to the named model.
func Model(name string, options ...provider.Option) (*provider.Client, error) {
	return New(append(options, provider.WithModel(name))...)
}
