package gemini

import "github.com/casualjim/llmux/provider"

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// New returns a provider speaking the Gemini generateContent protocol.
func New(options ...provider.Option) (*provider.Client, error) {
	return provider.New(Translator{}, append([]provider.Option{provider.WithModel(DefaultModel)}, options...)...)
}

// Flash returns a provider bound to gemini-2.5-flash.
func Flash(options ...provider.Option) (*provider.Client, error) {
	return Model("gemini-2.5-flash", options...)
}

// Pro returns a provider bound to gemini-2.5-pro.
func Pro(options ...provider.Option) (*provider.Client, error) {
	return Model("gemini-2.5-pro", options...)
}

// Model returns a provider bound to the named model.
func Model(name string, options ...provider.Option) (*provider.Client, error) {
	return New(append(options, provider.WithModel(name))...)
}
