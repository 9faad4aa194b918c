package openai

import (
	"github.com/openai/openai-go"

	"github.com/casualjim/llmux/provider"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// New returns a provider speaking the OpenAI chat completions protocol.
func New(options ...provider.Option) (*provider.Client, error) {
	return provider.New(Translator{}, append([]provider.Option{provider.WithModel(DefaultModel)}, options...)...)
}

// GPT4oMini returns a provider bound to gpt-4o-mini.
func GPT4oMini(options ...provider.Option) (*provider.Client, error) {
	return Model(openai.ChatModelGPT4oMini, options...)
}

// GPT4o returns a provider bound to the latest gpt-4o.
func GPT4o(options ...provider.Option) (*provider.Client, error) {
	return Model(openai.ChatModelChatgpt4oLatest, options...)
}

// O1Mini returns a provider bound to o1-mini.
func O1Mini(options ...provider.Option) (*provider.Client, error) {
	return Model(openai.ChatModelO1Mini, options...)
}

// O1 returns a provider bound to o1.
func O1(options ...provider.Option) (*provider.Client, error) {
	return Model(openai.ChatModelO1, options...)
}

// Model returns a provider bound to the named model.
func Model(name string, options ...provider.Option) (*provider.Client, error) {
	return New(append(options, provider.WithModel(name))...)
}
