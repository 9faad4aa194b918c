// Package backends registers the available backends by tag and builds
// providers for them from environment configuration.
package backends

import (
	"github.com/casualjim/llmux/internal/registry"
	"github.com/casualjim/llmux/provider"
	"github.com/casualjim/llmux/provider/anthropic"
	"github.com/casualjim/llmux/provider/gemini"
	"github.com/casualjim/llmux/provider/openai"
)

// Factory constructs a provider from options.
type Factory func(options ...provider.Option) (*provider.Client, error)

// Backend describes a registered backend.
type Backend struct {
	Name           string
	DefaultModel   string
	DefaultBaseURL string
	New            Factory
}

var Global = registry.New[Backend]()

func init() {
	Add(Backend{Name: openai.Name, DefaultModel: openai.DefaultModel, DefaultBaseURL: openai.DefaultBaseURL, New: openai.New})
	Add(Backend{Name: anthropic.Name, DefaultModel: anthropic.DefaultModel, DefaultBaseURL: anthropic.DefaultBaseURL, New: anthropic.New})
	Add(Backend{Name: gemini.Name, DefaultModel: gemini.DefaultModel, DefaultBaseURL: gemini.DefaultBaseURL, New: gemini.New})
}

func Add(b Backend) {
	Global.Add(b.Name, b)
}

func Get(name string) (Backend, bool) {
	return Global.Get(name)
}

func Del(name string) {
	Global.Del(name)
}

// Names lists the registered backend tags.
func Names() []string {
	return Global.Names()
}
