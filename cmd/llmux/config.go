package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/casualjim/llmux/provider/backends"
)

// settings is the resolved command line configuration.
type settings struct {
	Provider  string
	Model     string
	System    string
	Stream    bool
	Thinking  int64
	NATSURL   string
	Verbose   bool
	LogFormat string
}

// yamlSource implements cli.ValueSource over a key of a YAML config file.
type yamlSource struct {
	data map[string]any
	key  string
}

func (y *yamlSource) Lookup() (string, bool) {
	v, ok := y.data[y.key]
	if !ok || v == nil {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

func (y *yamlSource) String() string   { return "yaml" }
func (y *yamlSource) GoString() string { return "yaml" }

// loadYAML reads the config file named by path. A missing path yields no data.
func loadYAML(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

// configPath finds the config file before flags are parsed, so the file can
// feed flag defaults.
func configPath(args []string) string {
	if v := os.Getenv("LLMUX_CONFIG"); v != "" {
		return v
	}
	for i, arg := range args {
		switch {
		case arg == "--config" || arg == "-config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-config="):
			return strings.TrimPrefix(arg, "-config=")
		}
	}
	return ""
}

func flags(configData map[string]any) []cli.Flag {
	// Precedence: flag, then environment, then config file, then default.
	src := func(key string, env ...string) cli.ValueSourceChain {
		chain := cli.ValueSourceChain{}
		for _, e := range env {
			chain.Chain = append(chain.Chain, cli.EnvVar(e))
		}
		if configData != nil {
			chain.Chain = append(chain.Chain, &yamlSource{data: configData, key: key})
		}
		return chain
	}

	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "read defaults from the named YAML file", Sources: cli.EnvVars("LLMUX_CONFIG")},
		&cli.StringFlag{Name: "provider", Aliases: []string{"p"}, Value: backends.DefaultBackend, Usage: "backend to start with (" + strings.Join(backends.Names(), ", ") + ")", Sources: src("provider", backends.SelectorEnv)},
		&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "model identifier, defaults to the backend's configured model", Sources: src("model")},
		&cli.StringFlag{Name: "system", Aliases: []string{"s"}, Value: "You are a helpful assistant.", Usage: "system prompt", Sources: src("system", "LLMUX_SYSTEM")},
		&cli.BoolFlag{Name: "stream", Value: true, Usage: "stream responses as they are generated", Sources: src("stream", "LLMUX_STREAM")},
		&cli.IntFlag{Name: "thinking", Usage: "extended thinking budget in tokens, 0 disables", Sources: src("thinking", "LLMUX_THINKING")},
		&cli.StringFlag{Name: "nats", Usage: "publish request telemetry to this NATS server", Sources: src("nats", "LLMUX_NATS_URL")},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "log request telemetry to stderr", Sources: src("verbose", "LLMUX_VERBOSE")},
		&cli.StringFlag{Name: "log-format", Value: "zerolog", Usage: "log handler, zerolog or tint", Sources: src("log-format", "LLMUX_LOG_FORMAT")},
	}
}

func newSettings(c *cli.Command) settings {
	if c.IsSet("config") {
		slog.Info("using config file", slog.String("path", c.String("config")))
	}
	return settings{
		Provider:  strings.ToLower(c.String("provider")),
		Model:     c.String("model"),
		System:    c.String("system"),
		Stream:    c.Bool("stream"),
		Thinking:  int64(c.Int("thinking")),
		NATSURL:   c.String("nats"),
		Verbose:   c.Bool("verbose"),
		LogFormat: c.String("log-format"),
	}
}

func command() *cli.Command {
	configData, err := loadYAML(configPath(os.Args))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return &cli.Command{
		Name:  "llmux",
		Usage: "chat with any configured LLM backend",
		Flags: flags(configData),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := newSettings(c)
			setupLogging(cfg.LogFormat, cfg.Verbose)
			return run(ctx, cfg)
		},
	}
}
