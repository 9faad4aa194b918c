// Command llmux is an interactive chat client over any registered backend.
// The backend can be swapped mid conversation without losing history.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/lmittmann/tint"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"

	"github.com/casualjim/llmux/pkg/slogx"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelWarn}),
	))
}

// setupLogging replaces the default handler once flags are known.
func setupLogging(format string, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	switch format {
	case "tint":
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen})))
	default:
		slog.SetDefault(slog.New(zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level})))
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := command().Run(ctx, os.Args); err != nil {
		slog.Error("llmux failed", slogx.Error(err))
		os.Exit(1)
	}
}
