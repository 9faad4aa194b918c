package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	json "github.com/goccy/go-json"
	"github.com/k0kubun/pp/v3"

	"github.com/casualjim/llmux/messages"
	"github.com/casualjim/llmux/pkg/jsonx"
	"github.com/casualjim/llmux/pkg/slogx"
	"github.com/casualjim/llmux/pkg/uuidx"
	"github.com/casualjim/llmux/provider"
	"github.com/casualjim/llmux/provider/backends"
	"github.com/casualjim/llmux/telemetry"
)

// opener builds a provider for a backend tag.
type opener func(backend string, extra ...provider.Option) (*provider.Client, error)

type session struct {
	id       string
	handle   *provider.Handle
	swapper  *provider.Swapper
	open     opener
	history  []messages.Message
	system   *messages.SystemPrompt
	stream   bool
	thinking int64
	out      io.Writer
	render   func(string) string
}

func run(ctx context.Context, cfg settings) error {
	var sinks []telemetry.Sink
	if cfg.Verbose {
		sinks = append(sinks, telemetry.Log(slog.Default()))
	}
	if cfg.NATSURL != "" {
		sink, conn, err := telemetry.ConnectNATS(cfg.NATSURL, telemetry.DefaultSubjectPrefix)
		if err != nil {
			return fmt.Errorf("connect telemetry: %w", err)
		}
		defer conn.Close()
		sinks = append(sinks, sink)
	}
	sink := telemetry.Multi(sinks...)

	open := func(backend string, extra ...provider.Option) (*provider.Client, error) {
		return backends.FromEnv(backend, append([]provider.Option{provider.WithTelemetry(sink)}, extra...)...)
	}

	var extra []provider.Option
	if cfg.Model != "" {
		extra = append(extra, provider.WithModel(cfg.Model))
	}
	s, err := newSession(open, cfg, extra...)
	if err != nil {
		return err
	}

	glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return err
	}
	s.render = func(text string) string {
		out, err := glam.Render(text)
		if err != nil {
			return text
		}
		return out
	}
	return s.loop(ctx, os.Stdin)
}

func newSession(open opener, cfg settings, extra ...provider.Option) (*session, error) {
	client, err := open(cfg.Provider, extra...)
	if err != nil {
		return nil, err
	}
	handle, swapper := provider.NewHandle(client)
	s := &session{
		id:       uuidx.NewString(),
		handle:   handle,
		swapper:  swapper,
		open:     open,
		stream:   cfg.Stream,
		thinking: cfg.Thinking,
		out:      os.Stdout,
		render:   func(text string) string { return text + "\n" },
	}
	if cfg.System != "" {
		s.system = messages.System(cfg.System)
	}
	return s, nil
}

func (s *session) prompt() string {
	return fmt.Sprintf("%s %s: ", color.CyanString("User"), color.HiBlackString("[%s/%s]", s.handle.ProviderName(), s.handle.Model()))
}

func (s *session) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Fprint(s.out, s.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(s.out, "Exiting...")
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if strings.EqualFold(input, "exit") {
			return nil
		}
		if strings.HasPrefix(input, "/") {
			if err := s.command(input); err != nil {
				fmt.Fprintf(s.out, "%s %v\n", color.RedString("Error:"), err)
			}
			continue
		}
		if err := s.turn(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Debug("turn failed", slogx.Error(err), slogx.Provider(s.handle.ProviderName()))
			fmt.Fprintf(s.out, "%s %v\n", color.RedString("Error:"), err)
		}
	}
}

func (s *session) command(input string) error {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/provider":
		if arg == "" {
			return fmt.Errorf("usage: /provider <%s>", strings.Join(backends.Names(), "|"))
		}
		client, err := s.open(strings.ToLower(arg))
		if err != nil {
			return err
		}
		prev := s.swapper.SetProvider(client)
		fmt.Fprintf(s.out, "switched %s -> %s/%s\n", prev.Name(), client.Name(), client.Model())
	case "/model":
		if arg == "" {
			return errors.New("usage: /model <id>")
		}
		client, ok := s.handle.Current().(*provider.Client)
		if !ok {
			return fmt.Errorf("provider %s does not support model variants", s.handle.ProviderName())
		}
		s.swapper.SetProvider(client.Variant(arg, 0))
		fmt.Fprintf(s.out, "model set to %s\n", arg)
	case "/load":
		history, err := loadHistory(arg)
		if err != nil {
			return err
		}
		s.history = history
		fmt.Fprintf(s.out, "loaded %d messages\n", len(history))
	case "/dump":
		printer := pp.New()
		printer.SetOutput(s.out)
		printer.SetColoringEnabled(!color.NoColor)
		printer.Println(s.history)
	case "/history":
		data, err := json.MarshalIndent(s.history, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out, string(data))
	case "/inspect":
		return s.inspect(arg)
	case "/reset":
		s.history = nil
		fmt.Fprintln(s.out, "history cleared")
	default:
		return fmt.Errorf("unknown command %s (try /provider, /model, /load, /dump, /history, /inspect, /reset)", name)
	}
	return nil
}

func loadHistory(path string) ([]messages.Message, error) {
	if path == "" {
		return nil, errors.New("usage: /load <file>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var history []messages.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if _, err := messages.CheckToolPairing(history); err != nil {
		return nil, err
	}
	return history, nil
}

// inspect decodes a captured wire request with the current backend's translator.
func (s *session) inspect(path string) error {
	if path == "" {
		return errors.New("usage: /inspect <file>")
	}
	client, ok := s.handle.Current().(*provider.Client)
	if !ok {
		return fmt.Errorf("provider %s has no translator", s.handle.ProviderName())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	req, err := client.Translator().DecodeRequest(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s %s, %d messages, %d tools\n", color.YellowString("Request:"), client.Name(), len(req.Messages), len(req.Tools))
	if !req.System.IsEmpty() {
		fmt.Fprintf(s.out, "%s %s\n", color.YellowString("System:"), req.System.String())
	}
	out, err := json.MarshalIndent(req.Messages, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, string(out))

	if req.Model == "" {
		req.Model = client.Model()
	}
	fidelity := "lossy"
	if again, err := client.Translator().ToWire(req); err == nil && jsonx.Equal(again, data) {
		fidelity = "exact"
	}
	fmt.Fprintf(s.out, "%s %s\n", color.YellowString("Round trip:"), fidelity)
	return nil
}

func (s *session) params() provider.Params {
	p := provider.Params{Messages: s.history, System: s.system, SessionID: s.id}
	if s.thinking > 0 {
		p.Thinking = &messages.ThinkingConfig{BudgetTokens: s.thinking}
	}
	return p
}

// turn sends input with the history. The history only grows when the reply
// completed, so a failed turn can be retried.
func (s *session) turn(ctx context.Context, input string) error {
	user := messages.UserText(input)
	s.history = append(s.history, user)

	var (
		resp messages.Response
		err  error
	)
	if s.stream {
		resp, err = s.streamReply(ctx)
	} else {
		resp, err = s.handle.Send(ctx, s.params())
		if err == nil {
			s.printResponse(resp)
		}
	}
	if err != nil {
		s.history = s.history[:len(s.history)-1]
		return err
	}
	s.history = append(s.history, resp.Message())
	s.printStop(resp)
	return nil
}

func (s *session) streamReply(ctx context.Context) (messages.Response, error) {
	var (
		resp    messages.Response
		started bool
	)
	for ev, err := range s.handle.Stream(ctx, s.params()) {
		if err != nil {
			if started {
				fmt.Fprintln(s.out)
			}
			return resp, err
		}
		switch e := ev.(type) {
		case provider.MessageStart:
			resp.ID, resp.Model = e.ID, e.Model
		case provider.ContentBlockStart:
			if !started {
				started = true
				fmt.Fprint(s.out, color.MagentaString("Assistant")+": ")
			}
		case provider.ContentBlockDelta:
			if d, ok := e.Delta.(provider.TextDelta); ok {
				fmt.Fprint(s.out, d.Text)
			}
		case provider.ContentBlockStop:
			switch b := e.Block.(type) {
			case messages.ToolUse:
				fmt.Fprintf(s.out, "\n%s%s\n", color.YellowString(b.Name), string(b.Input))
			case messages.Thinking:
				fmt.Fprintln(s.out)
			}
			if e.Block != nil {
				resp.Content = append(resp.Content, e.Block)
			}
		case provider.MessageDelta:
			if e.StopReason != nil {
				resp.StopReason = *e.StopReason
			}
		case provider.Usage:
			resp.Usage = e.Usage
		}
	}
	if started {
		fmt.Fprintln(s.out)
	}
	return resp, nil
}

func (s *session) printResponse(resp messages.Response) {
	for _, block := range resp.Content {
		switch b := block.(type) {
		case messages.Thinking:
			fmt.Fprintf(s.out, "%s %s\n", color.HiBlackString("Thinking:"), b.Text)
		case messages.ToolUse:
			fmt.Fprintf(s.out, "%s%s\n", color.YellowString(b.Name), string(b.Input))
		}
	}
	if text := resp.Text(); text != "" {
		fmt.Fprint(s.out, color.MagentaString("Assistant")+": ")
		fmt.Fprint(s.out, s.render(text))
	}
}

func (s *session) printStop(resp messages.Response) {
	fmt.Fprintln(s.out, color.HiBlackString("[%s, %d in / %d out]", resp.StopReason, resp.Usage.InputTokens, resp.Usage.OutputTokens))
}
