package provider

import (
	"context"
	"errors"
	"iter"

	"github.com/casualjim/llmux/messages"
)

// Collect drains a stream into a Response. On error it returns the blocks
// completed so far together with the error.
func Collect(events iter.Seq2[StreamEvent, error]) (messages.Response, error) {
	var resp messages.Response
	for ev, err := range events {
		if err != nil {
			return resp, err
		}
		switch e := ev.(type) {
		case MessageStart:
			resp.ID = e.ID
			resp.Model = e.Model
		case ContentBlockStop:
			if e.Block != nil {
				resp.Content = append(resp.Content, e.Block)
			}
		case MessageDelta:
			if e.StopReason != nil {
				resp.StopReason = *e.StopReason
			}
		case Usage:
			resp.Usage = resp.Usage.Merge(e.Usage)
		}
	}
	return resp, nil
}

// SendText appends text as a user turn to history, sends it and returns the
// text of the reply.
func SendText(ctx context.Context, p Provider, history []messages.Message, text string) (string, error) {
	if p == nil {
		return "", errors.New("provider is required")
	}
	msgs := make([]messages.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, messages.UserText(text))
	resp, err := p.Send(ctx, Params{Messages: msgs})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
