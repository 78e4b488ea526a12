package ack

import (
	"context"
	"fmt"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
)

// Mode selects how a reply is derived from a message.
type Mode string

const (
	ModeFixed Mode = "fixed"
	ModeEcho  Mode = "echo"
)

// FixedResponder ignores the message and returns the source's reply.
type FixedResponder struct {
	Source core.ReplySource
}

func (r *FixedResponder) Respond(ctx context.Context, _ core.Message) (core.Reply, error) {
	reply, err := r.Source.Reply(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load reply: %w", err)
	}
	return reply, nil
}

// EchoResponder returns the message unchanged.
type EchoResponder struct{}

func (EchoResponder) Respond(_ context.Context, msg core.Message) (core.Reply, error) {
	return core.Reply(msg), nil
}

// NewResponder returns the responder for mode.
func NewResponder(mode Mode, source core.ReplySource) (core.Responder, error) {
	switch mode {
	case ModeFixed:
		if source == nil {
			return nil, fmt.Errorf("fixed reply mode requires a reply source")
		}
		return &FixedResponder{Source: source}, nil
	case ModeEcho:
		return EchoResponder{}, nil
	default:
		return nil, fmt.Errorf("unknown reply mode %q (supported: fixed, echo)", mode)
	}
}
