// Package ack implements the per-connection request/acknowledge cycle:
// read one framed message, write one reply, close.
package ack

import (
	"context"
	"log/slog"
	"time"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/frame"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/stats"
)

// Handler implements core.ConnectionHandler. Failures are reported as
// recoverable errors and only ever close the offending connection.
type Handler struct {
	Framer       frame.Reader
	Responder    core.Responder
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Reporter     *errs.Reporter
	Stats        *stats.Collector
	Log          *slog.Logger

	// OnTransition, if set, is called on every state change.
	OnTransition func(conn *core.ClientConnection, from, to State)
}

type session struct {
	h     *Handler
	conn  *core.ClientConnection
	log   *slog.Logger
	state State
}

// HandleConnection implements core.ConnectionHandler.
// It takes full ownership of the connection lifecycle.
func (h *Handler) HandleConnection(ctx context.Context, conn *core.ClientConnection) {
	log := h.Log
	if log == nil {
		log = slog.Default()
	}
	s := &session{
		h:     h,
		conn:  conn,
		log:   log.With("conn", conn.ID, "remote_addr", conn.RemoteAddr().String()),
		state: StateAccepted,
	}
	defer s.close()

	// Cancellation unblocks any pending read or write
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	s.log.Debug("Connection accepted")

	// 1. Read one message
	s.moveTo(StateReading)
	if h.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(h.ReadTimeout))
	}
	// A deadline set above must not mask an earlier cancellation
	if err := ctx.Err(); err != nil {
		s.fail(errs.KindRead, "read message", err)
		return
	}
	msg, err := h.Framer.ReadMessage(conn)
	if err != nil {
		s.fail(errs.KindRead, "read message", err)
		return
	}
	s.log.Info("Here is the message", "message", msg.String(), "bytes", len(msg))
	h.Stats.Message(conn.ID, conn.RemoteAddr().String(), msg, time.Now())

	// 2. Build and send the reply
	s.moveTo(StateReplying)
	reply, err := h.Responder.Respond(ctx, msg)
	if err != nil {
		s.fail(errs.KindReply, "build reply", err)
		return
	}
	if h.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(h.WriteTimeout))
	}
	if err := ctx.Err(); err != nil {
		s.fail(errs.KindWrite, "write reply", err)
		return
	}
	n, err := conn.Write(reply)
	if err != nil {
		s.fail(errs.KindWrite, "write reply", err)
		return
	}
	h.Stats.Replied(n)
	s.log.Debug("Reply sent", "bytes", n, "elapsed", time.Since(conn.AcceptedAt))
}

func (s *session) moveTo(to State) {
	from := s.state
	if !from.next(to) {
		s.log.Warn("Unexpected connection state transition", "from", from.String(), "to", to.String())
	}
	s.state = to
	if s.h.OnTransition != nil {
		s.h.OnTransition(s.conn, from, to)
	}
}

func (s *session) fail(kind errs.Kind, op string, err error) {
	s.moveTo(StateErrored)
	s.h.Stats.Failure(kind)
	err = errs.ForConn(kind, s.conn.Name(), op, err)
	if s.h.Reporter != nil {
		s.h.Reporter.Report(err)
		return
	}
	s.log.Error("Connection failed", "error", err)
}

func (s *session) close() {
	if err := s.conn.Close(); err != nil {
		s.log.Debug("Error closing connection", "error", err)
	}
	s.moveTo(StateClosed)
}
