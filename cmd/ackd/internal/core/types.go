package core

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DefaultReply is returned for every message unless configured otherwise.
const DefaultReply = "I got your message"

// Message is one framed read from a client. It is never modified after
// the read that produced it.
type Message []byte

func (m Message) String() string {
	return string(m)
}

// Reply is the byte sequence written back to a client.
type Reply []byte

// ClientConnection is one accepted socket. It is owned by exactly one
// ConnectionHandler, which must close it before returning.
type ClientConnection struct {
	net.Conn
	ID         uint64
	AcceptedAt time.Time
}

// Name returns the connection identifier used in logs and errors.
func (c *ClientConnection) Name() string {
	return strconv.FormatUint(c.ID, 10)
}

// ConnectionHandler processes a single client connection to completion.
// It takes full ownership of the connection lifecycle.
type ConnectionHandler interface {
	HandleConnection(ctx context.Context, conn *ClientConnection)
}

// ReplySource provides the reply bytes. It abstracts away where the reply
// is stored (literal, file, Kubernetes ConfigMap).
type ReplySource interface {
	Reply(ctx context.Context) (Reply, error)
}

// ReplyStore is a ReplySource that can also be written, used to seed a
// missing reply at startup.
type ReplyStore interface {
	ReplySource
	Store(ctx context.Context, reply []byte) error
}

// Responder decides what to send back for a message.
type Responder interface {
	Respond(ctx context.Context, msg Message) (Reply, error)
}
