package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure and decides whether the process survives it.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindBind
	KindAccept
	KindRead
	KindReply
	KindWrite
	KindHandler
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindBind:
		return "bind"
	case KindAccept:
		return "accept"
	case KindRead:
		return "read"
	case KindReply:
		return "reply"
	case KindWrite:
		return "write"
	case KindHandler:
		return "handler"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Fatal reports whether errors of this kind terminate the process.
// Configuration and bind failures invalidate the server as a whole;
// everything else is confined to one accept attempt or one connection.
func (k Kind) Fatal() bool {
	return k == KindConfiguration || k == KindBind
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "bind" or "read message"
	Conn string // connection identifier, empty for process-level errors
	Err  error
}

// New returns a process-level error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ForConn returns an error tied to a single client connection.
func ForConn(kind Kind, conn, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Conn: conn, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Conn != "" {
		msg = fmt.Sprintf("%s (conn %s)", msg, e.Conn)
	}
	if e.Err == nil {
		return msg
	}
	if msg == "" {
		return e.Err.Error()
	}
	return msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error must terminate the process.
func (e *Error) Fatal() bool {
	return e.Kind.Fatal()
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsFatal reports whether err must terminate the process. Unclassified
// errors are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	kind, ok := KindOf(err)
	if !ok {
		return true
	}
	return kind.Fatal()
}

// Configuration wraps err as a fatal configuration error.
func Configuration(op string, err error) *Error {
	return New(KindConfiguration, op, err)
}

// Bind wraps err as a fatal bind error.
func Bind(op string, err error) *Error {
	return New(KindBind, op, err)
}
