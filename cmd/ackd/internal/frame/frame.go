// Package frame reads one bounded message from a client stream.
//
// Three record boundaries are supported: a newline (line), a 2-byte
// big-endian length prefix (length), and a single read call (raw). The raw
// mode reproduces classic single-read servers and may return a partial
// message when the client's write is split by the network.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
)

// Mode selects the record boundary.
type Mode string

const (
	ModeLine   Mode = "line"
	ModeLength Mode = "length"
	ModeRaw    Mode = "raw"
)

const (
	// DefaultMaxSize is the usable part of a 256-byte buffer with one
	// byte reserved for a terminator.
	DefaultMaxSize = 255
	// MaxSize is the largest message a length prefix can describe.
	MaxSize = 1<<16 - 1

	lengthHeaderSize = 2
)

// DefaultIdle is the pause that ends an unterminated line.
const DefaultIdle = 200 * time.Millisecond

// ErrMessageTooLarge is returned when a client sends more than the
// configured maximum before a record boundary.
var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Reader extracts one message from r.
type Reader interface {
	ReadMessage(r io.Reader) (core.Message, error)
}

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLine, ModeLength, ModeRaw:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown framing mode %q (supported: line, length, raw)", s)
	}
}

// New returns a Reader for mode that accepts messages of up to max bytes.
func New(mode Mode, max int) (Reader, error) {
	if max < 1 || max > MaxSize {
		return nil, fmt.Errorf("invalid maximum message size %d: must be between 1 and %d", max, MaxSize)
	}
	switch mode {
	case ModeLine:
		return &LineReader{Max: max, Idle: DefaultIdle}, nil
	case ModeLength:
		return &LengthReader{Max: max}, nil
	case ModeRaw:
		return &RawReader{Max: max}, nil
	default:
		return nil, fmt.Errorf("unknown framing mode %q", mode)
	}
}

// LineReader reads until '\n' or EOF. The delimiter and a preceding '\r'
// are stripped.
//
// A client that sends an unterminated message and then waits for the reply
// would otherwise block until the read deadline. Once at least one byte has
// arrived, a pause of Idle between reads ends the message, and so does an
// expiring read deadline. Idle only applies to readers with a read deadline
// (net.Conn); zero disables it.
type LineReader struct {
	Max  int
	Idle time.Duration
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

func (l *LineReader) ReadMessage(r io.Reader) (core.Message, error) {
	dl, _ := r.(readDeadliner)

	// One extra byte leaves room for the delimiter of a maximum-size line.
	buf := make([]byte, 0, l.Max+1)
	for {
		n, err := r.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]

		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			line := buf[:i]
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			return core.Message(line), nil
		}
		if len(buf) > l.Max {
			return nil, fmt.Errorf("%w: more than %d bytes without a newline", ErrMessageTooLarge, l.Max)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return core.Message(buf), nil
			}
			if len(buf) > 0 && errors.Is(err, os.ErrDeadlineExceeded) {
				return core.Message(buf), nil
			}
			return nil, err
		}
		if n > 0 && dl != nil && l.Idle > 0 {
			dl.SetReadDeadline(time.Now().Add(l.Idle))
		}
	}
}

// LengthReader reads a 2-byte big-endian length followed by the payload.
type LengthReader struct {
	Max int
}

func (l *LengthReader) ReadMessage(r io.Reader) (core.Message, error) {
	var header [lengthHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			// Closed before sending anything
			return core.Message{}, nil
		}
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}

	length := int(binary.BigEndian.Uint16(header[:]))
	if length > l.Max {
		return nil, fmt.Errorf("%w: length %d, maximum %d", ErrMessageTooLarge, length, l.Max)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}
	return core.Message(payload), nil
}

// RawReader performs exactly one read of up to Max bytes.
type RawReader struct {
	Max int
}

func (l *RawReader) ReadMessage(r io.Reader) (core.Message, error) {
	buf := make([]byte, l.Max)
	n, err := r.Read(buf)
	if n > 0 {
		return core.Message(buf[:n]), nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return core.Message{}, nil
}
