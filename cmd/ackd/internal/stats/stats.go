// Package stats collects server-wide counters shared by the acceptor and
// all connection handlers.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
)

// maxPreview bounds the message bytes kept per recent entry.
const maxPreview = 64

// Entry is one recently received message.
type Entry struct {
	Conn       uint64    `json:"conn"`
	RemoteAddr string    `json:"remote_addr"`
	Size       int       `json:"size"`
	Preview    string    `json:"preview"`
	ReceivedAt time.Time `json:"received_at"`
}

// Snapshot is a point-in-time copy of the collector.
type Snapshot struct {
	Accepted  int64            `json:"accepted"`
	Active    int64            `json:"active"`
	Replied   int64            `json:"replied"`
	Messages  int64            `json:"messages"`
	BytesIn   int64            `json:"bytes_in"`
	BytesOut  int64            `json:"bytes_out"`
	Failures  map[string]int64 `json:"failures"`
	Recent    []Entry          `json:"recent"`
	StartedAt time.Time        `json:"started_at"`
}

var failureKinds = []errs.Kind{
	errs.KindAccept,
	errs.KindRead,
	errs.KindReply,
	errs.KindWrite,
	errs.KindHandler,
}

// Collector is safe for concurrent use. A nil *Collector discards
// everything.
type Collector struct {
	accepted atomic.Int64
	active   atomic.Int64
	replied  atomic.Int64
	messages atomic.Int64
	bytesIn  atomic.Int64
	bytesOut atomic.Int64
	failures map[errs.Kind]*atomic.Int64

	mu     sync.Mutex
	recent *queue.Queue
	limit  int

	startedAt time.Time
}

// New returns a Collector remembering up to recent messages.
func New(recent int) *Collector {
	c := &Collector{
		failures:  make(map[errs.Kind]*atomic.Int64, len(failureKinds)),
		recent:    queue.New(),
		limit:     recent,
		startedAt: time.Now(),
	}
	for _, k := range failureKinds {
		c.failures[k] = new(atomic.Int64)
	}
	return c
}

func (c *Collector) ConnOpened() {
	if c == nil {
		return
	}
	c.accepted.Add(1)
	c.active.Add(1)
}

func (c *Collector) ConnClosed() {
	if c == nil {
		return
	}
	c.active.Add(-1)
}

func (c *Collector) Replied(n int) {
	if c == nil {
		return
	}
	c.replied.Add(1)
	c.bytesOut.Add(int64(n))
}

// Failure counts a recoverable failure of the given kind.
func (c *Collector) Failure(kind errs.Kind) {
	if c == nil {
		return
	}
	if n, ok := c.failures[kind]; ok {
		n.Add(1)
	}
}

// Message records a received message and keeps a bounded preview of it.
func (c *Collector) Message(conn uint64, remote string, msg []byte, at time.Time) {
	if c == nil {
		return
	}
	c.messages.Add(1)
	c.bytesIn.Add(int64(len(msg)))
	if c.limit <= 0 {
		return
	}

	preview := msg
	if len(preview) > maxPreview {
		preview = preview[:maxPreview]
	}
	e := Entry{
		Conn:       conn,
		RemoteAddr: remote,
		Size:       len(msg),
		Preview:    string(preview),
		ReceivedAt: at,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent.Add(e)
	for c.recent.Length() > c.limit {
		c.recent.Remove()
	}
}

// Snapshot returns a copy of all counters, recent messages oldest first.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	s := Snapshot{
		Accepted:  c.accepted.Load(),
		Active:    c.active.Load(),
		Replied:   c.replied.Load(),
		Messages:  c.messages.Load(),
		BytesIn:   c.bytesIn.Load(),
		BytesOut:  c.bytesOut.Load(),
		Failures:  make(map[string]int64, len(c.failures)),
		StartedAt: c.startedAt,
	}
	for k, n := range c.failures {
		s.Failures[k.String()] = n.Load()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.Recent = make([]Entry, 0, c.recent.Length())
	for i := 0; i < c.recent.Length(); i++ {
		s.Recent = append(s.Recent, c.recent.Get(i).(Entry))
	}
	return s
}
