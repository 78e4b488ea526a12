package memory

import (
	"context"
	"sync"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
)

// Source is an in-memory reply, the default source.
type Source struct {
	reply core.Reply
	mu    sync.RWMutex
}

func NewSource(reply string) *Source {
	return &Source{reply: core.Reply(reply)}
}

func (s *Source) Reply(ctx context.Context) (core.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reply, nil
}

// Store replaces the reply for subsequent connections.
func (s *Source) Store(ctx context.Context, reply []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = append(core.Reply(nil), reply...)
	return nil
}
