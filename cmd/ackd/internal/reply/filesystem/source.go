package filesystem

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
)

// Source serves the contents of a file as the reply. The file is re-read
// when its modification time or size changes.
type Source struct {
	Path string

	mu      sync.Mutex
	cached  core.Reply
	modTime time.Time
	size    int64
}

func NewSource(path string) *Source {
	return &Source{Path: path}
}

func (s *Source) Reply(ctx context.Context) (core.Reply, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat reply file %s: %w", s.Path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.cached, nil
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reply file %s: %w", s.Path, err)
	}
	s.cached = core.Reply(data)
	s.modTime = info.ModTime()
	s.size = info.Size()
	return s.cached, nil
}

// Store writes a new reply to the file.
func (s *Source) Store(ctx context.Context, reply []byte) error {
	if err := os.WriteFile(s.Path, reply, 0644); err != nil {
		return fmt.Errorf("failed to write reply file: %w", err)
	}
	return nil
}
