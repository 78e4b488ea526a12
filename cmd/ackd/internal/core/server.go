package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/stats"
)

// ShutdownPolicy decides what happens to in-flight connections when the
// server stops accepting.
type ShutdownPolicy string

const (
	// ShutdownDrain lets in-flight handlers run to completion, bounded by
	// the Shutdown context.
	ShutdownDrain ShutdownPolicy = "drain"
	// ShutdownAbort force-closes in-flight connections immediately.
	ShutdownAbort ShutdownPolicy = "abort"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Server is the TCP acceptor. It depends only on interfaces for the
// per-connection work.
type Server struct {
	Listener          net.Listener
	ConnectionHandler ConnectionHandler
	Policy            ShutdownPolicy
	Reporter          *errs.Reporter
	Stats             *stats.Collector
	Log               *slog.Logger

	mu     sync.Mutex
	conns  map[uint64]*ClientConnection
	wg     sync.WaitGroup
	seq    atomic.Uint64
	closed atomic.Bool

	initOnce sync.Once
	baseCtx  context.Context
	cancel   context.CancelFunc
}

func (s *Server) init(ctx context.Context) {
	s.initOnce.Do(func() {
		if s.Log == nil {
			s.Log = slog.Default()
		}
		if s.Reporter == nil {
			s.Reporter = errs.NewReporter("ackd", s.Log, nil)
		}
		if s.Policy == "" {
			s.Policy = ShutdownDrain
		}
		s.conns = make(map[uint64]*ClientConnection)
		s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	})
}

// Serve accepts connections until ctx is cancelled or Shutdown is called,
// in which case it returns nil. Each connection is handled on its own
// goroutine; Serve never waits for handlers.
func (s *Server) Serve(ctx context.Context) error {
	s.init(ctx)

	stop := context.AfterFunc(ctx, func() {
		if s.closed.CompareAndSwap(false, true) {
			s.Listener.Close()
		}
	})
	defer stop()

	s.Log.Info("Accepting connections", "addr", s.Listener.Addr().String())

	var backoff time.Duration
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed unexpectedly: %w", err)
			}
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.Stats.Failure(errs.KindAccept)
			s.Reporter.Report(errs.New(errs.KindAccept, "accept", err))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		cc := &ClientConnection{
			Conn:       conn,
			ID:         s.seq.Add(1),
			AcceptedAt: time.Now(),
		}
		if !s.track(cc) {
			conn.Close()
			return nil
		}
		go s.handleConnection(cc)
	}
}

func (s *Server) track(cc *ClientConnection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.conns[cc.ID] = cc
	s.wg.Add(1)
	s.Stats.ConnOpened()
	return true
}

func (s *Server) untrack(cc *ClientConnection) {
	s.mu.Lock()
	delete(s.conns, cc.ID)
	s.mu.Unlock()
	s.Stats.ConnClosed()
	s.wg.Done()
}

func (s *Server) handleConnection(cc *ClientConnection) {
	defer s.untrack(cc)
	defer func() {
		if r := recover(); r != nil {
			cc.Close()
			s.Stats.Failure(errs.KindHandler)
			s.Reporter.Report(errs.ForConn(errs.KindHandler, cc.Name(), "handle connection", fmt.Errorf("panic: %v", r)))
		}
	}()

	// Delegate the entire lifecycle to the handler
	s.ConnectionHandler.HandleConnection(s.baseCtx, cc)
}

// ActiveConnections returns the number of connections currently being
// handled.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Shutdown stops accepting and applies the shutdown policy to in-flight
// connections. With ShutdownDrain it waits for handlers until ctx is done,
// then force-closes the rest and returns ctx.Err().
func (s *Server) Shutdown(ctx context.Context) error {
	s.init(ctx)

	if s.closed.CompareAndSwap(false, true) {
		if err := s.Listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.Log.Warn("Error closing listener", "error", err)
		}
	}

	active := s.ActiveConnections()
	s.Log.Info("Shutting down", "policy", string(s.Policy), "active", active)

	if s.Policy == ShutdownAbort {
		s.abort()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.Log.Warn("Drain timed out, closing remaining connections", "active", s.ActiveConnections())
		s.abort()
		<-done
		return ctx.Err()
	}
}

func (s *Server) abort() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cc := range s.conns {
		cc.Close()
	}
}
