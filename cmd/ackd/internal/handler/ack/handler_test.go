package ack

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/core"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/errs"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/frame"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/reply/memory"
	"github.com/hasirciogluhq/ackd/cmd/ackd/internal/stats"
)

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(_ *core.ClientConnection, _, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) get() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type failingSource struct{}

func (failingSource) Reply(context.Context) (core.Reply, error) {
	return nil, errors.New("configmap missing")
}

type fixture struct {
	handler *Handler
	stats   *stats.Collector
	logs    *bytes.Buffer
	states  *recorder
}

func newFixture(t *testing.T, mode frame.Mode, responder core.Responder) *fixture {
	t.Helper()
	framer, err := frame.New(mode, frame.DefaultMaxSize)
	if err != nil {
		t.Fatal(err)
	}
	logs := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(&syncWriter{w: logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	st := stats.New(4)
	rec := &recorder{}
	return &fixture{
		handler: &Handler{
			Framer:       framer,
			Responder:    responder,
			ReadTimeout:  2 * time.Second,
			WriteTimeout: 2 * time.Second,
			Reporter:     errs.NewReporter("ackd", log, io.Discard),
			Stats:        st,
			Log:          log,
			OnTransition: rec.record,
		},
		stats:  st,
		logs:   logs,
		states: rec,
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// serve runs the handler on one end of a pipe and returns the client end.
func (f *fixture) serve(ctx context.Context) (net.Conn, <-chan struct{}) {
	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.handler.HandleConnection(ctx, &core.ClientConnection{Conn: server, ID: 1, AcceptedAt: time.Now()})
	}()
	return client, done
}

func fixed(reply string) core.Responder {
	return &FixedResponder{Source: memory.NewSource(reply)}
}

func TestHandlerReplies(t *testing.T) {
	tests := []struct {
		name  string
		mode  frame.Mode
		input []byte
		want  string
	}{
		{name: "line", mode: frame.ModeLine, input: []byte("hello\n"), want: "hello"},
		{name: "length prefixed", mode: frame.ModeLength, input: []byte{0, 3, 'a', 'b', 'c'}, want: "abc"},
		{name: "line without newline", mode: frame.ModeLine, input: []byte("hello"), want: "hello"},
		{name: "raw", mode: frame.ModeRaw, input: []byte("hello"), want: "hello"},
		{name: "max size", mode: frame.ModeLine, input: []byte(strings.Repeat("m", 255) + "\n"), want: strings.Repeat("m", 255)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mode, fixed(core.DefaultReply))
			client, done := f.serve(context.Background())
			defer client.Close()

			if _, err := client.Write(tt.input); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := io.ReadAll(client)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			<-done

			if string(got) != core.DefaultReply {
				t.Errorf("reply = %q, want %q", got, core.DefaultReply)
			}
			want := []State{StateReading, StateReplying, StateClosed}
			if diff := cmp.Diff(want, f.states.get()); diff != "" {
				t.Errorf("states mismatch (-want +got):\n%s", diff)
			}
			s := f.stats.Snapshot()
			if s.Replied != 1 || s.BytesOut != int64(len(core.DefaultReply)) {
				t.Errorf("replied %d bytes out %d", s.Replied, s.BytesOut)
			}
			if len(s.Recent) != 1 || s.Recent[0].Size != len(tt.want) {
				t.Errorf("recent = %+v, want one entry of %d bytes", s.Recent, len(tt.want))
			}
		})
	}
}

func TestHandlerLogsMessage(t *testing.T) {
	f := newFixture(t, frame.ModeLine, fixed(core.DefaultReply))
	client, done := f.serve(context.Background())
	defer client.Close()

	client.Write([]byte("ping\n"))
	io.ReadAll(client)
	<-done

	out := f.logs.String()
	if !strings.Contains(out, `msg="Here is the message"`) || !strings.Contains(out, "message=ping") {
		t.Errorf("log output missing message line:\n%s", out)
	}
}

func TestHandlerEcho(t *testing.T) {
	f := newFixture(t, frame.ModeLine, EchoResponder{})
	client, done := f.serve(context.Background())
	defer client.Close()

	client.Write([]byte("echo me\n"))
	got, _ := io.ReadAll(client)
	<-done

	if string(got) != "echo me" {
		t.Errorf("reply = %q, want %q", got, "echo me")
	}
}

func TestHandlerClientClosesWithoutData(t *testing.T) {
	f := newFixture(t, frame.ModeLine, fixed(core.DefaultReply))
	client, done := f.serve(context.Background())
	client.Close()
	<-done

	// The empty message is accepted; the reply cannot be delivered to a
	// closed pipe and surfaces as a write failure.
	want := []State{StateReading, StateReplying, StateErrored, StateClosed}
	if diff := cmp.Diff(want, f.states.get()); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	s := f.stats.Snapshot()
	if s.Messages != 1 || s.Failures["write"] != 1 {
		t.Errorf("messages %d write failures %d, want 1 1", s.Messages, s.Failures["write"])
	}
}

func TestHandlerMessageTooLarge(t *testing.T) {
	f := newFixture(t, frame.ModeLine, fixed(core.DefaultReply))
	client, done := f.serve(context.Background())
	defer client.Close()

	go client.Write([]byte(strings.Repeat("x", 300) + "\n"))
	got, _ := io.ReadAll(client)
	<-done

	if len(got) != 0 {
		t.Errorf("oversized message got reply %q", got)
	}
	want := []State{StateReading, StateErrored, StateClosed}
	if diff := cmp.Diff(want, f.states.get()); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if n := f.stats.Snapshot().Failures["read"]; n != 1 {
		t.Errorf("read failures = %d, want 1", n)
	}
	if !strings.Contains(f.logs.String(), "kind=read") {
		t.Errorf("read failure not reported:\n%s", f.logs.String())
	}
}

func TestHandlerReplySourceFailure(t *testing.T) {
	f := newFixture(t, frame.ModeLine, &FixedResponder{Source: failingSource{}})
	client, done := f.serve(context.Background())
	defer client.Close()

	client.Write([]byte("hi\n"))
	got, _ := io.ReadAll(client)
	<-done

	if len(got) != 0 {
		t.Errorf("reply = %q, want none", got)
	}
	if n := f.stats.Snapshot().Failures["reply"]; n != 1 {
		t.Errorf("reply failures = %d, want 1", n)
	}
}

func TestHandlerReadTimeout(t *testing.T) {
	f := newFixture(t, frame.ModeLine, fixed(core.DefaultReply))
	f.handler.ReadTimeout = 50 * time.Millisecond
	client, done := f.serve(context.Background())
	defer client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not time out an idle client")
	}
	if n := f.stats.Snapshot().Failures["read"]; n != 1 {
		t.Errorf("read failures = %d, want 1", n)
	}
}

func TestHandlerCancellationUnblocksRead(t *testing.T) {
	f := newFixture(t, frame.ModeLine, fixed(core.DefaultReply))
	f.handler.ReadTimeout = 0
	ctx, cancel := context.WithCancel(context.Background())
	client, done := f.serve(ctx)
	defer client.Close()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler ignored cancellation")
	}
	states := f.states.get()
	if states[len(states)-1] != StateClosed {
		t.Errorf("final state = %v, want closed", states[len(states)-1])
	}
}

func TestStateTransitions(t *testing.T) {
	allowed := map[State][]State{
		StateAccepted: {StateReading, StateClosed},
		StateReading:  {StateReplying, StateErrored},
		StateReplying: {StateClosed, StateErrored},
		StateErrored:  {StateClosed},
		StateClosed:   {},
	}
	all := []State{StateAccepted, StateReading, StateReplying, StateErrored, StateClosed}
	for from, tos := range allowed {
		for _, to := range all {
			want := false
			for _, ok := range tos {
				if ok == to {
					want = true
				}
			}
			if got := from.next(to); got != want {
				t.Errorf("%v -> %v allowed = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestNewResponder(t *testing.T) {
	if _, err := NewResponder(ModeFixed, nil); err == nil {
		t.Error("fixed mode without a source succeeded")
	}
	if _, err := NewResponder("transform", nil); err == nil {
		t.Error("unknown mode succeeded")
	}
	r, err := NewResponder(ModeFixed, memory.NewSource("ok"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Respond(context.Background(), core.Message("ignored"))
	if err != nil || string(got) != "ok" {
		t.Errorf("Respond() = %q, %v", got, err)
	}
}
