package memory

import (
	"context"
	"testing"
)

func TestSourceReplyAndStore(t *testing.T) {
	ctx := context.Background()
	s := NewSource("I got your message")

	got, err := s.Reply(ctx)
	if err != nil || string(got) != "I got your message" {
		t.Fatalf("Reply() = %q, %v", got, err)
	}

	in := []byte("ack")
	if err := s.Store(ctx, in); err != nil {
		t.Fatalf("Store: %v", err)
	}
	in[0] = 'X' // caller's buffer must not alias the stored reply

	got, _ = s.Reply(ctx)
	if string(got) != "ack" {
		t.Errorf("Reply() after Store = %q, want %q", got, "ack")
	}
}
