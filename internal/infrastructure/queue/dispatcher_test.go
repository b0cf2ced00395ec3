package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/homespot/identity-service/internal/core/ports"
)

type captureSender struct {
	mu   sync.Mutex
	sent []ports.Notification
}

func (s *captureSender) Send(_ context.Context, n ports.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *captureSender) forRecipient(recipient string) []ports.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.Notification
	for _, n := range s.sent {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestDispatcher_DeliversAll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &captureSender{}
	d := NewDispatcher(3, sender, zerolog.Nop())
	d.Start(ctx)

	for i := 0; i < 20; i++ {
		d.Enqueue(ports.Notification{Recipient: "amy@example.com", Subject: "s", Link: "l"})
	}
	d.Enqueue(ports.Notification{Recipient: "bob@example.com", Subject: "s", Link: "l"})

	waitFor(t, func() bool { return sender.count() == 21 })
}

func TestDispatcher_PerRecipientOrdering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &captureSender{}
	d := NewDispatcher(4, sender, zerolog.Nop())
	d.Start(ctx)

	// Same recipient always lands on the same worker, so the confirmation
	// link must be delivered before the reset link that follows it.
	d.Enqueue(ports.Notification{Recipient: "amy@example.com", Subject: "Confirm your email address"})
	d.Enqueue(ports.Notification{Recipient: "amy@example.com", Subject: "Reset your password"})

	waitFor(t, func() bool { return len(sender.forRecipient("amy@example.com")) == 2 })

	got := sender.forRecipient("amy@example.com")
	if got[0].Subject != "Confirm your email address" || got[1].Subject != "Reset your password" {
		t.Fatalf("out of order delivery: %q then %q", got[0].Subject, got[1].Subject)
	}
}

func TestDispatcher_ShardIsDeterministic(t *testing.T) {
	d := NewDispatcher(8, &captureSender{}, zerolog.Nop())
	for _, recipient := range []string{"amy@example.com", "bob@example.com", ""} {
		first := d.shardIndex(recipient)
		for i := 0; i < 10; i++ {
			if d.shardIndex(recipient) != first {
				t.Fatalf("shard index not stable for %q", recipient)
			}
		}
	}
}

func TestDispatcher_DefaultWorkerCount(t *testing.T) {
	d := NewDispatcher(0, &captureSender{}, zerolog.Nop())
	if len(d.workers) != defaultWorkers {
		t.Fatalf("expected %d workers, got %d", defaultWorkers, len(d.workers))
	}
}
