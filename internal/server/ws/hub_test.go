package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/refmet/catmarket/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBus hands out one buffered channel per subscription so tests can feed
// signals to the hub directly.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string]chan domain.Signal
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[string]chan domain.Signal)}
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan domain.Signal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan domain.Signal, 8)
	b.subs[channel] = ch
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *fakeBus) channel(name string) chan domain.Signal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[name]
}

func waitSubscribed(t *testing.T, b *fakeBus, names ...string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ready := true
		for _, name := range names {
			if b.channel(name) == nil {
				ready = false
			}
		}
		if ready {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("bus subscriptions never established: %v", names)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func expectMessage(t *testing.T, send chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message routed to subscribed client")
		return nil
	}
}

func TestClientWildcardSubscription(t *testing.T) {
	c := &client{subs: map[string]bool{
		"settlements":     true,
		"notifications:*": true,
	}}

	cases := []struct {
		channel string
		want    bool
	}{
		{"settlements", true},
		{"tenders", false},
		{"notifications:u-42", true},
		{"notification", false},
	}
	for _, tc := range cases {
		if got := c.isSubscribed(tc.channel); got != tc.want {
			t.Errorf("isSubscribed(%q) = %v, want %v", tc.channel, got, tc.want)
		}
	}
}

func TestHandleSubscriptionUpdatesChannels(t *testing.T) {
	c := &client{subs: map[string]bool{"settlements": true}}

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"notifications:u-1"}})
	if !c.isSubscribed("notifications:u-1") {
		t.Fatal("subscribe did not take effect")
	}

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"settlements"}})
	if c.isSubscribed("settlements") {
		t.Fatal("unsubscribe did not take effect")
	}
}

func TestHubRoutesSignalsByChannel(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- hub.Run(ctx) }()
	waitSubscribed(t, bus, "settlements", "tenders", "notifications:*")

	board := &client{hub: hub, send: make(chan []byte, 8), subs: map[string]bool{"settlements": true}}
	alice := &client{hub: hub, send: make(chan []byte, 8), subs: map[string]bool{"notifications:alice": true}}
	hub.register <- board
	hub.register <- alice

	bus.channel("settlements") <- domain.Signal{
		Channel: "settlements",
		Payload: []byte(`{"event":"tender_accepted"}`),
	}
	if msg := expectMessage(t, board.send); string(msg) != `{"event":"tender_accepted"}` {
		t.Fatalf("board received %s", msg)
	}
	select {
	case msg := <-alice.send:
		t.Fatalf("settlement event leaked to a notification subscriber: %s", msg)
	default:
	}

	// Pattern subscriptions carry the concrete channel, so a per-user push
	// reaches only its addressee.
	bus.channel("notifications:*") <- domain.Signal{
		Channel: "notifications:alice",
		Payload: []byte(`{"id":"n1"}`),
	}
	if msg := expectMessage(t, alice.send); string(msg) != `{"id":"n1"}` {
		t.Fatalf("alice received %s", msg)
	}
	select {
	case msg := <-board.send:
		t.Fatalf("per-user notification leaked to the board client: %s", msg)
	default:
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}
