package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

type fakeSender struct {
	mu    sync.Mutex
	name  string
	calls int
	err   error
}

func (s *fakeSender) Send(_ context.Context, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.err
}

func (s *fakeSender) Name() string { return s.name }

func (s *fakeSender) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersEvents(t *testing.T) {
	sender := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"tender_accepted"}, discardLogger())

	if err := n.Notify(context.Background(), "tender_accepted", "t", "m"); err != nil {
		t.Fatalf("allowed event: %v", err)
	}
	if err := n.Notify(context.Background(), "tender_rejected", "t", "m"); err != nil {
		t.Fatalf("filtered event returned error: %v", err)
	}

	if sender.sent() != 1 {
		t.Fatalf("sends = %d, want 1", sender.sent())
	}
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, discardLogger())

	for _, event := range []string{"tender_accepted", "error", "anything"} {
		if err := n.Notify(context.Background(), event, "t", "m"); err != nil {
			t.Fatalf("%s: %v", event, err)
		}
	}
	if sender.sent() != 3 {
		t.Fatalf("sends = %d, want 3", sender.sent())
	}
}

func TestNotifyAllBypassesFilter(t *testing.T) {
	sender := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"tender_accepted"}, discardLogger())

	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Fatalf("NotifyAll: %v", err)
	}
	if sender.sent() != 1 {
		t.Fatalf("sends = %d, want 1", sender.sent())
	}
}

func TestDispatchContinuesPastFailedSender(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("boom")}
	healthy := &fakeSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discardLogger())

	err := n.NotifyAll(context.Background(), "t", "m")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error does not name the failed sender: %v", err)
	}
	if healthy.sent() != 1 {
		t.Fatal("healthy sender skipped after failure")
	}
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	if err := n.NotifyAll(context.Background(), "t", "m"); err != nil {
		t.Fatalf("no senders should be a no-op: %v", err)
	}
}
