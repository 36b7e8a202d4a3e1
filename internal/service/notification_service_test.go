package service

import (
	"context"
	"testing"
	"time"

	"github.com/refmet/catmarket/internal/domain"
)

func newFanoutFixture() (*NotificationFanout, *fakeNotificationStore, *fakeSignalBus) {
	store := newFakeNotificationStore()
	bus := &fakeSignalBus{}
	return NewNotificationFanout(store, bus, nil, testLogger()), store, bus
}

func TestDeliverSettlementNotifiesEveryParty(t *testing.T) {
	ctx := context.Background()
	fanout, store, bus := newFanoutFixture()

	res := domain.SettlementResult{
		Accepted: domain.Tender{ID: "t1", BuyerID: "alice", OfferCents: 15_000},
		Rejected: []domain.Tender{
			{ID: "t2", BuyerID: "bob", OfferCents: 12_000},
			{ID: "t3", BuyerID: "carol", OfferCents: 11_000},
		},
		Listing: domain.Listing{ID: "l1", Title: "Euro 5 cat"},
	}

	if err := fanout.DeliverSettlement(ctx, res); err != nil {
		t.Fatalf("DeliverSettlement: %v", err)
	}

	if store.count() != 3 {
		t.Fatalf("records = %d, want 3", store.count())
	}

	winner, err := store.ListByUser(ctx, "alice", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(winner) != 1 || winner[0].Kind != domain.NotificationOfferAccepted {
		t.Fatalf("winner records = %+v", winner)
	}
	if winner[0].DeliveredAt == nil {
		t.Fatal("pushed record not marked delivered")
	}

	loser, err := store.ListByUser(ctx, "bob", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(loser) != 1 || loser[0].Kind != domain.NotificationOfferRejected {
		t.Fatalf("loser records = %+v", loser)
	}

	// One push per record, each on the addressee's own channel.
	chans := bus.channels()
	want := map[string]bool{
		"notifications:alice": true,
		"notifications:bob":   true,
		"notifications:carol": true,
	}
	if len(chans) != 3 {
		t.Fatalf("pushes = %v, want 3", chans)
	}
	for _, ch := range chans {
		if !want[ch] {
			t.Fatalf("unexpected push channel %q", ch)
		}
	}
}

func TestDeliverReactivationDedupesBuyers(t *testing.T) {
	ctx := context.Background()
	fanout, store, _ := newFanoutFixture()

	listing := domain.Listing{ID: "l1", Title: "Euro 5 cat"}
	previous := []domain.Tender{
		{ID: "t1", BuyerID: "alice"},
		{ID: "t2", BuyerID: "alice"}, // second bid by the same buyer
		{ID: "t3", BuyerID: "bob"},
	}

	if err := fanout.DeliverReactivation(ctx, listing, previous); err != nil {
		t.Fatalf("DeliverReactivation: %v", err)
	}
	if store.count() != 2 {
		t.Fatalf("records = %d, want 2 (one per buyer)", store.count())
	}
}

func TestDeliverReactivationNoBiddersIsNoOp(t *testing.T) {
	fanout, store, bus := newFanoutFixture()

	if err := fanout.DeliverReactivation(context.Background(), domain.Listing{ID: "l1"}, nil); err != nil {
		t.Fatalf("DeliverReactivation: %v", err)
	}
	if store.count() != 0 || len(bus.channels()) != 0 {
		t.Fatal("no-op reactivation produced records or pushes")
	}
}

func TestMarkReadScopedToUser(t *testing.T) {
	ctx := context.Background()
	fanout, store, _ := newFanoutFixture()

	err := store.CreateBatch(ctx, []domain.Notification{{
		ID:        "n1",
		UserID:    "alice",
		Kind:      domain.NotificationOfferAccepted,
		CreatedAt: time.Now().UTC(),
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := fanout.MarkRead(ctx, "n1", "bob"); err == nil {
		t.Fatal("foreign MarkRead succeeded")
	}
	if err := fanout.MarkRead(ctx, "n1", "alice"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	records, err := fanout.Inbox(ctx, "alice", domain.ListOpts{})
	if err != nil {
		t.Fatalf("Inbox: %v", err)
	}
	if len(records) != 1 || records[0].ReadAt == nil {
		t.Fatalf("records = %+v", records)
	}
}

func TestSweepOnceRedeliversStaleRecords(t *testing.T) {
	ctx := context.Background()
	fanout, store, bus := newFanoutFixture()

	// One record old enough to re-push, one too fresh to touch.
	err := store.CreateBatch(ctx, []domain.Notification{
		{
			ID:        "n1",
			UserID:    "alice",
			Kind:      domain.NotificationOfferRejected,
			CreatedAt: time.Now().UTC().Add(-2 * time.Minute),
		},
		{
			ID:        "n2",
			UserID:    "bob",
			Kind:      domain.NotificationOfferRejected,
			CreatedAt: time.Now().UTC(),
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	locks := newFakeLockManager()
	if err := fanout.sweepOnce(ctx, locks); err != nil {
		t.Fatalf("sweepOnce: %v", err)
	}

	if chans := bus.channels(); len(chans) != 1 || chans[0] != "notifications:alice" {
		t.Fatalf("pushes = %v, want [notifications:alice]", chans)
	}
	redelivered, err := store.ListByUser(ctx, "alice", domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(redelivered) != 1 || redelivered[0].DeliveredAt == nil {
		t.Fatalf("stale record not marked delivered: %+v", redelivered)
	}

	// The lock was released, and nothing stale remains: a second pass is a
	// no-op.
	if err := fanout.sweepOnce(ctx, locks); err != nil {
		t.Fatalf("second sweepOnce: %v", err)
	}
	if chans := bus.channels(); len(chans) != 1 {
		t.Fatalf("second pass pushed again: %v", chans)
	}
}

func TestSweepOnceSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	fanout, store, bus := newFanoutFixture()

	err := store.CreateBatch(ctx, []domain.Notification{{
		ID:        "n1",
		UserID:    "alice",
		Kind:      domain.NotificationOfferRejected,
		CreatedAt: time.Now().UTC().Add(-2 * time.Minute),
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	locks := newFakeLockManager()
	if _, err := locks.Acquire(ctx, "locks:notification-redelivery", time.Minute); err != nil {
		t.Fatalf("hold lock: %v", err)
	}

	if err := fanout.sweepOnce(ctx, locks); err != nil {
		t.Fatalf("sweepOnce under held lock: %v", err)
	}
	if len(bus.channels()) != 0 {
		t.Fatalf("held lock did not skip the pass: %v", bus.channels())
	}
}

func TestDeliverWithoutBusLeavesUndelivered(t *testing.T) {
	ctx := context.Background()
	store := newFakeNotificationStore()
	fanout := NewNotificationFanout(store, nil, nil, testLogger())

	err := fanout.DeliverRejection(ctx, domain.Tender{
		ID:         "t1",
		ListingID:  "l1",
		BuyerID:    "alice",
		OfferCents: 12_000,
	})
	if err != nil {
		t.Fatalf("DeliverRejection: %v", err)
	}

	// Persisted but not pushed; the redelivery sweep picks it up later.
	stale, err := store.ListUndelivered(ctx, time.Now().UTC().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("ListUndelivered: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("undelivered = %d, want 1", len(stale))
	}
}
