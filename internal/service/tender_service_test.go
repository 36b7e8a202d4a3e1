package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/refmet/catmarket/internal/domain"
)

type tenderFixture struct {
	svc      *TenderService
	listings *fakeListingStore
	tenders  *fakeTenderStore
	cache    *fakeListingCache
	bus      *fakeSignalBus
	audit    *fakeAuditStore
}

func newTenderFixture() *tenderFixture {
	listings := newFakeListingStore()
	tenders := newFakeTenderStore(listings)
	cache := newFakeListingCache()
	bus := &fakeSignalBus{}
	audit := &fakeAuditStore{}

	svc := NewTenderService(tenders, listings, cache, bus, audit, testLogger())
	return &tenderFixture{
		svc:      svc,
		listings: listings,
		tenders:  tenders,
		cache:    cache,
		bus:      bus,
		audit:    audit,
	}
}

func (f *tenderFixture) seedListing(t *testing.T, id, sellerID string, priceCents int64, status domain.ListingStatus) {
	t.Helper()
	err := f.listings.Create(context.Background(), domain.Listing{
		ID:         id,
		SellerID:   sellerID,
		Title:      "Euro 5 cat " + id,
		PriceCents: priceCents,
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed listing: %v", err)
	}
}

func TestSubmitTender(t *testing.T) {
	ctx := context.Background()
	f := newTenderFixture()
	f.seedListing(t, "l1", "seller", 10_000, domain.ListingStatusActive)

	tender, err := f.svc.Submit(ctx, "l1", "alice", 12_000)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if tender.ID == "" {
		t.Fatal("no ID assigned")
	}
	if tender.Status != domain.TenderStatusActive {
		t.Fatalf("status = %s, want active", tender.Status)
	}

	stored, err := f.tenders.GetByID(ctx, tender.ID)
	if err != nil {
		t.Fatalf("tender not persisted: %v", err)
	}
	if stored.OfferCents != 12_000 || stored.BuyerID != "alice" {
		t.Fatalf("stored = %+v", stored)
	}
	if chans := f.bus.channels(); len(chans) != 1 || chans[0] != "tenders" {
		t.Fatalf("bus publishes = %v, want [tenders]", chans)
	}
	if len(f.audit.events) != 1 || f.audit.events[0].event != "tender_submitted" {
		t.Fatalf("audit events = %+v", f.audit.events)
	}
}

func TestSubmitTenderValidation(t *testing.T) {
	ctx := context.Background()
	f := newTenderFixture()
	f.seedListing(t, "active", "seller", 10_000, domain.ListingStatusActive)
	f.seedListing(t, "sold", "seller", 10_000, domain.ListingStatusSold)

	if _, err := f.svc.Submit(ctx, "active", "alice", 15_000); err != nil {
		t.Fatalf("seed leading offer: %v", err)
	}

	cases := []struct {
		name       string
		listingID  string
		buyerID    string
		offerCents int64
	}{
		{"zero offer", "active", "bob", 0},
		{"negative offer", "active", "bob", -100},
		{"listing not active", "sold", "bob", 20_000},
		{"seller bids own listing", "active", "seller", 20_000},
		{"offer equals asking price", "active", "bob", 10_000},
		{"offer below asking price", "active", "bob", 9_000},
		{"offer equals highest active", "active", "bob", 15_000},
		{"offer below highest active", "active", "bob", 14_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tc.listingID, tc.buyerID, tc.offerCents)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}

func TestSubmitTenderOutbidsTerminalOffers(t *testing.T) {
	ctx := context.Background()
	f := newTenderFixture()
	f.seedListing(t, "l1", "seller", 10_000, domain.ListingStatusActive)

	// A rejected high offer must not block lower new bids.
	rejectedAt := time.Now().UTC()
	err := f.tenders.Create(ctx, domain.Tender{
		ID:         "old",
		ListingID:  "l1",
		BuyerID:    "alice",
		OfferCents: 50_000,
		Status:     domain.TenderStatusRejected,
		CreatedAt:  rejectedAt.Add(-time.Hour),
		SettledAt:  &rejectedAt,
	})
	if err != nil {
		t.Fatalf("seed rejected tender: %v", err)
	}

	if _, err := f.svc.Submit(ctx, "l1", "bob", 12_000); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestGetListingReadThroughCache(t *testing.T) {
	ctx := context.Background()
	f := newTenderFixture()
	f.seedListing(t, "l1", "seller", 10_000, domain.ListingStatusActive)

	first, err := f.svc.GetListing(ctx, "l1")
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if f.cache.setCount != 1 {
		t.Fatalf("cache sets = %d, want 1 after a miss", f.cache.setCount)
	}

	// Mutate the store behind the cache; a second read must serve the
	// cached snapshot.
	f.listings.mu.Lock()
	mutated := f.listings.listings["l1"]
	mutated.Title = "changed"
	f.listings.listings["l1"] = mutated
	f.listings.mu.Unlock()

	second, err := f.svc.GetListing(ctx, "l1")
	if err != nil {
		t.Fatalf("GetListing (cached): %v", err)
	}
	if second.Title != first.Title {
		t.Fatalf("cache not used: got %q", second.Title)
	}
	if f.cache.setCount != 1 {
		t.Fatalf("cache sets = %d, want 1 after a hit", f.cache.setCount)
	}
}

func TestGetListingUnknown(t *testing.T) {
	f := newTenderFixture()

	_, err := f.svc.GetListing(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListingBoardRanksTenders(t *testing.T) {
	ctx := context.Background()
	f := newTenderFixture()
	f.seedListing(t, "l1", "seller", 10_000, domain.ListingStatusActive)

	if _, err := f.svc.Submit(ctx, "l1", "alice", 12_000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.Submit(ctx, "l1", "bob", 15_000); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.Submit(ctx, "l1", "carol", 18_000); err != nil {
		t.Fatalf("submit: %v", err)
	}

	listing, tenders, err := f.svc.ListingBoard(ctx, "l1")
	if err != nil {
		t.Fatalf("ListingBoard: %v", err)
	}
	if listing.ID != "l1" {
		t.Fatalf("listing = %s", listing.ID)
	}
	if len(tenders) != 3 {
		t.Fatalf("tenders = %d, want 3", len(tenders))
	}
	for i := 1; i < len(tenders); i++ {
		if tenders[i-1].OfferCents < tenders[i].OfferCents {
			t.Fatalf("board not ranked: %d before %d",
				tenders[i-1].OfferCents, tenders[i].OfferCents)
		}
	}
}

func TestCreateListing(t *testing.T) {
	ctx := context.Background()
	f := newTenderFixture()

	listing, err := f.svc.CreateListing(ctx, domain.Listing{
		SellerID:   "seller",
		Title:      "DPF, 1.2 kg monolith",
		PriceCents: 25_000,
		WeightKg:   1.2,
	})
	if err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	if listing.ID == "" {
		t.Fatal("no ID assigned")
	}
	if listing.Status != domain.ListingStatusActive {
		t.Fatalf("status = %s, want active", listing.Status)
	}

	if _, err := f.listings.GetByID(ctx, listing.ID); err != nil {
		t.Fatalf("listing not persisted: %v", err)
	}
}

func TestCreateListingValidation(t *testing.T) {
	ctx := context.Background()
	f := newTenderFixture()

	cases := []struct {
		name    string
		listing domain.Listing
	}{
		{"missing seller", domain.Listing{Title: "x", PriceCents: 100}},
		{"missing title", domain.Listing{SellerID: "s", PriceCents: 100}},
		{"zero price", domain.Listing{SellerID: "s", Title: "x"}},
		{"negative weight", domain.Listing{SellerID: "s", Title: "x", PriceCents: 100, WeightKg: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateListing(ctx, tc.listing)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("got %v, want ErrValidation", err)
			}
		})
	}
}
