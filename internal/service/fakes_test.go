package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/refmet/catmarket/internal/domain"
)

// In-memory store fakes shared by the service tests. All fakes are safe for
// concurrent use; the settlement fake mirrors the transactional semantics of
// the real store by applying the whole cascade under one lock.

type fakeListingStore struct {
	mu       sync.Mutex
	listings map[string]domain.Listing
}

func newFakeListingStore() *fakeListingStore {
	return &fakeListingStore{listings: make(map[string]domain.Listing)}
}

func (s *fakeListingStore) Create(_ context.Context, listing domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.ID] = listing
	return nil
}

func (s *fakeListingStore) GetByID(_ context.Context, id string) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return listing, nil
}

func (s *fakeListingStore) ListBySeller(_ context.Context, sellerID string, _ domain.ListOpts) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.SellerID == sellerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeListingStore) Reactivate(_ context.Context, id string, at time.Time) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listing, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	if listing.Status != domain.ListingStatusSold {
		return domain.Listing{}, fmt.Errorf("listing is %s: %w", listing.Status, domain.ErrConflict)
	}
	listing.Status = domain.ListingStatusActive
	listing.SoldAt = nil
	listing.UpdatedAt = at
	s.listings[id] = listing
	return listing, nil
}

func (s *fakeListingStore) ListSoldBefore(_ context.Context, before time.Time, limit int) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.listings {
		if l.Status == domain.ListingStatusSold && l.SoldAt != nil && l.SoldAt.Before(before) {
			out = append(out, l)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeListingStore) MarkArchived(_ context.Context, _ string, _ time.Time) error {
	return nil
}

type fakeTenderStore struct {
	mu       sync.Mutex
	tenders  map[string]domain.Tender
	listings *fakeListingStore
}

func newFakeTenderStore(listings *fakeListingStore) *fakeTenderStore {
	return &fakeTenderStore{
		tenders:  make(map[string]domain.Tender),
		listings: listings,
	}
}

func (s *fakeTenderStore) Create(_ context.Context, tender domain.Tender) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenders[tender.ID] = tender
	return nil
}

func (s *fakeTenderStore) GetByID(_ context.Context, id string) (domain.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tender, ok := s.tenders[id]
	if !ok {
		return domain.Tender{}, domain.ErrNotFound
	}
	return tender, nil
}

func (s *fakeTenderStore) ListByListing(_ context.Context, listingID string) ([]domain.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Tender
	for _, t := range s.tenders {
		if t.ListingID == listingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTenderStore) ListByBuyer(_ context.Context, buyerID string, _ domain.ListOpts) ([]domain.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Tender
	for _, t := range s.tenders {
		if t.BuyerID == buyerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTenderStore) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Tender, error) {
	listings, err := s.listings.ListBySeller(ctx, sellerID, opts)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(listings))
	for _, l := range listings {
		owned[l.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Tender
	for _, t := range s.tenders {
		if owned[t.ListingID] {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTenderStore) GetAccepted(_ context.Context, listingID string) (domain.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenders {
		if t.ListingID == listingID && t.Status == domain.TenderStatusAccepted {
			return t, nil
		}
	}
	return domain.Tender{}, domain.ErrNotFound
}

// fakeSettlementStore applies the accept cascade against the listing and
// tender fakes under a single lock, mirroring the one-transaction semantics
// of the real store.
type fakeSettlementStore struct {
	mu       sync.Mutex
	listings *fakeListingStore
	tenders  *fakeTenderStore
}

func newFakeSettlementStore(listings *fakeListingStore, tenders *fakeTenderStore) *fakeSettlementStore {
	return &fakeSettlementStore{listings: listings, tenders: tenders}
}

func (s *fakeSettlementStore) AcceptTender(ctx context.Context, listingID, tenderID string, at time.Time) (domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	target, err := s.tenders.GetByID(ctx, tenderID)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	outcome, err := domain.Transition(target, domain.TenderStatusAccepted, listing.Status, at)
	if err != nil {
		return domain.SettlementResult{}, err
	}
	if outcome.AlreadySettled {
		return domain.SettlementResult{}, fmt.Errorf("tender is terminal: %w", domain.ErrConflict)
	}

	siblings, err := s.tenders.ListByListing(ctx, listingID)
	if err != nil {
		return domain.SettlementResult{}, err
	}

	var rejected []domain.Tender
	for _, sib := range siblings {
		if sib.ID == tenderID || sib.Status != domain.TenderStatusActive {
			continue
		}
		out, err := domain.Transition(sib, domain.TenderStatusRejected, listing.Status, at)
		if err != nil {
			return domain.SettlementResult{}, err
		}
		rejected = append(rejected, out.Tender)
	}

	s.tenders.mu.Lock()
	s.tenders.tenders[tenderID] = outcome.Tender
	for _, r := range rejected {
		s.tenders.tenders[r.ID] = r
	}
	s.tenders.mu.Unlock()

	soldAt := at.UTC()
	listing.Status = domain.ListingStatusSold
	listing.SoldAt = &soldAt
	listing.UpdatedAt = soldAt
	s.listings.mu.Lock()
	s.listings.listings[listingID] = listing
	s.listings.mu.Unlock()

	return domain.SettlementResult{
		Accepted: outcome.Tender,
		Rejected: rejected,
		Listing:  listing,
	}, nil
}

func (s *fakeSettlementStore) RejectTender(ctx context.Context, tenderID string, at time.Time) (domain.Tender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.tenders.GetByID(ctx, tenderID)
	if err != nil {
		return domain.Tender{}, err
	}
	listing, err := s.listings.GetByID(ctx, target.ListingID)
	if err != nil {
		return domain.Tender{}, err
	}

	outcome, err := domain.Transition(target, domain.TenderStatusRejected, listing.Status, at)
	if err != nil {
		return domain.Tender{}, err
	}
	if outcome.AlreadySettled {
		return outcome.Tender, nil
	}

	s.tenders.mu.Lock()
	s.tenders.tenders[tenderID] = outcome.Tender
	s.tenders.mu.Unlock()

	return outcome.Tender, nil
}

type fakeBasketStore struct {
	mu      sync.Mutex
	baskets map[string]domain.Basket
	items   *fakeBoughtItemStore
}

func newFakeBasketStore(items *fakeBoughtItemStore) *fakeBasketStore {
	return &fakeBasketStore{
		baskets: make(map[string]domain.Basket),
		items:   items,
	}
}

func (s *fakeBasketStore) Create(_ context.Context, basket domain.Basket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baskets[basket.ID] = basket
	return nil
}

func (s *fakeBasketStore) GetByID(_ context.Context, id string) (domain.Basket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	basket, ok := s.baskets[id]
	if !ok {
		return domain.Basket{}, domain.ErrNotFound
	}
	return basket, nil
}

func (s *fakeBasketStore) ListByOwner(_ context.Context, ownerID string, _ domain.ListOpts) ([]domain.Basket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Basket
	for _, b := range s.baskets {
		if b.OwnerID == ownerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBasketStore) Update(_ context.Context, basket domain.Basket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.baskets[basket.ID]; !ok {
		return domain.ErrNotFound
	}
	s.baskets[basket.ID] = basket
	return nil
}

func (s *fakeBasketStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.baskets[id]; !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(s.baskets, id)
	s.mu.Unlock()

	// Mirror the real store: deleting a basket unassigns its items.
	s.items.mu.Lock()
	defer s.items.mu.Unlock()
	for itemID, item := range s.items.items {
		if item.BasketID != nil && *item.BasketID == id {
			item.BasketID = nil
			s.items.items[itemID] = item
		}
	}
	return nil
}

type fakeBoughtItemStore struct {
	mu    sync.Mutex
	items map[string]domain.BoughtItem
}

func newFakeBoughtItemStore() *fakeBoughtItemStore {
	return &fakeBoughtItemStore{items: make(map[string]domain.BoughtItem)}
}

func (s *fakeBoughtItemStore) Create(_ context.Context, item domain.BoughtItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	return nil
}

func (s *fakeBoughtItemStore) GetByID(_ context.Context, id string) (domain.BoughtItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return domain.BoughtItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (s *fakeBoughtItemStore) ListByOwner(_ context.Context, ownerID string, _ domain.ListOpts) ([]domain.BoughtItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BoughtItem
	for _, item := range s.items {
		if item.OwnerID == ownerID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *fakeBoughtItemStore) ListByBasket(_ context.Context, basketID string) ([]domain.BoughtItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BoughtItem
	for _, item := range s.items {
		if item.BasketID != nil && *item.BasketID == basketID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *fakeBoughtItemStore) AssignBasket(_ context.Context, itemID string, basketID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return domain.ErrNotFound
	}
	item.BasketID = basketID
	s.items[itemID] = item
	return nil
}

type fakeNotificationStore struct {
	mu      sync.Mutex
	records map[string]domain.Notification
}

func newFakeNotificationStore() *fakeNotificationStore {
	return &fakeNotificationStore{records: make(map[string]domain.Notification)}
}

func (s *fakeNotificationStore) CreateBatch(_ context.Context, notifications []domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range notifications {
		s.records[n.ID] = n
	}
	return nil
}

func (s *fakeNotificationStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.records {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *fakeNotificationStore) MarkRead(_ context.Context, id, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.records[id]
	if !ok || n.UserID != userID {
		return domain.ErrNotFound
	}
	n.ReadAt = &at
	s.records[id] = n
	return nil
}

func (s *fakeNotificationStore) MarkDelivered(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if n, ok := s.records[id]; ok {
			n.DeliveredAt = &at
			s.records[id] = n
		}
	}
	return nil
}

func (s *fakeNotificationStore) ListUndelivered(_ context.Context, before time.Time, limit int) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.records {
		if n.DeliveredAt == nil && n.CreatedAt.Before(before) {
			out = append(out, n)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeNotificationStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeListingCache struct {
	mu          sync.Mutex
	listings    map[string]domain.Listing
	invalidated []string
	setCount    int
}

func newFakeListingCache() *fakeListingCache {
	return &fakeListingCache{listings: make(map[string]domain.Listing)}
}

func (c *fakeListingCache) Set(_ context.Context, listing domain.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[listing.ID] = listing
	c.setCount++
	return nil
}

func (c *fakeListingCache) Get(_ context.Context, id string) (domain.Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	listing, ok := c.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return listing, nil
}

func (c *fakeListingCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listings, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type publishedSignal struct {
	channel string
	payload []byte
}

type fakeSignalBus struct {
	mu        sync.Mutex
	published []publishedSignal
}

func (b *fakeSignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, publishedSignal{channel: channel, payload: payload})
	return nil
}

func (b *fakeSignalBus) Subscribe(ctx context.Context, _ string) (<-chan domain.Signal, error) {
	ch := make(chan domain.Signal)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *fakeSignalBus) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	for i, p := range b.published {
		out[i] = p.channel
	}
	return out
}

type fakeLockManager struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{held: make(map[string]bool)}
}

func (m *fakeLockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = true
	m.acquired = append(m.acquired, key)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, key)
	}, nil
}

type auditedEvent struct {
	event  string
	detail map[string]any
}

type fakeAuditStore struct {
	mu     sync.Mutex
	events []auditedEvent
}

func (s *fakeAuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, auditedEvent{event: event, detail: detail})
	return nil
}

func (s *fakeAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AuditEntry, len(s.events))
	for i, e := range s.events {
		out[i] = domain.AuditEntry{Event: e.event, Detail: e.detail}
	}
	return out, nil
}

// recordingNotifier counts fan-out calls so settlement tests can assert the
// engine delivered the right outcomes.
type recordingNotifier struct {
	mu            sync.Mutex
	settlements   []domain.SettlementResult
	rejections    []domain.Tender
	reactivations int
}

func (n *recordingNotifier) DeliverSettlement(_ context.Context, res domain.SettlementResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settlements = append(n.settlements, res)
	return nil
}

func (n *recordingNotifier) DeliverRejection(_ context.Context, tender domain.Tender) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rejections = append(n.rejections, tender)
	return nil
}

func (n *recordingNotifier) DeliverReactivation(_ context.Context, _ domain.Listing, _ []domain.Tender) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reactivations++
	return nil
}

var _ SettlementNotifier = (*recordingNotifier)(nil)
