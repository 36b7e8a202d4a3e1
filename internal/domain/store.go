package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ListingStore persists listings. Creation and expiry happen outside this
// core; settlement only reads listings and flips their status.
type ListingStore interface {
	Create(ctx context.Context, listing Listing) error
	GetByID(ctx context.Context, id string) (Listing, error)
	ListBySeller(ctx context.Context, sellerID string, opts ListOpts) ([]Listing, error)
	// Reactivate moves a listing from sold back to active. It returns
	// ErrConflict when the listing is not currently sold.
	Reactivate(ctx context.Context, id string, at time.Time) (Listing, error)
	// ListSoldBefore returns sold listings settled strictly before the
	// cutoff that have not been archived yet.
	ListSoldBefore(ctx context.Context, before time.Time, limit int) ([]Listing, error)
	MarkArchived(ctx context.Context, id string, at time.Time) error
}

// TenderStore persists tenders. Tenders are never deleted.
type TenderStore interface {
	Create(ctx context.Context, tender Tender) error
	GetByID(ctx context.Context, id string) (Tender, error)
	ListByListing(ctx context.Context, listingID string) ([]Tender, error)
	ListByBuyer(ctx context.Context, buyerID string, opts ListOpts) ([]Tender, error)
	// ListBySeller returns tenders across all of the seller's listings, for
	// the seller overview screen.
	ListBySeller(ctx context.Context, sellerID string, opts ListOpts) ([]Tender, error)
	// GetAccepted returns the single accepted tender of a listing, or
	// ErrNotFound when the listing has none.
	GetAccepted(ctx context.Context, listingID string) (Tender, error)
}

// SettlementStore executes the settlement mutations. Each method is a single
// atomic unit of work scoped to one listing and its tender set; concurrent
// calls against the same listing serialize on the listing row.
type SettlementStore interface {
	// AcceptTender transitions the target tender to accepted, every other
	// active tender of the same listing to rejected, and the listing to
	// sold, all in one transaction. It returns ErrConflict when the listing
	// is already sold or the target tender is no longer active at commit
	// time.
	AcceptTender(ctx context.Context, listingID, tenderID string, at time.Time) (SettlementResult, error)
	// RejectTender transitions a single active tender to rejected. Sibling
	// tenders and the listing are untouched. A tender already in a terminal
	// state is returned unchanged; an active tender on a sold listing
	// returns ErrConflict.
	RejectTender(ctx context.Context, tenderID string, at time.Time) (Tender, error)
}

// BasketStore persists baskets. Delete unassigns the basket's items in the
// same transaction; items themselves are never deleted here.
type BasketStore interface {
	Create(ctx context.Context, basket Basket) error
	GetByID(ctx context.Context, id string) (Basket, error)
	ListByOwner(ctx context.Context, ownerID string, opts ListOpts) ([]Basket, error)
	Update(ctx context.Context, basket Basket) error
	Delete(ctx context.Context, id string) error
}

// BoughtItemStore persists purchased-listing snapshots.
type BoughtItemStore interface {
	Create(ctx context.Context, item BoughtItem) error
	GetByID(ctx context.Context, id string) (BoughtItem, error)
	ListByOwner(ctx context.Context, ownerID string, opts ListOpts) ([]BoughtItem, error)
	ListByBasket(ctx context.Context, basketID string) ([]BoughtItem, error)
	// AssignBasket moves an item into the given basket, or unassigns it when
	// basketID is nil. An item belongs to at most one basket; assigning an
	// already-assigned item moves it.
	AssignBasket(ctx context.Context, itemID string, basketID *string) error
}

// NotificationStore persists per-user notification records.
type NotificationStore interface {
	CreateBatch(ctx context.Context, notifications []Notification) error
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
	MarkDelivered(ctx context.Context, ids []string, at time.Time) error
	// ListUndelivered returns notification records created before the cutoff
	// whose push delivery has not been confirmed, for the redelivery sweep.
	ListUndelivered(ctx context.Context, before time.Time, limit int) ([]Notification, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
