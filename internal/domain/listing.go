package domain

import "time"

// ListingStatus tracks the listing lifecycle.
type ListingStatus string

const (
	ListingStatusDraft   ListingStatus = "draft"
	ListingStatusActive  ListingStatus = "active"
	ListingStatusSold    ListingStatus = "sold"
	ListingStatusExpired ListingStatus = "expired"
)

// Listing is a sellable item offered on the marketplace. Listings are created
// and expired outside this core; settlement only flips the status between
// active and sold.
type Listing struct {
	ID          string
	SellerID    string
	Title       string
	Description string
	PriceCents  int64 // starting ask, fixed-point: euros * 100
	WeightKg    float64
	Status      ListingStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	SoldAt      *time.Time
}

// Price returns the display price in euros.
func (l Listing) Price() float64 {
	return float64(l.PriceCents) / 100
}

// Sold reports whether the listing has been settled.
func (l Listing) Sold() bool {
	return l.Status == ListingStatusSold
}
