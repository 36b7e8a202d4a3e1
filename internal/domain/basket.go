package domain

import "time"

// Basket is a named, user-owned grouping of bought items. Deleting a basket
// unassigns its items; it never deletes them.
type Basket struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BoughtItem is the purchased-listing snapshot retained after a sale. The
// per-metal fields drive the basket valuation: ppm values express the metal
// share of the item weight and the renumeration factors scale the payout.
// Absent fields stay zero and contribute nothing to totals.
type BoughtItem struct {
	ID        string
	OwnerID   string // the buyer
	ListingID string
	// PriceCents is the price actually paid, fixed-point euros * 100.
	PriceCents int64
	WeightKg   float64
	PtPPM      float64
	PdPPM      float64
	RhPPM      float64
	// Renumeration factors are payout multipliers per metal; not
	// necessarily 1.
	RenumerationPt float64
	RenumerationPd float64
	RenumerationRh float64
	// BasketID is nil while the item is unassigned. An item belongs to at
	// most one basket at a time.
	BasketID    *string
	PurchasedAt time.Time
}

// Price returns the display price paid in euros.
func (i BoughtItem) Price() float64 {
	return float64(i.PriceCents) / 100
}
