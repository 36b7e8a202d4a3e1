package domain

import (
	"sort"
	"time"
)

// TenderStatus tracks a tender through its lifecycle. A tender starts active
// and ends in exactly one of the two terminal states.
type TenderStatus string

const (
	TenderStatusActive   TenderStatus = "active"
	TenderStatusAccepted TenderStatus = "accepted"
	TenderStatusRejected TenderStatus = "rejected"
)

// Tender is a buyer's offer against exactly one listing. Tenders are never
// deleted; settled ones remain as the audit trail of the sale.
type Tender struct {
	ID         string
	ListingID  string
	BuyerID    string
	OfferCents int64 // fixed-point: euros * 100
	Status     TenderStatus
	CreatedAt  time.Time
	SettledAt  *time.Time
}

// Offer returns the display offer amount in euros.
func (t Tender) Offer() float64 {
	return float64(t.OfferCents) / 100
}

// Terminal reports whether the tender has reached an absorbing state.
func (t Tender) Terminal() bool {
	return t.Status == TenderStatusAccepted || t.Status == TenderStatusRejected
}

// RankTenders sorts tenders into display order: highest offer first, ties
// broken by earliest creation time, then by ID for determinism. Ranking is
// presentation only; acceptance is always an explicit seller choice and the
// engine never auto-accepts the top entry.
func RankTenders(tenders []Tender) {
	sort.SliceStable(tenders, func(i, j int) bool {
		if tenders[i].OfferCents != tenders[j].OfferCents {
			return tenders[i].OfferCents > tenders[j].OfferCents
		}
		if !tenders[i].CreatedAt.Equal(tenders[j].CreatedAt) {
			return tenders[i].CreatedAt.Before(tenders[j].CreatedAt)
		}
		return tenders[i].ID < tenders[j].ID
	})
}

// HighestActiveOffer returns the largest offer among active tenders, or 0
// when none are active. Used by the submission path to enforce that each new
// bid outbids the current leader.
func HighestActiveOffer(tenders []Tender) int64 {
	var max int64
	for _, t := range tenders {
		if t.Status == TenderStatusActive && t.OfferCents > max {
			max = t.OfferCents
		}
	}
	return max
}
