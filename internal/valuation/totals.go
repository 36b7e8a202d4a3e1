// Package valuation computes financial and material-content totals over
// bought items. All functions are pure: no I/O, no hidden state, output
// invariant under input reordering.
package valuation

import "github.com/refmet/catmarket/internal/domain"

// BasketTotals aggregates an item set: the money paid and the
// payout-weighted precious-metal masses.
type BasketTotals struct {
	ValuePaidCents int64   `json:"value_paid_cents"`
	PtGrams        float64 `json:"pt_grams"`
	PdGrams        float64 `json:"pd_grams"`
	RhGrams        float64 `json:"rh_grams"`
}

// ValuePaid returns the display total in euros.
func (t BasketTotals) ValuePaid() float64 {
	return float64(t.ValuePaidCents) / 100
}

// ComputeBasketTotals sums price and per-metal content over items. Zero or
// missing numeric fields contribute nothing; a partial total is preferable
// to failing a summary view. The metal mass follows the marketplace payout
// convention: weight * ppm / 1000 * renumeration.
func ComputeBasketTotals(items []domain.BoughtItem) BasketTotals {
	var totals BasketTotals
	for _, item := range items {
		totals.ValuePaidCents += item.PriceCents
		totals.PtGrams += metalGrams(item.WeightKg, item.PtPPM, item.RenumerationPt)
		totals.PdGrams += metalGrams(item.WeightKg, item.PdPPM, item.RenumerationPd)
		totals.RhGrams += metalGrams(item.WeightKg, item.RhPPM, item.RenumerationRh)
	}
	return totals
}

// metalGrams converts a parts-per-million content share of the item weight
// into payout grams. The /1000 scaling is the established convention for
// these records; do not "simplify" it.
func metalGrams(weightKg, ppm, renumeration float64) float64 {
	return weightKg * ppm / 1000 * renumeration
}
