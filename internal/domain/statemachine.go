package domain

import (
	"fmt"
	"time"
)

// TransitionOutcome is the result of applying a status change to a tender.
type TransitionOutcome struct {
	Tender Tender
	// AlreadySettled is set when the tender was in a terminal state before
	// the transition was attempted. The tender is returned unchanged and the
	// caller should treat the operation as a harmless no-op (duplicate
	// click, client retry after timeout).
	AlreadySettled bool
}

// Transition applies the tender state machine:
//
//	active → accepted   only while the listing is not sold
//	active → rejected   only while the listing is not sold
//	accepted, rejected  absorbing; any further attempt is a flagged no-op
//
// A transition attempted on an active tender of a sold listing returns
// ErrConflict: once a listing settles, its tenders are frozen until an
// explicit reactivation, and a concurrent settlement must surface rather
// than silently double-settle.
func Transition(t Tender, to TenderStatus, listingStatus ListingStatus, now time.Time) (TransitionOutcome, error) {
	if t.Terminal() {
		return TransitionOutcome{Tender: t, AlreadySettled: true}, nil
	}

	switch to {
	case TenderStatusAccepted, TenderStatusRejected:
	default:
		return TransitionOutcome{}, fmt.Errorf("%w: illegal tender transition %s -> %s", ErrValidation, t.Status, to)
	}

	if listingStatus == ListingStatusSold {
		return TransitionOutcome{}, fmt.Errorf("%w: listing already sold", ErrConflict)
	}

	settled := now.UTC()
	t.Status = to
	t.SettledAt = &settled
	return TransitionOutcome{Tender: t}, nil
}
