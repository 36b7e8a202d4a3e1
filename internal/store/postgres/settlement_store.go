package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refmet/catmarket/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL. Every
// settlement mutation runs in one transaction that locks the listing row, so
// at most one tender per listing can ever reach accepted no matter how many
// sessions race on it.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given
// connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// AcceptTender applies the full acceptance cascade atomically:
//
//  1. lock the listing row (SELECT ... FOR UPDATE) and verify it is not sold
//  2. verify the target tender is still active
//  3. reject every other active tender on the listing
//  4. accept the target tender
//  5. mark the listing sold, with a status predicate as a final CAS
//
// A concurrent settlement that committed first surfaces as ErrConflict; the
// engine decides whether that is a retryable AlreadySettled or a real loss.
func (s *SettlementStore) AcceptTender(ctx context.Context, listingID, tenderID string, at time.Time) (domain.SettlementResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the listing for the duration of the settlement.
	row := tx.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings WHERE id = $1 FOR UPDATE`, listingID)
	listing, err := scanListingFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementResult{}, domain.ErrNotFound
		}
		return domain.SettlementResult{}, fmt.Errorf("postgres: lock listing %s: %w", listingID, err)
	}
	if listing.Status == domain.ListingStatusSold {
		return domain.SettlementResult{}, fmt.Errorf("%w: listing %s already sold", domain.ErrConflict, listingID)
	}

	// The target must still be active; a tender rejected or accepted by an
	// earlier settlement is a conflict at this level.
	row = tx.QueryRow(ctx,
		`SELECT `+tenderSelectCols+` FROM tenders
		 WHERE id = $1 AND listing_id = $2 FOR UPDATE`, tenderID, listingID)
	target, err := scanTenderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementResult{}, domain.ErrNotFound
		}
		return domain.SettlementResult{}, fmt.Errorf("postgres: lock tender %s: %w", tenderID, err)
	}
	if target.Status != domain.TenderStatusActive {
		return domain.SettlementResult{}, fmt.Errorf("%w: tender %s is %s", domain.ErrConflict, tenderID, target.Status)
	}

	// Reject the rest of the field.
	rows, err := tx.Query(ctx,
		`UPDATE tenders SET status = 'rejected', settled_at = $3
		 WHERE listing_id = $1 AND status = 'active' AND id <> $2
		 RETURNING `+tenderSelectCols, listingID, tenderID, at)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: reject competing tenders: %w", err)
	}
	rejected, err := scanTenderRows(rows)
	rows.Close()
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: scan rejected tenders: %w", err)
	}

	// Accept the target.
	row = tx.QueryRow(ctx,
		`UPDATE tenders SET status = 'accepted', settled_at = $2
		 WHERE id = $1 RETURNING `+tenderSelectCols, tenderID, at)
	accepted, err := scanTenderFromRow(row)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: accept tender %s: %w", tenderID, err)
	}

	// Close the listing. The predicate repeats the sold check so that even
	// under a weaker isolation level the transition succeeds exactly once.
	row = tx.QueryRow(ctx,
		`UPDATE listings SET status = 'sold', sold_at = $2, updated_at = $2
		 WHERE id = $1 AND status <> 'sold'
		 RETURNING `+listingSelectCols, listingID, at)
	listing, err = scanListingFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementResult{}, fmt.Errorf("%w: listing %s sold concurrently", domain.ErrConflict, listingID)
		}
		return domain.SettlementResult{}, fmt.Errorf("postgres: close listing %s: %w", listingID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SettlementResult{}, fmt.Errorf("postgres: commit settlement: %w", err)
	}

	return domain.SettlementResult{
		Accepted: accepted,
		Rejected: rejected,
		Listing:  listing,
	}, nil
}

// RejectTender rejects a single tender. No cascade, no listing mutation. A
// tender already in a terminal state is returned unchanged; rejecting an
// active tender on a sold listing is refused with ErrConflict.
func (s *SettlementStore) RejectTender(ctx context.Context, tenderID string, at time.Time) (domain.Tender, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Tender{}, fmt.Errorf("postgres: begin reject: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+tenderSelectCols+` FROM tenders WHERE id = $1 FOR UPDATE`, tenderID)
	tender, err := scanTenderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tender{}, domain.ErrNotFound
		}
		return domain.Tender{}, fmt.Errorf("postgres: lock tender %s: %w", tenderID, err)
	}

	if tender.Terminal() {
		// Idempotent retry; nothing to do.
		if err := tx.Commit(ctx); err != nil {
			return domain.Tender{}, fmt.Errorf("postgres: commit reject: %w", err)
		}
		return tender, nil
	}

	var listingStatus string
	err = tx.QueryRow(ctx,
		`SELECT status FROM listings WHERE id = $1`, tender.ListingID,
	).Scan(&listingStatus)
	if err != nil {
		return domain.Tender{}, fmt.Errorf("postgres: read listing %s: %w", tender.ListingID, err)
	}
	if domain.ListingStatus(listingStatus) == domain.ListingStatusSold {
		return domain.Tender{}, fmt.Errorf("%w: listing %s already sold", domain.ErrConflict, tender.ListingID)
	}

	row = tx.QueryRow(ctx,
		`UPDATE tenders SET status = 'rejected', settled_at = $2
		 WHERE id = $1 RETURNING `+tenderSelectCols, tenderID, at)
	tender, err = scanTenderFromRow(row)
	if err != nil {
		return domain.Tender{}, fmt.Errorf("postgres: reject tender %s: %w", tenderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Tender{}, fmt.Errorf("postgres: commit reject: %w", err)
	}
	return tender, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)
