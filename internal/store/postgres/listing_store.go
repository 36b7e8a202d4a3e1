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

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a new ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const listingSelectCols = `id, seller_id, title, description, price_cents,
	weight_kg, status, created_at, updated_at, sold_at`

func scanListingFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Listing, error) {
	var l domain.Listing
	var status string

	err := scanner.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Description, &l.PriceCents,
		&l.WeightKg, &status, &l.CreatedAt, &l.UpdatedAt, &l.SoldAt,
	)
	if err != nil {
		return domain.Listing{}, err
	}

	l.Status = domain.ListingStatus(status)
	return l, nil
}

func scanListingRows(rows pgx.Rows) ([]domain.Listing, error) {
	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListingFromRow(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// Create inserts a new listing.
func (s *ListingStore) Create(ctx context.Context, l domain.Listing) error {
	const query = `
		INSERT INTO listings (
			id, seller_id, title, description, price_cents,
			weight_kg, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`

	_, err := s.pool.Exec(ctx, query,
		l.ID, l.SellerID, l.Title, l.Description, l.PriceCents,
		l.WeightKg, string(l.Status), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create listing %s: %w", l.ID, err)
	}
	return nil
}

// GetByID retrieves a single listing by ID.
func (s *ListingStore) GetByID(ctx context.Context, id string) (domain.Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingSelectCols+` FROM listings WHERE id = $1`, id)

	l, err := scanListingFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, fmt.Errorf("postgres: get listing %s: %w", id, err)
	}
	return l, nil
}

// ListBySeller returns the seller's listings, newest first.
func (s *ListingStore) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectCols + ` FROM listings WHERE seller_id = $1 ORDER BY created_at DESC`
	args := []any{sellerID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list listings by seller: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan listings by seller: %w", err)
	}
	return listings, nil
}

// Reactivate moves a sold listing back to active. The status predicate makes
// the update a compare-and-swap: reactivating a listing that is not sold
// changes nothing and reports ErrConflict.
func (s *ListingStore) Reactivate(ctx context.Context, id string, at time.Time) (domain.Listing, error) {
	const query = `
		UPDATE listings
		SET status = 'active', sold_at = NULL, archived_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'sold'
		RETURNING ` + listingSelectCols

	row := s.pool.QueryRow(ctx, query, id, at)
	l, err := scanListingFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing listing from one in the wrong state.
			if _, getErr := s.GetByID(ctx, id); errors.Is(getErr, domain.ErrNotFound) {
				return domain.Listing{}, domain.ErrNotFound
			}
			return domain.Listing{}, fmt.Errorf("%w: listing %s is not sold", domain.ErrConflict, id)
		}
		return domain.Listing{}, fmt.Errorf("postgres: reactivate listing %s: %w", id, err)
	}
	return l, nil
}

// ListSoldBefore returns unarchived listings sold strictly before the cutoff.
func (s *ListingStore) ListSoldBefore(ctx context.Context, before time.Time, limit int) ([]domain.Listing, error) {
	query := `SELECT ` + listingSelectCols + ` FROM listings
		WHERE status = 'sold' AND archived_at IS NULL AND sold_at < $1
		ORDER BY sold_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sold listings: %w", err)
	}
	defer rows.Close()

	listings, err := scanListingRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan sold listings: %w", err)
	}
	return listings, nil
}

// MarkArchived records that the listing's settlement has been exported.
func (s *ListingStore) MarkArchived(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET archived_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("postgres: mark listing archived %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.ListingStore = (*ListingStore)(nil)
