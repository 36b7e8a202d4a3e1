package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refmet/catmarket/internal/domain"
)

// TenderStore implements domain.TenderStore using PostgreSQL. It is purely
// data access; settlement mutations live in SettlementStore so that every
// status change goes through one transactional path.
type TenderStore struct {
	pool *pgxpool.Pool
}

// NewTenderStore creates a new TenderStore backed by the given connection pool.
func NewTenderStore(pool *pgxpool.Pool) *TenderStore {
	return &TenderStore{pool: pool}
}

const tenderSelectCols = `id, listing_id, buyer_id, offer_cents, status, created_at, settled_at`

func scanTenderFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Tender, error) {
	var t domain.Tender
	var status string

	err := scanner.Scan(
		&t.ID, &t.ListingID, &t.BuyerID, &t.OfferCents,
		&status, &t.CreatedAt, &t.SettledAt,
	)
	if err != nil {
		return domain.Tender{}, err
	}

	t.Status = domain.TenderStatus(status)
	return t, nil
}

func scanTenderRows(rows pgx.Rows) ([]domain.Tender, error) {
	var tenders []domain.Tender
	for rows.Next() {
		t, err := scanTenderFromRow(rows)
		if err != nil {
			return nil, err
		}
		tenders = append(tenders, t)
	}
	return tenders, rows.Err()
}

// Create inserts a new tender.
func (s *TenderStore) Create(ctx context.Context, t domain.Tender) error {
	const query = `
		INSERT INTO tenders (id, listing_id, buyer_id, offer_cents, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.ListingID, t.BuyerID, t.OfferCents, string(t.Status), t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create tender %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a single tender by ID.
func (s *TenderStore) GetByID(ctx context.Context, id string) (domain.Tender, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenderSelectCols+` FROM tenders WHERE id = $1`, id)

	t, err := scanTenderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tender{}, domain.ErrNotFound
		}
		return domain.Tender{}, fmt.Errorf("postgres: get tender %s: %w", id, err)
	}
	return t, nil
}

// ListByListing returns every tender on a listing in display order: highest
// offer first, ties broken by earliest creation.
func (s *TenderStore) ListByListing(ctx context.Context, listingID string) ([]domain.Tender, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenderSelectCols+` FROM tenders
		 WHERE listing_id = $1
		 ORDER BY offer_cents DESC, created_at ASC, id ASC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tenders by listing: %w", err)
	}
	defer rows.Close()

	tenders, err := scanTenderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan tenders by listing: %w", err)
	}
	return tenders, nil
}

// ListByBuyer returns the buyer's tenders, newest first.
func (s *TenderStore) ListByBuyer(ctx context.Context, buyerID string, opts domain.ListOpts) ([]domain.Tender, error) {
	query := `SELECT ` + tenderSelectCols + ` FROM tenders WHERE buyer_id = $1 ORDER BY created_at DESC`
	args := []any{buyerID}
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
		return nil, fmt.Errorf("postgres: list tenders by buyer: %w", err)
	}
	defer rows.Close()

	tenders, err := scanTenderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan tenders by buyer: %w", err)
	}
	return tenders, nil
}

// ListBySeller returns tenders across all of the seller's listings for the
// seller overview, newest first.
func (s *TenderStore) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Tender, error) {
	query := `SELECT t.id, t.listing_id, t.buyer_id, t.offer_cents, t.status, t.created_at, t.settled_at
		FROM tenders t
		JOIN listings l ON l.id = t.listing_id
		WHERE l.seller_id = $1
		ORDER BY t.created_at DESC`
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
		return nil, fmt.Errorf("postgres: list tenders by seller: %w", err)
	}
	defer rows.Close()

	tenders, err := scanTenderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan tenders by seller: %w", err)
	}
	return tenders, nil
}

// GetAccepted returns the accepted tender of a listing, if any.
func (s *TenderStore) GetAccepted(ctx context.Context, listingID string) (domain.Tender, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenderSelectCols+` FROM tenders
		 WHERE listing_id = $1 AND status = 'accepted'`, listingID)

	t, err := scanTenderFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tender{}, domain.ErrNotFound
		}
		return domain.Tender{}, fmt.Errorf("postgres: get accepted tender for %s: %w", listingID, err)
	}
	return t, nil
}

// Compile-time interface check.
var _ domain.TenderStore = (*TenderStore)(nil)
