package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refmet/catmarket/internal/domain"
)

// BoughtItemStore implements domain.BoughtItemStore using PostgreSQL.
type BoughtItemStore struct {
	pool *pgxpool.Pool
}

// NewBoughtItemStore creates a new BoughtItemStore backed by the given
// connection pool.
func NewBoughtItemStore(pool *pgxpool.Pool) *BoughtItemStore {
	return &BoughtItemStore{pool: pool}
}

const itemSelectCols = `id, owner_id, listing_id, price_cents, weight_kg,
	pt_ppm, pd_ppm, rh_ppm, renumeration_pt, renumeration_pd, renumeration_rh,
	basket_id, purchased_at`

func scanItemFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.BoughtItem, error) {
	var i domain.BoughtItem
	err := scanner.Scan(
		&i.ID, &i.OwnerID, &i.ListingID, &i.PriceCents, &i.WeightKg,
		&i.PtPPM, &i.PdPPM, &i.RhPPM,
		&i.RenumerationPt, &i.RenumerationPd, &i.RenumerationRh,
		&i.BasketID, &i.PurchasedAt,
	)
	if err != nil {
		return domain.BoughtItem{}, err
	}
	return i, nil
}

func scanItemRows(rows pgx.Rows) ([]domain.BoughtItem, error) {
	var items []domain.BoughtItem
	for rows.Next() {
		i, err := scanItemFromRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// Create inserts a new bought item snapshot.
func (s *BoughtItemStore) Create(ctx context.Context, i domain.BoughtItem) error {
	const query = `
		INSERT INTO bought_items (
			id, owner_id, listing_id, price_cents, weight_kg,
			pt_ppm, pd_ppm, rh_ppm, renumeration_pt, renumeration_pd,
			renumeration_rh, basket_id, purchased_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		i.ID, i.OwnerID, i.ListingID, i.PriceCents, i.WeightKg,
		i.PtPPM, i.PdPPM, i.RhPPM,
		i.RenumerationPt, i.RenumerationPd, i.RenumerationRh,
		i.BasketID, i.PurchasedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bought item %s: %w", i.ID, err)
	}
	return nil
}

// GetByID retrieves a single bought item by ID.
func (s *BoughtItemStore) GetByID(ctx context.Context, id string) (domain.BoughtItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemSelectCols+` FROM bought_items WHERE id = $1`, id)

	i, err := scanItemFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BoughtItem{}, domain.ErrNotFound
		}
		return domain.BoughtItem{}, fmt.Errorf("postgres: get bought item %s: %w", id, err)
	}
	return i, nil
}

// ListByOwner returns the owner's bought items, newest purchase first.
func (s *BoughtItemStore) ListByOwner(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.BoughtItem, error) {
	query := `SELECT ` + itemSelectCols + ` FROM bought_items WHERE owner_id = $1 ORDER BY purchased_at DESC`
	args := []any{ownerID}
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
		return nil, fmt.Errorf("postgres: list bought items by owner: %w", err)
	}
	defer rows.Close()

	items, err := scanItemRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bought items by owner: %w", err)
	}
	return items, nil
}

// ListByBasket returns every item assigned to the basket.
func (s *BoughtItemStore) ListByBasket(ctx context.Context, basketID string) ([]domain.BoughtItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemSelectCols+` FROM bought_items
		 WHERE basket_id = $1 ORDER BY purchased_at DESC`, basketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bought items by basket: %w", err)
	}
	defer rows.Close()

	items, err := scanItemRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bought items by basket: %w", err)
	}
	return items, nil
}

// AssignBasket moves an item into a basket, or unassigns it when basketID is
// nil. Assigning an already-assigned item simply moves it; the single-basket
// invariant is the basket_id column itself.
func (s *BoughtItemStore) AssignBasket(ctx context.Context, itemID string, basketID *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bought_items SET basket_id = $2 WHERE id = $1`, itemID, basketID)
	if err != nil {
		return fmt.Errorf("postgres: assign bought item %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.BoughtItemStore = (*BoughtItemStore)(nil)
