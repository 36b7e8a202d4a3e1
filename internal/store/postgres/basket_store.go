package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refmet/catmarket/internal/domain"
)

// BasketStore implements domain.BasketStore using PostgreSQL.
type BasketStore struct {
	pool *pgxpool.Pool
}

// NewBasketStore creates a new BasketStore backed by the given connection pool.
func NewBasketStore(pool *pgxpool.Pool) *BasketStore {
	return &BasketStore{pool: pool}
}

const basketSelectCols = `id, owner_id, name, description, created_at, updated_at`

func scanBasketFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Basket, error) {
	var b domain.Basket
	err := scanner.Scan(
		&b.ID, &b.OwnerID, &b.Name, &b.Description, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.Basket{}, err
	}
	return b, nil
}

// Create inserts a new basket.
func (s *BasketStore) Create(ctx context.Context, b domain.Basket) error {
	const query = `
		INSERT INTO baskets (id, owner_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	_, err := s.pool.Exec(ctx, query, b.ID, b.OwnerID, b.Name, b.Description, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create basket %s: %w", b.ID, err)
	}
	return nil
}

// GetByID retrieves a single basket by ID.
func (s *BasketStore) GetByID(ctx context.Context, id string) (domain.Basket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+basketSelectCols+` FROM baskets WHERE id = $1`, id)

	b, err := scanBasketFromRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Basket{}, domain.ErrNotFound
		}
		return domain.Basket{}, fmt.Errorf("postgres: get basket %s: %w", id, err)
	}
	return b, nil
}

// ListByOwner returns the owner's baskets, newest first.
func (s *BasketStore) ListByOwner(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.Basket, error) {
	query := `SELECT ` + basketSelectCols + ` FROM baskets WHERE owner_id = $1 ORDER BY created_at DESC`
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
		return nil, fmt.Errorf("postgres: list baskets by owner: %w", err)
	}
	defer rows.Close()

	var baskets []domain.Basket
	for rows.Next() {
		b, err := scanBasketFromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan basket: %w", err)
		}
		baskets = append(baskets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list baskets rows: %w", err)
	}
	return baskets, nil
}

// Update changes the basket's name and description.
func (s *BasketStore) Update(ctx context.Context, b domain.Basket) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE baskets SET name = $2, description = $3, updated_at = NOW() WHERE id = $1`,
		b.ID, b.Name, b.Description)
	if err != nil {
		return fmt.Errorf("postgres: update basket %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a basket and unassigns its items in the same transaction.
// Items are never deleted here.
func (s *BasketStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin delete basket: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE bought_items SET basket_id = NULL WHERE basket_id = $1`, id); err != nil {
		return fmt.Errorf("postgres: unassign basket items %s: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM baskets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete basket %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit delete basket: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BasketStore = (*BasketStore)(nil)
