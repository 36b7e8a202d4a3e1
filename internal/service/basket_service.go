package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/refmet/catmarket/internal/domain"
	"github.com/refmet/catmarket/internal/valuation"
)

// maxBasketNameLen bounds user-supplied basket names.
const maxBasketNameLen = 120

// BasketService manages baskets and the assignment of bought items to them,
// and exposes the aggregate valuations the buyer dashboard shows.
type BasketService struct {
	baskets domain.BasketStore
	items   domain.BoughtItemStore
	logger  *slog.Logger
}

// NewBasketService creates a BasketService.
func NewBasketService(baskets domain.BasketStore, items domain.BoughtItemStore, logger *slog.Logger) *BasketService {
	return &BasketService{
		baskets: baskets,
		items:   items,
		logger:  logger.With(slog.String("component", "baskets")),
	}
}

// Create creates a basket for the owner.
func (s *BasketService) Create(ctx context.Context, ownerID, name, description string) (domain.Basket, error) {
	if err := validateBasketName(name); err != nil {
		return domain.Basket{}, err
	}

	now := time.Now().UTC()
	basket := domain.Basket{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.baskets.Create(ctx, basket); err != nil {
		return domain.Basket{}, fmt.Errorf("baskets: create: %w", err)
	}

	s.logger.InfoContext(ctx, "basket created",
		slog.String("basket_id", basket.ID),
		slog.String("owner_id", ownerID),
	)

	return basket, nil
}

// Get returns the basket if it belongs to the owner.
func (s *BasketService) Get(ctx context.Context, basketID, ownerID string) (domain.Basket, error) {
	basket, err := s.ownedBasket(ctx, basketID, ownerID)
	if err != nil {
		return domain.Basket{}, err
	}
	return basket, nil
}

// Update renames a basket or changes its description.
func (s *BasketService) Update(ctx context.Context, basketID, ownerID, name, description string) (domain.Basket, error) {
	if err := validateBasketName(name); err != nil {
		return domain.Basket{}, err
	}

	basket, err := s.ownedBasket(ctx, basketID, ownerID)
	if err != nil {
		return domain.Basket{}, err
	}

	basket.Name = name
	basket.Description = description
	basket.UpdatedAt = time.Now().UTC()

	if err := s.baskets.Update(ctx, basket); err != nil {
		return domain.Basket{}, fmt.Errorf("baskets: update %q: %w", basketID, err)
	}

	return basket, nil
}

// Delete removes a basket. Items assigned to it are unassigned, never
// deleted; the purchase history stays intact.
func (s *BasketService) Delete(ctx context.Context, basketID, ownerID string) error {
	if _, err := s.ownedBasket(ctx, basketID, ownerID); err != nil {
		return err
	}

	if err := s.baskets.Delete(ctx, basketID); err != nil {
		return fmt.Errorf("baskets: delete %q: %w", basketID, err)
	}

	s.logger.InfoContext(ctx, "basket deleted",
		slog.String("basket_id", basketID),
		slog.String("owner_id", ownerID),
	)

	return nil
}

// ListByOwner returns the owner's baskets.
func (s *BasketService) ListByOwner(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.Basket, error) {
	baskets, err := s.baskets.ListByOwner(ctx, ownerID, opts)
	if err != nil {
		return nil, fmt.Errorf("baskets: list by owner %q: %w", ownerID, err)
	}
	return baskets, nil
}

// AssignItem puts a bought item into a basket. Both must belong to the same
// owner. Assigning an item that is already in another basket moves it.
func (s *BasketService) AssignItem(ctx context.Context, itemID, basketID, ownerID string) error {
	if _, err := s.ownedBasket(ctx, basketID, ownerID); err != nil {
		return err
	}
	if _, err := s.ownedItem(ctx, itemID, ownerID); err != nil {
		return err
	}

	if err := s.items.AssignBasket(ctx, itemID, &basketID); err != nil {
		return fmt.Errorf("baskets: assign item %q to %q: %w", itemID, basketID, err)
	}

	return nil
}

// RemoveItem takes a bought item out of whatever basket it is in.
func (s *BasketService) RemoveItem(ctx context.Context, itemID, ownerID string) error {
	if _, err := s.ownedItem(ctx, itemID, ownerID); err != nil {
		return err
	}

	if err := s.items.AssignBasket(ctx, itemID, nil); err != nil {
		return fmt.Errorf("baskets: unassign item %q: %w", itemID, err)
	}

	return nil
}

// ListItems returns the bought items assigned to a basket.
func (s *BasketService) ListItems(ctx context.Context, basketID, ownerID string) ([]domain.BoughtItem, error) {
	if _, err := s.ownedBasket(ctx, basketID, ownerID); err != nil {
		return nil, err
	}

	items, err := s.items.ListByBasket(ctx, basketID)
	if err != nil {
		return nil, fmt.Errorf("baskets: list items of %q: %w", basketID, err)
	}
	return items, nil
}

// Totals computes the aggregate valuation of one basket: total value paid
// and the recoverable platinum, palladium and rhodium content in grams.
func (s *BasketService) Totals(ctx context.Context, basketID, ownerID string) (valuation.BasketTotals, error) {
	items, err := s.ListItems(ctx, basketID, ownerID)
	if err != nil {
		return valuation.BasketTotals{}, err
	}
	return valuation.ComputeBasketTotals(items), nil
}

// OwnerTotals computes the aggregate valuation across all of the owner's
// bought items, assigned to a basket or not.
func (s *BasketService) OwnerTotals(ctx context.Context, ownerID string) (valuation.BasketTotals, error) {
	items, err := s.items.ListByOwner(ctx, ownerID, domain.ListOpts{})
	if err != nil {
		return valuation.BasketTotals{}, fmt.Errorf("baskets: list items of owner %q: %w", ownerID, err)
	}
	return valuation.ComputeBasketTotals(items), nil
}

// RecordPurchase snapshots a settled listing as a bought item for the buyer.
// The snapshot carries the agreed price and the listing's assay figures so
// later valuations are unaffected by listing edits.
func (s *BasketService) RecordPurchase(ctx context.Context, item domain.BoughtItem) (domain.BoughtItem, error) {
	if item.OwnerID == "" {
		return domain.BoughtItem{}, fmt.Errorf("baskets: item owner required: %w", domain.ErrValidation)
	}
	if item.PriceCents < 0 {
		return domain.BoughtItem{}, fmt.Errorf("baskets: item price cannot be negative: %w", domain.ErrValidation)
	}

	item.ID = uuid.NewString()
	item.BasketID = nil
	if item.PurchasedAt.IsZero() {
		item.PurchasedAt = time.Now().UTC()
	}

	if err := s.items.Create(ctx, item); err != nil {
		return domain.BoughtItem{}, fmt.Errorf("baskets: record purchase: %w", err)
	}

	s.logger.InfoContext(ctx, "purchase recorded",
		slog.String("item_id", item.ID),
		slog.String("owner_id", item.OwnerID),
	)

	return item, nil
}

// ownedBasket loads a basket and verifies ownership.
func (s *BasketService) ownedBasket(ctx context.Context, basketID, ownerID string) (domain.Basket, error) {
	basket, err := s.baskets.GetByID(ctx, basketID)
	if err != nil {
		return domain.Basket{}, fmt.Errorf("baskets: get %q: %w", basketID, err)
	}
	if basket.OwnerID != ownerID {
		return domain.Basket{}, fmt.Errorf("baskets: basket %q: %w", basketID, domain.ErrForbidden)
	}
	return basket, nil
}

// ownedItem loads a bought item and verifies ownership.
func (s *BasketService) ownedItem(ctx context.Context, itemID, ownerID string) (domain.BoughtItem, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return domain.BoughtItem{}, fmt.Errorf("baskets: get item %q: %w", itemID, err)
	}
	if item.OwnerID != ownerID {
		return domain.BoughtItem{}, fmt.Errorf("baskets: item %q: %w", itemID, domain.ErrForbidden)
	}
	return item, nil
}

func validateBasketName(name string) error {
	if name == "" {
		return fmt.Errorf("baskets: name required: %w", domain.ErrValidation)
	}
	if len(name) > maxBasketNameLen {
		return fmt.Errorf("baskets: name exceeds %d characters: %w", maxBasketNameLen, domain.ErrValidation)
	}
	return nil
}
