package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/refmet/catmarket/internal/domain"
	"github.com/refmet/catmarket/internal/valuation"
)

// BasketService defines the basket operations the handler requires.
type BasketService interface {
	Create(ctx context.Context, ownerID, name, description string) (domain.Basket, error)
	Get(ctx context.Context, basketID, ownerID string) (domain.Basket, error)
	Update(ctx context.Context, basketID, ownerID, name, description string) (domain.Basket, error)
	Delete(ctx context.Context, basketID, ownerID string) error
	ListByOwner(ctx context.Context, ownerID string, opts domain.ListOpts) ([]domain.Basket, error)
	AssignItem(ctx context.Context, itemID, basketID, ownerID string) error
	RemoveItem(ctx context.Context, itemID, ownerID string) error
	ListItems(ctx context.Context, basketID, ownerID string) ([]domain.BoughtItem, error)
	Totals(ctx context.Context, basketID, ownerID string) (valuation.BasketTotals, error)
	OwnerTotals(ctx context.Context, ownerID string) (valuation.BasketTotals, error)
}

// BasketHandler serves basket and valuation endpoints.
type BasketHandler struct {
	baskets BasketService
	logger  *slog.Logger
}

// NewBasketHandler creates a BasketHandler.
func NewBasketHandler(baskets BasketService, logger *slog.Logger) *BasketHandler {
	return &BasketHandler{
		baskets: baskets,
		logger:  logger,
	}
}

// basketRequest is the JSON body for creating or updating a basket.
type basketRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create creates a basket for the calling user.
// POST /api/baskets
func (h *BasketHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req basketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	basket, err := h.baskets.Create(r.Context(), owner, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, r, h.logger, "create basket", err)
		return
	}

	writeJSON(w, http.StatusCreated, basket)
}

// Get returns a single basket.
// GET /api/baskets/{id}
func (h *BasketHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	basket, err := h.baskets.Get(r.Context(), pathParam(r, "id"), owner)
	if err != nil {
		writeDomainError(w, r, h.logger, "get basket", err)
		return
	}

	writeJSON(w, http.StatusOK, basket)
}

// Update renames a basket or changes its description.
// PUT /api/baskets/{id}
func (h *BasketHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req basketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	basket, err := h.baskets.Update(r.Context(), pathParam(r, "id"), owner, req.Name, req.Description)
	if err != nil {
		writeDomainError(w, r, h.logger, "update basket", err)
		return
	}

	writeJSON(w, http.StatusOK, basket)
}

// Delete removes a basket; its items are unassigned, not deleted.
// DELETE /api/baskets/{id}
func (h *BasketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	id := pathParam(r, "id")
	if err := h.baskets.Delete(r.Context(), id, owner); err != nil {
		writeDomainError(w, r, h.logger, "delete basket", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "deleted",
		"basket_id": id,
	})
}

// listBasketsResponse wraps the list baskets response.
type listBasketsResponse struct {
	Baskets []domain.Basket `json:"baskets"`
}

// List returns the calling user's baskets.
// GET /api/baskets
func (h *BasketHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	baskets, err := h.baskets.ListByOwner(r.Context(), owner, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list baskets", err)
		return
	}

	if baskets == nil {
		baskets = []domain.Basket{}
	}

	writeJSON(w, http.StatusOK, listBasketsResponse{Baskets: baskets})
}

// listItemsResponse wraps the basket items response.
type listItemsResponse struct {
	Items []domain.BoughtItem `json:"items"`
}

// ListItems returns the bought items assigned to a basket.
// GET /api/baskets/{id}/items
func (h *BasketHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	items, err := h.baskets.ListItems(r.Context(), pathParam(r, "id"), owner)
	if err != nil {
		writeDomainError(w, r, h.logger, "list basket items", err)
		return
	}

	if items == nil {
		items = []domain.BoughtItem{}
	}

	writeJSON(w, http.StatusOK, listItemsResponse{Items: items})
}

// AssignItem puts a bought item into a basket, moving it when already
// assigned elsewhere.
// PUT /api/baskets/{id}/items/{itemID}
func (h *BasketHandler) AssignItem(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	basketID := pathParam(r, "id")
	itemID := pathParam(r, "itemID")

	if err := h.baskets.AssignItem(r.Context(), itemID, basketID, owner); err != nil {
		writeDomainError(w, r, h.logger, "assign basket item", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "assigned",
		"basket_id": basketID,
		"item_id":   itemID,
	})
}

// RemoveItem takes a bought item out of its basket.
// DELETE /api/items/{itemID}/basket
func (h *BasketHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	itemID := pathParam(r, "itemID")
	if err := h.baskets.RemoveItem(r.Context(), itemID, owner); err != nil {
		writeDomainError(w, r, h.logger, "remove basket item", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "removed",
		"item_id": itemID,
	})
}

// Totals returns the aggregate valuation of one basket.
// GET /api/baskets/{id}/totals
func (h *BasketHandler) Totals(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	totals, err := h.baskets.Totals(r.Context(), pathParam(r, "id"), owner)
	if err != nil {
		writeDomainError(w, r, h.logger, "compute basket totals", err)
		return
	}

	writeJSON(w, http.StatusOK, totals)
}

// OwnerTotals returns the aggregate valuation across all of the calling
// user's bought items.
// GET /api/items/totals
func (h *BasketHandler) OwnerTotals(w http.ResponseWriter, r *http.Request) {
	owner := actingUser(r)
	if owner == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	totals, err := h.baskets.OwnerTotals(r.Context(), owner)
	if err != nil {
		writeDomainError(w, r, h.logger, "compute owner totals", err)
		return
	}

	writeJSON(w, http.StatusOK, totals)
}
