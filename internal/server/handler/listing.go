package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/refmet/catmarket/internal/domain"
)

// ListingService defines the listing operations the handler requires.
type ListingService interface {
	CreateListing(ctx context.Context, listing domain.Listing) (domain.Listing, error)
	ListingBoard(ctx context.Context, listingID string) (domain.Listing, []domain.Tender, error)
	ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error)
}

// ReactivationService defines the settlement operation the reactivate
// endpoint requires.
type ReactivationService interface {
	ReactivateListing(ctx context.Context, listingID, actingSellerID string) (domain.Listing, error)
}

// ListingHandler serves listing-related HTTP endpoints.
type ListingHandler struct {
	listings   ListingService
	settlement ReactivationService
	logger     *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(listings ListingService, settlement ReactivationService, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{
		listings:   listings,
		settlement: settlement,
		logger:     logger,
	}
}

// createListingRequest is the JSON body for creating a listing.
type createListingRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	PriceCents  int64   `json:"price_cents"`
	WeightKg    float64 `json:"weight_kg"`
}

// CreateListing creates a new active listing for the calling seller.
// POST /api/listings
func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	seller := actingUser(r)
	if seller == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	listing, err := h.listings.CreateListing(r.Context(), domain.Listing{
		SellerID:    seller,
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		WeightKg:    req.WeightKg,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "create listing", err)
		return
	}

	writeJSON(w, http.StatusCreated, listing)
}

// boardResponse wraps the tender board response.
type boardResponse struct {
	Listing domain.Listing  `json:"listing"`
	Tenders []domain.Tender `json:"tenders"`
}

// GetBoard returns a listing with its tenders in display rank order.
// GET /api/listings/{id}
func (h *ListingHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing listing id")
		return
	}

	listing, tenders, err := h.listings.ListingBoard(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get listing", err)
		return
	}

	if tenders == nil {
		tenders = []domain.Tender{}
	}

	writeJSON(w, http.StatusOK, boardResponse{Listing: listing, Tenders: tenders})
}

// listListingsResponse wraps the list listings response.
type listListingsResponse struct {
	Listings []domain.Listing `json:"listings"`
}

// ListListings returns the listings of a seller.
// GET /api/listings?seller_id=...&limit=50&offset=0
func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	sellerID := r.URL.Query().Get("seller_id")
	if sellerID == "" {
		sellerID = actingUser(r)
	}
	if sellerID == "" {
		writeError(w, http.StatusBadRequest, "seller_id query parameter required")
		return
	}

	listings, err := h.listings.ListBySeller(r.Context(), sellerID, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list listings", err)
		return
	}

	if listings == nil {
		listings = []domain.Listing{}
	}

	writeJSON(w, http.StatusOK, listListingsResponse{Listings: listings})
}

// Reactivate moves a sold listing back to active.
// POST /api/listings/{id}/reactivate
func (h *ListingHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	seller := actingUser(r)
	if seller == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing listing id")
		return
	}

	listing, err := h.settlement.ReactivateListing(r.Context(), id, seller)
	if err != nil {
		writeDomainError(w, r, h.logger, "reactivate listing", err)
		return
	}

	writeJSON(w, http.StatusOK, listing)
}
