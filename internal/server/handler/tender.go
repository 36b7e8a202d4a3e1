package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/refmet/catmarket/internal/domain"
)

// TenderSubmitService defines the tender submission and read operations the
// handler requires.
type TenderSubmitService interface {
	Submit(ctx context.Context, listingID, buyerID string, offerCents int64) (domain.Tender, error)
	ListByBuyer(ctx context.Context, buyerID string, opts domain.ListOpts) ([]domain.Tender, error)
	SellerOverview(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Tender, error)
}

// SettlementService defines the settlement decisions the handler exposes.
type SettlementService interface {
	AcceptTender(ctx context.Context, tenderID, actingSellerID string) (domain.SettlementResult, error)
	RejectTender(ctx context.Context, tenderID, actingSellerID string) (domain.Tender, error)
}

// TenderHandler serves tender submission and settlement endpoints.
type TenderHandler struct {
	tenders    TenderSubmitService
	settlement SettlementService
	logger     *slog.Logger
}

// NewTenderHandler creates a TenderHandler.
func NewTenderHandler(tenders TenderSubmitService, settlement SettlementService, logger *slog.Logger) *TenderHandler {
	return &TenderHandler{
		tenders:    tenders,
		settlement: settlement,
		logger:     logger,
	}
}

// submitTenderRequest is the JSON body for placing a tender.
type submitTenderRequest struct {
	ListingID  string `json:"listing_id"`
	OfferCents int64  `json:"offer_cents"`
}

// Submit places a new tender on a listing for the calling buyer.
// POST /api/tenders
func (h *TenderHandler) Submit(w http.ResponseWriter, r *http.Request) {
	buyer := actingUser(r)
	if buyer == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req submitTenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ListingID == "" {
		writeError(w, http.StatusBadRequest, "listing_id is required")
		return
	}

	tender, err := h.tenders.Submit(r.Context(), req.ListingID, buyer, req.OfferCents)
	if err != nil {
		writeDomainError(w, r, h.logger, "submit tender", err)
		return
	}

	writeJSON(w, http.StatusCreated, tender)
}

// acceptResponse is the settlement outcome returned by Accept.
type acceptResponse struct {
	Accepted       domain.Tender   `json:"accepted"`
	Rejected       []domain.Tender `json:"rejected"`
	Listing        domain.Listing  `json:"listing"`
	AlreadySettled bool            `json:"already_settled"`
}

// Accept accepts a tender on behalf of the calling seller. Accepting an
// already-accepted tender is reported as already_settled with a 200, not an
// error, so client retries converge.
// POST /api/tenders/{id}/accept
func (h *TenderHandler) Accept(w http.ResponseWriter, r *http.Request) {
	seller := actingUser(r)
	if seller == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing tender id")
		return
	}

	res, err := h.settlement.AcceptTender(r.Context(), id, seller)
	if err != nil {
		writeDomainError(w, r, h.logger, "accept tender", err)
		return
	}

	rejected := res.Rejected
	if rejected == nil {
		rejected = []domain.Tender{}
	}

	writeJSON(w, http.StatusOK, acceptResponse{
		Accepted:       res.Accepted,
		Rejected:       rejected,
		Listing:        res.Listing,
		AlreadySettled: res.AlreadySettled,
	})
}

// Reject rejects a single tender on behalf of the calling seller.
// POST /api/tenders/{id}/reject
func (h *TenderHandler) Reject(w http.ResponseWriter, r *http.Request) {
	seller := actingUser(r)
	if seller == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing tender id")
		return
	}

	tender, err := h.settlement.RejectTender(r.Context(), id, seller)
	if err != nil {
		writeDomainError(w, r, h.logger, "reject tender", err)
		return
	}

	writeJSON(w, http.StatusOK, tender)
}

// listTendersResponse wraps tender list responses.
type listTendersResponse struct {
	Tenders []domain.Tender `json:"tenders"`
}

// ListTenders returns the calling user's tenders: their own bids by default,
// or the tenders across their listings with role=seller.
// GET /api/tenders?role=buyer|seller&limit=50&offset=0
func (h *TenderHandler) ListTenders(w http.ResponseWriter, r *http.Request) {
	user := actingUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	opts := parseListOpts(r)

	var tenders []domain.Tender
	var err error
	if r.URL.Query().Get("role") == "seller" {
		tenders, err = h.tenders.SellerOverview(r.Context(), user, opts)
	} else {
		tenders, err = h.tenders.ListByBuyer(r.Context(), user, opts)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, "list tenders", err)
		return
	}

	if tenders == nil {
		tenders = []domain.Tender{}
	}

	writeJSON(w, http.StatusOK, listTendersResponse{Tenders: tenders})
}
