package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/refmet/catmarket/internal/domain"
)

// TenderService handles tender submission and the read paths around the
// tender board: per-listing rankings, a buyer's own tenders, and the seller
// overview.
type TenderService struct {
	tenders  domain.TenderStore
	listings domain.ListingStore
	cache    domain.ListingCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewTenderService creates a TenderService.
func NewTenderService(
	tenders domain.TenderStore,
	listings domain.ListingStore,
	cache domain.ListingCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
) *TenderService {
	return &TenderService{
		tenders:  tenders,
		listings: listings,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		logger:   logger.With(slog.String("component", "tenders")),
	}
}

// Submit places a new tender on a listing. The offer must be positive,
// strictly above the listing's asking price, and strictly above the current
// highest active offer; a seller cannot bid on their own listing, and only
// active listings take tenders.
func (s *TenderService) Submit(ctx context.Context, listingID, buyerID string, offerCents int64) (domain.Tender, error) {
	if offerCents <= 0 {
		return domain.Tender{}, fmt.Errorf("tenders: offer must be positive: %w", domain.ErrValidation)
	}

	listing, err := s.GetListing(ctx, listingID)
	if err != nil {
		return domain.Tender{}, fmt.Errorf("tenders: get listing %q: %w", listingID, err)
	}

	if listing.Status != domain.ListingStatusActive {
		return domain.Tender{}, fmt.Errorf("tenders: listing %q is %s, not active: %w", listingID, listing.Status, domain.ErrValidation)
	}
	if listing.SellerID == buyerID {
		return domain.Tender{}, fmt.Errorf("tenders: seller cannot bid on own listing: %w", domain.ErrValidation)
	}
	if offerCents <= listing.PriceCents {
		return domain.Tender{}, fmt.Errorf("tenders: offer %d does not exceed asking price %d: %w",
			offerCents, listing.PriceCents, domain.ErrValidation)
	}

	existing, err := s.tenders.ListByListing(ctx, listingID)
	if err != nil {
		return domain.Tender{}, fmt.Errorf("tenders: list tenders for %q: %w", listingID, err)
	}
	if highest := domain.HighestActiveOffer(existing); highest > 0 && offerCents <= highest {
		return domain.Tender{}, fmt.Errorf("tenders: offer %d does not exceed highest active offer %d: %w",
			offerCents, highest, domain.ErrValidation)
	}

	tender := domain.Tender{
		ID:         uuid.NewString(),
		ListingID:  listingID,
		BuyerID:    buyerID,
		OfferCents: offerCents,
		Status:     domain.TenderStatusActive,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.tenders.Create(ctx, tender); err != nil {
		return domain.Tender{}, fmt.Errorf("tenders: create tender: %w", err)
	}

	s.publish(ctx, "tenders", map[string]any{
		"event":      "tender_submitted",
		"tender_id":  tender.ID,
		"listing_id": listingID,
		"offer":      tender.Offer(),
	})

	if s.audit != nil {
		if err := s.audit.Log(ctx, "tender_submitted", map[string]any{
			"tender_id":  tender.ID,
			"listing_id": listingID,
			"buyer_id":   buyerID,
			"offer":      tender.Offer(),
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", "tender_submitted"),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "tender submitted",
		slog.String("tender_id", tender.ID),
		slog.String("listing_id", listingID),
		slog.Int64("offer_cents", offerCents),
	)

	return tender, nil
}

// GetListing returns a listing, served from the cache when possible. A miss
// falls through to the store and repopulates the cache.
func (s *TenderService) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	if s.cache != nil {
		listing, err := s.cache.Get(ctx, listingID)
		if err == nil {
			return listing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "listing cache read failed",
				slog.String("listing_id", listingID),
				slog.String("error", err.Error()),
			)
		}
	}

	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, listing); err != nil {
			s.logger.WarnContext(ctx, "listing cache write failed",
				slog.String("listing_id", listingID),
				slog.String("error", err.Error()),
			)
		}
	}

	return listing, nil
}

// ListingBoard returns a listing together with its tenders ranked for
// display: highest offer first, earlier submission breaking ties. Ranking is
// presentation only; it never selects a winner.
func (s *TenderService) ListingBoard(ctx context.Context, listingID string) (domain.Listing, []domain.Tender, error) {
	listing, err := s.GetListing(ctx, listingID)
	if err != nil {
		return domain.Listing{}, nil, fmt.Errorf("tenders: get listing %q: %w", listingID, err)
	}

	tenders, err := s.tenders.ListByListing(ctx, listingID)
	if err != nil {
		return domain.Listing{}, nil, fmt.Errorf("tenders: list tenders for %q: %w", listingID, err)
	}

	domain.RankTenders(tenders)
	return listing, tenders, nil
}

// ListByBuyer returns a buyer's tenders across all listings, newest first.
func (s *TenderService) ListByBuyer(ctx context.Context, buyerID string, opts domain.ListOpts) ([]domain.Tender, error) {
	tenders, err := s.tenders.ListByBuyer(ctx, buyerID, opts)
	if err != nil {
		return nil, fmt.Errorf("tenders: list by buyer %q: %w", buyerID, err)
	}
	return tenders, nil
}

// SellerOverview returns the tenders across all of a seller's listings, for
// the seller dashboard.
func (s *TenderService) SellerOverview(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Tender, error) {
	tenders, err := s.tenders.ListBySeller(ctx, sellerID, opts)
	if err != nil {
		return nil, fmt.Errorf("tenders: list by seller %q: %w", sellerID, err)
	}
	return tenders, nil
}

// CreateListing creates a new active listing for the seller after basic
// validation.
func (s *TenderService) CreateListing(ctx context.Context, listing domain.Listing) (domain.Listing, error) {
	if listing.SellerID == "" {
		return domain.Listing{}, fmt.Errorf("tenders: listing seller required: %w", domain.ErrValidation)
	}
	if listing.Title == "" {
		return domain.Listing{}, fmt.Errorf("tenders: listing title required: %w", domain.ErrValidation)
	}
	if listing.PriceCents <= 0 {
		return domain.Listing{}, fmt.Errorf("tenders: listing price must be positive: %w", domain.ErrValidation)
	}
	if listing.WeightKg < 0 {
		return domain.Listing{}, fmt.Errorf("tenders: listing weight cannot be negative: %w", domain.ErrValidation)
	}

	now := time.Now().UTC()
	listing.ID = uuid.NewString()
	listing.Status = domain.ListingStatusActive
	listing.CreatedAt = now
	listing.UpdatedAt = now
	listing.SoldAt = nil

	if err := s.listings.Create(ctx, listing); err != nil {
		return domain.Listing{}, fmt.Errorf("tenders: create listing: %w", err)
	}

	s.logger.InfoContext(ctx, "listing created",
		slog.String("listing_id", listing.ID),
		slog.String("seller_id", listing.SellerID),
	)

	return listing, nil
}

// ListBySeller returns the seller's own listings.
func (s *TenderService) ListBySeller(ctx context.Context, sellerID string, opts domain.ListOpts) ([]domain.Listing, error) {
	listings, err := s.listings.ListBySeller(ctx, sellerID, opts)
	if err != nil {
		return nil, fmt.Errorf("tenders: list listings by seller %q: %w", sellerID, err)
	}
	return listings, nil
}

func (s *TenderService) publish(ctx context.Context, channel string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	body, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, body); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
