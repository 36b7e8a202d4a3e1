package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/refmet/catmarket/internal/domain"
)

// SettlementNotifier receives committed settlement outcomes for fan-out.
// Delivery is best-effort: the engine logs fan-out failures and never rolls
// back a committed settlement because of them.
type SettlementNotifier interface {
	DeliverSettlement(ctx context.Context, res domain.SettlementResult) error
	DeliverRejection(ctx context.Context, tender domain.Tender) error
	DeliverReactivation(ctx context.Context, listing domain.Listing, previous []domain.Tender) error
}

// SettlementEngine orchestrates tender acceptance, rejection, and listing
// reactivation. Acceptance is all-or-nothing from the perspective of every
// bidder: the winning tender, the rejection of all competing active tenders,
// and the listing closure commit in one atomic unit, so no buyer can ever
// observe their tender still active after a competitor has been accepted.
type SettlementEngine struct {
	tenders  domain.TenderStore
	listings domain.ListingStore
	settle   domain.SettlementStore
	cache    domain.ListingCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	fanout   SettlementNotifier
	logger   *slog.Logger
}

// NewSettlementEngine creates a SettlementEngine with all required
// dependencies. The acting seller is always an explicit parameter of each
// operation, never ambient state, so the engine stays independently
// testable.
func NewSettlementEngine(
	tenders domain.TenderStore,
	listings domain.ListingStore,
	settle domain.SettlementStore,
	cache domain.ListingCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	fanout SettlementNotifier,
	logger *slog.Logger,
) *SettlementEngine {
	return &SettlementEngine{
		tenders:  tenders,
		listings: listings,
		settle:   settle,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		fanout:   fanout,
		logger:   logger.With(slog.String("component", "settlement")),
	}
}

// AcceptTender accepts the named tender on behalf of the listing's seller:
// the target transitions to accepted, every other active tender on the same
// listing to rejected, and the listing to sold, atomically.
//
// Retries are safe: accepting an already-accepted tender (or a tender on a
// listing that was settled by accepting that same tender) returns the
// existing outcome with AlreadySettled set and no error. Accepting a tender
// that lost a concurrent settlement returns ErrConflict.
func (e *SettlementEngine) AcceptTender(ctx context.Context, tenderID, actingSellerID string) (domain.SettlementResult, error) {
	tender, err := e.tenders.GetByID(ctx, tenderID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: get tender %q: %w", tenderID, err)
	}

	listing, err := e.listings.GetByID(ctx, tender.ListingID)
	if err != nil {
		return domain.SettlementResult{}, fmt.Errorf("settlement: get listing %q: %w", tender.ListingID, err)
	}

	if listing.SellerID != actingSellerID {
		return domain.SettlementResult{}, fmt.Errorf("settlement: accept tender %q: %w", tenderID, domain.ErrForbidden)
	}

	if tender.Status == domain.TenderStatusAccepted {
		return domain.SettlementResult{
			Accepted:       tender,
			Listing:        listing,
			AlreadySettled: true,
		}, nil
	}
	if tender.Status == domain.TenderStatusRejected {
		return domain.SettlementResult{}, fmt.Errorf("settlement: accept tender %q: tender already rejected: %w", tenderID, domain.ErrConflict)
	}

	if listing.Sold() {
		return e.settledResult(ctx, listing, tenderID)
	}

	res, err := e.settle.AcceptTender(ctx, listing.ID, tender.ID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A concurrent settlement won the listing row. If it accepted
			// this same tender, the retry semantics above apply.
			if current, getErr := e.tenders.GetByID(ctx, tenderID); getErr == nil &&
				current.Status == domain.TenderStatusAccepted {
				listing, getErr = e.listings.GetByID(ctx, listing.ID)
				if getErr != nil {
					return domain.SettlementResult{}, fmt.Errorf("settlement: reload listing %q: %w", tender.ListingID, getErr)
				}
				return domain.SettlementResult{
					Accepted:       current,
					Listing:        listing,
					AlreadySettled: true,
				}, nil
			}
		}
		return domain.SettlementResult{}, fmt.Errorf("settlement: accept tender %q: %w", tenderID, err)
	}

	e.afterCommit(ctx, "tender_accepted", res.Listing, map[string]any{
		"tender_id":  res.Accepted.ID,
		"listing_id": res.Listing.ID,
		"buyer_id":   res.Accepted.BuyerID,
		"offer":      res.Accepted.Offer(),
		"rejected":   len(res.Rejected),
	})

	if e.fanout != nil {
		if fanErr := e.fanout.DeliverSettlement(ctx, res); fanErr != nil {
			e.logger.WarnContext(ctx, "settlement fan-out failed",
				slog.String("listing_id", res.Listing.ID),
				slog.String("error", fanErr.Error()),
			)
		}
	}

	e.logger.InfoContext(ctx, "tender accepted",
		slog.String("tender_id", res.Accepted.ID),
		slog.String("listing_id", res.Listing.ID),
		slog.Int("rejected", len(res.Rejected)),
	)

	return res, nil
}

// settledResult resolves an accept retry against a listing that is already
// sold: return the accepted tender as an AlreadySettled outcome when the
// target is that tender, otherwise the caller lost the race.
func (e *SettlementEngine) settledResult(ctx context.Context, listing domain.Listing, tenderID string) (domain.SettlementResult, error) {
	accepted, err := e.tenders.GetAccepted(ctx, listing.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.SettlementResult{}, fmt.Errorf("settlement: listing %q sold without accepted tender: %w", listing.ID, domain.ErrConflict)
		}
		return domain.SettlementResult{}, fmt.Errorf("settlement: get accepted tender for %q: %w", listing.ID, err)
	}
	if accepted.ID != tenderID {
		return domain.SettlementResult{}, fmt.Errorf("settlement: listing %q settled on tender %q: %w", listing.ID, accepted.ID, domain.ErrConflict)
	}
	return domain.SettlementResult{
		Accepted:       accepted,
		Listing:        listing,
		AlreadySettled: true,
	}, nil
}

// RejectTender rejects a single tender on behalf of the listing's seller.
// No cascade: sibling tenders and the listing status are untouched.
// Rejecting a tender that is already terminal is an idempotent no-op.
func (e *SettlementEngine) RejectTender(ctx context.Context, tenderID, actingSellerID string) (domain.Tender, error) {
	tender, err := e.tenders.GetByID(ctx, tenderID)
	if err != nil {
		return domain.Tender{}, fmt.Errorf("settlement: get tender %q: %w", tenderID, err)
	}

	listing, err := e.listings.GetByID(ctx, tender.ListingID)
	if err != nil {
		return domain.Tender{}, fmt.Errorf("settlement: get listing %q: %w", tender.ListingID, err)
	}

	if listing.SellerID != actingSellerID {
		return domain.Tender{}, fmt.Errorf("settlement: reject tender %q: %w", tenderID, domain.ErrForbidden)
	}

	if tender.Terminal() {
		// Duplicate click or retry; nothing to change, not an error.
		return tender, nil
	}

	rejected, err := e.settle.RejectTender(ctx, tenderID, time.Now().UTC())
	if err != nil {
		return domain.Tender{}, fmt.Errorf("settlement: reject tender %q: %w", tenderID, err)
	}
	if rejected.Status != domain.TenderStatusRejected {
		// The store found it terminal under the row lock; treat as the
		// idempotent case.
		return rejected, nil
	}

	e.afterCommit(ctx, "tender_rejected", listing, map[string]any{
		"tender_id":  rejected.ID,
		"listing_id": listing.ID,
		"buyer_id":   rejected.BuyerID,
		"offer":      rejected.Offer(),
	})

	if e.fanout != nil {
		if fanErr := e.fanout.DeliverRejection(ctx, rejected); fanErr != nil {
			e.logger.WarnContext(ctx, "rejection fan-out failed",
				slog.String("tender_id", rejected.ID),
				slog.String("error", fanErr.Error()),
			)
		}
	}

	e.logger.InfoContext(ctx, "tender rejected",
		slog.String("tender_id", rejected.ID),
		slog.String("listing_id", listing.ID),
	)

	return rejected, nil
}

// ReactivateListing moves a sold listing back to active on behalf of its
// seller. Previously rejected tenders are not revived; bidding starts
// fresh. Only a sold listing can be reactivated.
func (e *SettlementEngine) ReactivateListing(ctx context.Context, listingID, actingSellerID string) (domain.Listing, error) {
	listing, err := e.listings.GetByID(ctx, listingID)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("settlement: get listing %q: %w", listingID, err)
	}

	if listing.SellerID != actingSellerID {
		return domain.Listing{}, fmt.Errorf("settlement: reactivate listing %q: %w", listingID, domain.ErrForbidden)
	}

	reactivated, err := e.listings.Reactivate(ctx, listingID, time.Now().UTC())
	if err != nil {
		return domain.Listing{}, fmt.Errorf("settlement: reactivate listing %q: %w", listingID, err)
	}

	e.afterCommit(ctx, "listing_reactivated", reactivated, map[string]any{
		"listing_id": reactivated.ID,
		"seller_id":  reactivated.SellerID,
	})

	if e.fanout != nil {
		previous, listErr := e.tenders.ListByListing(ctx, listingID)
		if listErr != nil {
			e.logger.WarnContext(ctx, "reactivation fan-out skipped",
				slog.String("listing_id", listingID),
				slog.String("error", listErr.Error()),
			)
		} else if fanErr := e.fanout.DeliverReactivation(ctx, reactivated, previous); fanErr != nil {
			e.logger.WarnContext(ctx, "reactivation fan-out failed",
				slog.String("listing_id", listingID),
				slog.String("error", fanErr.Error()),
			)
		}
	}

	e.logger.InfoContext(ctx, "listing reactivated",
		slog.String("listing_id", reactivated.ID),
	)

	return reactivated, nil
}

// afterCommit runs the best-effort side channels that follow every
// settlement mutation: cache invalidation, a bus event, and an audit entry.
// Failures here are logged and never surfaced; the settlement is complete
// once committed.
func (e *SettlementEngine) afterCommit(ctx context.Context, event string, listing domain.Listing, detail map[string]any) {
	if e.cache != nil {
		if err := e.cache.Invalidate(ctx, listing.ID); err != nil {
			e.logger.WarnContext(ctx, "listing cache invalidation failed",
				slog.String("listing_id", listing.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"event":      event,
			"listing_id": listing.ID,
			"status":     string(listing.Status),
			"detail":     detail,
		})
		if err := e.bus.Publish(ctx, "settlements", payload); err != nil {
			e.logger.WarnContext(ctx, "settlement event publish failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.audit != nil {
		if err := e.audit.Log(ctx, event, detail); err != nil {
			e.logger.WarnContext(ctx, "audit log failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
