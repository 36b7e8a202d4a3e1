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
	"github.com/refmet/catmarket/internal/notify"
)

// redeliveryBatchLimit caps how many stale notifications one sweep pass
// picks up.
const redeliveryBatchLimit = 200

// redeliveryAge is how long a notification may sit undelivered before the
// sweep re-pushes it.
const redeliveryAge = time.Minute

// NotificationFanout turns committed settlement outcomes into per-user
// notification records and pushes them over the signal bus for connected
// clients. Records are persisted first; the push is confirmation-tracked so
// the redelivery sweep can retry users who were offline.
type NotificationFanout struct {
	store  domain.NotificationStore
	bus    domain.SignalBus
	alerts *notify.Notifier
	logger *slog.Logger
}

// NewNotificationFanout creates a NotificationFanout. alerts may be nil when
// no operator channels are configured.
func NewNotificationFanout(
	store domain.NotificationStore,
	bus domain.SignalBus,
	alerts *notify.Notifier,
	logger *slog.Logger,
) *NotificationFanout {
	return &NotificationFanout{
		store:  store,
		bus:    bus,
		alerts: alerts,
		logger: logger.With(slog.String("component", "notifications")),
	}
}

// DeliverSettlement notifies every party of an accept cascade: the winning
// buyer gets an acceptance, every rejected bidder a rejection. One record
// per affected user, created in a single batch.
func (f *NotificationFanout) DeliverSettlement(ctx context.Context, res domain.SettlementResult) error {
	now := time.Now().UTC()

	records := make([]domain.Notification, 0, 1+len(res.Rejected))
	records = append(records, domain.Notification{
		ID:         uuid.NewString(),
		UserID:     res.Accepted.BuyerID,
		Kind:       domain.NotificationOfferAccepted,
		ListingID:  res.Listing.ID,
		TenderID:   res.Accepted.ID,
		OfferCents: res.Accepted.OfferCents,
		Message:    fmt.Sprintf("Your offer of %.2f on %q was accepted.", res.Accepted.Offer(), res.Listing.Title),
		CreatedAt:  now,
	})
	for _, rej := range res.Rejected {
		records = append(records, domain.Notification{
			ID:         uuid.NewString(),
			UserID:     rej.BuyerID,
			Kind:       domain.NotificationOfferRejected,
			ListingID:  res.Listing.ID,
			TenderID:   rej.ID,
			OfferCents: rej.OfferCents,
			Message:    fmt.Sprintf("Your offer of %.2f on %q was not accepted.", rej.Offer(), res.Listing.Title),
			CreatedAt:  now,
		})
	}

	if err := f.persistAndPush(ctx, records); err != nil {
		return err
	}

	if f.alerts != nil {
		if err := f.alerts.Notify(ctx, "tender_accepted", "Listing settled",
			fmt.Sprintf("Listing %s sold for %.2f; %d competing tenders rejected.",
				res.Listing.ID, res.Accepted.Offer(), len(res.Rejected)),
		); err != nil {
			f.logger.WarnContext(ctx, "operator alert failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// DeliverRejection notifies the buyer of a single tender rejection.
func (f *NotificationFanout) DeliverRejection(ctx context.Context, tender domain.Tender) error {
	record := domain.Notification{
		ID:         uuid.NewString(),
		UserID:     tender.BuyerID,
		Kind:       domain.NotificationOfferRejected,
		ListingID:  tender.ListingID,
		TenderID:   tender.ID,
		OfferCents: tender.OfferCents,
		Message:    fmt.Sprintf("Your offer of %.2f was not accepted.", tender.Offer()),
		CreatedAt:  time.Now().UTC(),
	}
	return f.persistAndPush(ctx, []domain.Notification{record})
}

// DeliverReactivation tells everyone who previously bid on a listing that it
// is open again. Each prior bidder is notified once.
func (f *NotificationFanout) DeliverReactivation(ctx context.Context, listing domain.Listing, previous []domain.Tender) error {
	now := time.Now().UTC()
	seen := make(map[string]bool, len(previous))

	var records []domain.Notification
	for _, t := range previous {
		if seen[t.BuyerID] {
			continue
		}
		seen[t.BuyerID] = true
		records = append(records, domain.Notification{
			ID:        uuid.NewString(),
			UserID:    t.BuyerID,
			Kind:      domain.NotificationListingReactivated,
			ListingID: listing.ID,
			Message:   fmt.Sprintf("Listing %q is open for tenders again.", listing.Title),
			CreatedAt: now,
		})
	}
	if len(records) == 0 {
		return nil
	}
	return f.persistAndPush(ctx, records)
}

// Inbox returns a user's notifications, newest first.
func (f *NotificationFanout) Inbox(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	records, err := f.store.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("notifications: list for %q: %w", userID, err)
	}
	return records, nil
}

// MarkRead marks a notification as read. Only the addressed user can mark
// their own notifications.
func (f *NotificationFanout) MarkRead(ctx context.Context, id, userID string) error {
	if err := f.store.MarkRead(ctx, id, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("notifications: mark %q read: %w", id, err)
	}
	return nil
}

// RunRedelivery re-pushes undelivered notifications on a ticker until ctx is
// cancelled. Each pass takes the named lock so only one instance sweeps at a
// time; a held lock skips the pass.
func (f *NotificationFanout) RunRedelivery(ctx context.Context, interval time.Duration, locks domain.LockManager) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	f.logger.InfoContext(ctx, "notification redelivery sweep started",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.sweepOnce(ctx, locks); err != nil {
				f.logger.ErrorContext(ctx, "redelivery sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (f *NotificationFanout) sweepOnce(ctx context.Context, locks domain.LockManager) error {
	if locks != nil {
		release, err := locks.Acquire(ctx, "locks:notification-redelivery", 30*time.Second)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return nil
			}
			return fmt.Errorf("notifications: acquire sweep lock: %w", err)
		}
		defer release()
	}

	stale, err := f.store.ListUndelivered(ctx, time.Now().UTC().Add(-redeliveryAge), redeliveryBatchLimit)
	if err != nil {
		return fmt.Errorf("notifications: list undelivered: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	delivered := f.push(ctx, stale)
	if len(delivered) > 0 {
		if err := f.store.MarkDelivered(ctx, delivered, time.Now().UTC()); err != nil {
			return fmt.Errorf("notifications: mark redelivered: %w", err)
		}
	}

	f.logger.InfoContext(ctx, "redelivery sweep complete",
		slog.Int("stale", len(stale)),
		slog.Int("delivered", len(delivered)),
	)

	return nil
}

// persistAndPush stores the records, then pushes each over the bus. Push
// failures are tolerated; the redelivery sweep picks those records up later.
func (f *NotificationFanout) persistAndPush(ctx context.Context, records []domain.Notification) error {
	if err := f.store.CreateBatch(ctx, records); err != nil {
		return fmt.Errorf("notifications: persist batch: %w", err)
	}

	delivered := f.push(ctx, records)
	if len(delivered) > 0 {
		if err := f.store.MarkDelivered(ctx, delivered, time.Now().UTC()); err != nil {
			f.logger.WarnContext(ctx, "mark delivered failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// push publishes each record on its user channel and returns the IDs that
// went out.
func (f *NotificationFanout) push(ctx context.Context, records []domain.Notification) []string {
	if f.bus == nil {
		return nil
	}

	delivered := make([]string, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			f.logger.WarnContext(ctx, "notification encode failed",
				slog.String("notification_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := f.bus.Publish(ctx, "notifications:"+rec.UserID, payload); err != nil {
			f.logger.WarnContext(ctx, "notification push failed",
				slog.String("notification_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		delivered = append(delivered, rec.ID)
	}
	return delivered
}

// Compile-time interface check.
var _ SettlementNotifier = (*NotificationFanout)(nil)
