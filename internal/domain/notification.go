package domain

import "time"

// NotificationKind identifies the settlement event a notification reports.
type NotificationKind string

const (
	NotificationOfferAccepted      NotificationKind = "offer_accepted"
	NotificationOfferRejected      NotificationKind = "offer_rejected"
	NotificationListingReactivated NotificationKind = "listing_reactivated"
)

// Notification is a per-user record of a settlement decision. Records are
// written as part of the fan-out after a settlement commits; delivery to
// push channels is tracked separately so failed deliveries can be retried
// without duplicating records.
type Notification struct {
	ID          string
	UserID      string
	Kind        NotificationKind
	ListingID   string
	TenderID    string
	OfferCents  int64
	Message     string
	CreatedAt   time.Time
	DeliveredAt *time.Time
	ReadAt      *time.Time
}
