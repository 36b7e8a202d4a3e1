package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refmet/catmarket/internal/domain"
)

// NotificationStore implements domain.NotificationStore using PostgreSQL.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a new NotificationStore backed by the given
// connection pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

const notificationSelectCols = `id, user_id, kind, listing_id, tender_id,
	offer_cents, message, created_at, delivered_at, read_at`

func scanNotificationFromRow(
	scanner interface{ Scan(dest ...any) error },
) (domain.Notification, error) {
	var n domain.Notification
	var kind string

	err := scanner.Scan(
		&n.ID, &n.UserID, &kind, &n.ListingID, &n.TenderID,
		&n.OfferCents, &n.Message, &n.CreatedAt, &n.DeliveredAt, &n.ReadAt,
	)
	if err != nil {
		return domain.Notification{}, err
	}

	n.Kind = domain.NotificationKind(kind)
	return n, nil
}

func scanNotificationRows(rows pgx.Rows) ([]domain.Notification, error) {
	var notifications []domain.Notification
	for rows.Next() {
		n, err := scanNotificationFromRow(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CreateBatch inserts all notification records in a single batch.
func (s *NotificationStore) CreateBatch(ctx context.Context, notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	const query = `
		INSERT INTO notifications (
			id, user_id, kind, listing_id, tender_id, offer_cents, message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	batch := &pgx.Batch{}
	for _, n := range notifications {
		batch.Queue(query,
			n.ID, n.UserID, string(n.Kind), n.ListingID, n.TenderID,
			n.OfferCents, n.Message, n.CreatedAt,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range notifications {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("postgres: create notifications batch: %w", err)
		}
	}
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	query := `SELECT ` + notificationSelectCols + ` FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
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
		return nil, fmt.Errorf("postgres: list notifications: %w", err)
	}
	defer rows.Close()

	notifications, err := scanNotificationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead sets the read timestamp. The user predicate keeps one user from
// acknowledging another user's notification.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET read_at = $3 WHERE id = $1 AND user_id = $2 AND read_at IS NULL`,
		id, userID, at)
	if err != nil {
		return fmt.Errorf("postgres: mark notification read %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkDelivered confirms push delivery for the given records.
func (s *NotificationStore) MarkDelivered(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE notifications SET delivered_at = $2 WHERE id = ANY($1) AND delivered_at IS NULL`,
		ids, at)
	if err != nil {
		return fmt.Errorf("postgres: mark notifications delivered: %w", err)
	}
	return nil
}

// ListUndelivered returns records created before the cutoff with no
// confirmed delivery, oldest first.
func (s *NotificationStore) ListUndelivered(ctx context.Context, before time.Time, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationSelectCols + ` FROM notifications
		WHERE delivered_at IS NULL AND created_at < $1
		ORDER BY created_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list undelivered notifications: %w", err)
	}
	defer rows.Close()

	notifications, err := scanNotificationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan undelivered notifications: %w", err)
	}
	return notifications, nil
}

// Compile-time interface check.
var _ domain.NotificationStore = (*NotificationStore)(nil)
