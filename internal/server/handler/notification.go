package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/refmet/catmarket/internal/domain"
)

// NotificationService defines the inbox operations the handler requires.
type NotificationService interface {
	Inbox(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

// NotificationHandler serves the notification inbox endpoints.
type NotificationHandler struct {
	notifications NotificationService
	logger        *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(notifications NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger,
	}
}

// listNotificationsResponse wraps the inbox response.
type listNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
}

// List returns the calling user's notifications, newest first.
// GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	user := actingUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	records, err := h.notifications.Inbox(r.Context(), user, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list notifications", err)
		return
	}

	if records == nil {
		records = []domain.Notification{}
	}

	writeJSON(w, http.StatusOK, listNotificationsResponse{Notifications: records})
}

// MarkRead marks one of the calling user's notifications as read.
// POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	user := actingUser(r)
	if user == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing notification id")
		return
	}

	if err := h.notifications.MarkRead(r.Context(), id, user); err != nil {
		writeDomainError(w, r, h.logger, "mark notification read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "read",
		"notification_id": id,
	})
}
