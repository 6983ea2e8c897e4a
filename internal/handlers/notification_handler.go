package handlers

import (
	"net/http"

	"github.com/anonto42/campus-feed/backend/internal/notify"
	"github.com/labstack/echo/v4"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notifier *notify.Notifier
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(n *notify.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: n}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
}

// GetNotifications returns the caller's unread notifications
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	unread, err := h.notifier.Unread(c.Request().Context(), sess)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, echo.Map{"notifications": unread, "unreadCount": len(unread)})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	n, err := h.notifier.MarkAllRead(c.Request().Context(), sess)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, echo.Map{"marked": n})
}
