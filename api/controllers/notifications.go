package controllers

import (
	"net/http"

	"github.com/angelmondragon/ticketpay-backend/api/middleware"
	"github.com/angelmondragon/ticketpay-backend/api/validators"
	"github.com/angelmondragon/ticketpay-backend/internal/notifications"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/pagination"
)

// ListNotifications pages the caller's inbox: ?limit=&cursor=&unreadOnly=.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "notifications service", func(r *http.Request) (any, error) {
		userID, err := middleware.CallerID(r.Context())
		if err != nil {
			return nil, err
		}
		limit, err := validators.QueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			return nil, err
		}
		unreadOnly, err := validators.QueryBool(r, "unreadOnly")
		if err != nil {
			return nil, err
		}
		return svc.List(r.Context(), notifications.ListParams{
			UserID:     userID,
			Limit:      limit,
			Cursor:     r.URL.Query().Get("cursor"),
			UnreadOnly: unreadOnly,
		})
	})
}

// MarkNotificationRead flags one notification owned by the caller.
func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "notifications service", func(r *http.Request) (any, error) {
		userID, err := middleware.CallerID(r.Context())
		if err != nil {
			return nil, err
		}
		notificationID, err := validators.PathUUID(r, "notificationId")
		if err != nil {
			return nil, err
		}
		if err := svc.MarkRead(r.Context(), userID, notificationID); err != nil {
			return nil, err
		}
		return map[string]bool{"read": true}, nil
	})
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return serve(logg, svc != nil, "notifications service", func(r *http.Request) (any, error) {
		userID, err := middleware.CallerID(r.Context())
		if err != nil {
			return nil, err
		}
		updated, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"updated": updated}, nil
	})
}
