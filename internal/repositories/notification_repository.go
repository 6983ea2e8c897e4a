package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/store"
)

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	GetUnread(ctx context.Context, recipientID string) ([]models.Notification, error)
	GetByRecipientID(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	// Exists reports whether a notification with id has been written.
	Exists(ctx context.Context, id string) (bool, error)
}

type notificationRepository struct {
	store store.Store
}

func NewNotificationRepository(s store.Store) NotificationRepository {
	return &notificationRepository{store: s}
}

func (r *notificationRepository) GetUnread(ctx context.Context, recipientID string) ([]models.Notification, error) {
	docs, err := r.store.Query(ctx, UnreadQuery(recipientID))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodeNotifications(docs)
}

func (r *notificationRepository) GetByRecipientID(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	q := store.Query{
		Collection: models.CollectionNotifications,
		OrderBy:    "createdAt",
		Desc:       true,
		Limit:      limit,
	}.Where("recipientId", recipientID)
	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodeNotifications(docs)
}

func (r *notificationRepository) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.store.Get(ctx, models.CollectionNotifications, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapStoreError(err)
	}
	return true, nil
}

// UnreadQuery selects the unread notifications of a recipient.
func UnreadQuery(recipientID string) store.Query {
	return store.Query{
		Collection: models.CollectionNotifications,
		OrderBy:    "createdAt",
		Desc:       true,
	}.Where("recipientId", recipientID).Where("read", false)
}

// NotificationWrite builds the batch entry that creates n.
func NotificationWrite(n *models.Notification) (store.Write, error) {
	fields, err := store.Encode(n)
	if err != nil {
		return store.Write{}, err
	}
	return store.Write{Collection: models.CollectionNotifications, ID: n.ID, Fields: fields}, nil
}

func DecodeNotifications(docs []*store.Document) ([]models.Notification, error) {
	out := make([]models.Notification, 0, len(docs))
	for _, d := range docs {
		var n models.Notification
		if err := d.Decode(&n); err != nil {
			return nil, err
		}
		n.ID = d.ID
		out = append(out, n)
	}
	return out, nil
}
