package models

import "time"

// CollectionNotifications holds fan-out notifications.
const CollectionNotifications = "notifications"

type NotificationType string

const (
	NotificationTypeNewPost NotificationType = "new_post"
)

// Notification is written once by fan-out and afterwards only flipped to read.
type Notification struct {
	ID          string           `json:"id" bson:"-"`
	RecipientID string           `json:"recipientId" bson:"recipientId"`
	SenderID    string           `json:"senderId" bson:"senderId"`
	SenderName  string           `json:"senderName" bson:"senderName"`
	PostID      string           `json:"postId" bson:"postId"`
	Type        NotificationType `json:"type" bson:"type"`
	Message     string           `json:"message" bson:"message"`
	Read        bool             `json:"read" bson:"read"`
	CreatedAt   time.Time        `json:"createdAt" bson:"createdAt"`
}

// NotificationID is deterministic so a replayed fan-out rewrites the same documents.
func NotificationID(postID, recipientID string) string {
	return postID + "_" + recipientID
}
