// Package notify fans new posts out to followers and manages read state.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/metrics"
	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/session"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/rs/zerolog"
)

// BatchSize bounds the writes of one fan-out batch.
const BatchSize = 400

type Notifier struct {
	store         store.Store
	notifications repositories.NotificationRepository
	queue         repositories.ReconcileRepository
	logger        zerolog.Logger
	now           func() time.Time
}

func New(s store.Store, notifications repositories.NotificationRepository, queue repositories.ReconcileRepository, logger zerolog.Logger) *Notifier {
	return &Notifier{
		store:         s,
		notifications: notifications,
		queue:         queue,
		logger:        logger.With().Str("component", "notify").Logger(),
		now:           time.Now,
	}
}

type fanoutPayload struct {
	PostID     string   `json:"postId"`
	AuthorID   string   `json:"authorId"`
	AuthorName string   `json:"authorName"`
	Recipients []string `json:"recipients"`
}

// FanOut writes one unread new_post notification per recipient. On failure
// the fan-out is queued for reconciliation and FanOut reports it pending.
func (n *Notifier) FanOut(ctx context.Context, post *models.Post, recipients []string) bool {
	p := fanoutPayload{PostID: post.ID, AuthorID: post.AuthorID, AuthorName: post.AuthorName, Recipients: recipients}
	err := n.deliver(ctx, p, false)
	if err == nil {
		return false
	}
	key := "fanout:" + post.ID
	n.logger.Error().Err(err).Str("post_id", post.ID).Str("task", key).Msg("fan-out failed, queued for reconciliation")
	payload, merr := json.Marshal(p)
	if merr != nil {
		n.logger.Error().Err(merr).Str("task", key).Msg("could not encode fan-out task")
		return true
	}
	task := &models.ReconcileTask{Key: key, Kind: models.ReconcileKindFanout, Payload: string(payload)}
	if qerr := n.queue.Enqueue(context.WithoutCancel(ctx), task); qerr != nil {
		n.logger.Error().Err(qerr).Str("task", key).Msg("could not queue fan-out task")
	}
	return true
}

// Replay redelivers a queued fan-out, skipping notifications already written
// so their read state is kept.
func (n *Notifier) Replay(ctx context.Context, task models.ReconcileTask) error {
	var p fanoutPayload
	if err := json.Unmarshal([]byte(task.Payload), &p); err != nil {
		return fmt.Errorf("decode fan-out task %s: %w", task.Key, err)
	}
	return n.deliver(ctx, p, true)
}

func (n *Notifier) deliver(ctx context.Context, p fanoutPayload, skipExisting bool) error {
	now := n.now().UTC()
	seen := make(map[string]bool, len(p.Recipients))
	writes := make([]store.Write, 0, len(p.Recipients))
	for _, rid := range p.Recipients {
		if rid == "" || rid == p.AuthorID || seen[rid] {
			continue
		}
		seen[rid] = true
		id := models.NotificationID(p.PostID, rid)
		if skipExisting {
			ok, err := n.notifications.Exists(ctx, id)
			if err != nil {
				return err
			}
			if ok {
				continue
			}
		}
		w, err := repositories.NotificationWrite(&models.Notification{
			ID:          id,
			RecipientID: rid,
			SenderID:    p.AuthorID,
			SenderName:  p.AuthorName,
			PostID:      p.PostID,
			Type:        models.NotificationTypeNewPost,
			Message:     fmt.Sprintf("%s shared a new post.", p.AuthorName),
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
		writes = append(writes, w)
	}

	for start := 0; start < len(writes); start += BatchSize {
		end := min(start+BatchSize, len(writes))
		batch := writes[start:end]
		err := store.Retry(ctx, "notify.fanout", func(ctx context.Context) error {
			return n.store.BatchAtomicUpdate(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("fan-out batch %d-%d of post %s: %w", start, end, p.PostID, err)
		}
		metrics.NotificationsCreated.Add(float64(len(batch)))
	}
	n.logger.Debug().Str("post_id", p.PostID).Int("count", len(writes)).Msg("notifications delivered")
	return nil
}

// Unread lists the unread notifications of sess, newest first.
func (n *Notifier) Unread(ctx context.Context, sess session.Session) ([]models.Notification, error) {
	return n.notifications.GetUnread(ctx, sess.UserID)
}

// MarkAllRead flips every currently unread notification of sess in a single
// batch and returns how many were flipped.
func (n *Notifier) MarkAllRead(ctx context.Context, sess session.Session) (int, error) {
	var count int
	err := store.Retry(ctx, "notify.read", func(ctx context.Context) error {
		unread, err := n.notifications.GetUnread(ctx, sess.UserID)
		if err != nil {
			return err
		}
		count = len(unread)
		if count == 0 {
			return nil
		}
		writes := make([]store.Write, 0, count)
		for _, u := range unread {
			writes = append(writes, store.Write{
				Collection: models.CollectionNotifications,
				ID:         u.ID,
				Fields:     store.Fields{"read": true},
				Merge:      true,
			})
		}
		return n.store.BatchAtomicUpdate(ctx, writes)
	})
	if errors.Is(err, store.ErrBatchTooLarge) {
		n.logger.Warn().Err(err).Str("user_id", sess.UserID).Int("unread", count).Msg("unread set exceeds one batch")
		return 0, fmt.Errorf("%d unread notifications are more than can be marked read at once: %w", count, models.ErrValidation)
	}
	if err != nil {
		return 0, fmt.Errorf("mark all read for %s: %w", sess.UserID, err)
	}
	return count, nil
}
