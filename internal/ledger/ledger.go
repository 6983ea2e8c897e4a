// Package ledger maintains each user's totalPoints balance.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anonto42/campus-feed/backend/internal/metrics"
	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/rs/zerolog"
)

// JournalSize caps how many recent delta keys a user document remembers.
const JournalSize = 64

// Result reports the outcome of Apply.
type Result struct {
	Applied bool
	Balance int64
}

type Ledger struct {
	users  repositories.UserRepository
	queue  repositories.ReconcileRepository
	logger zerolog.Logger
}

func New(users repositories.UserRepository, queue repositories.ReconcileRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{users: users, queue: queue, logger: logger.With().Str("component", "ledger").Logger()}
}

// Apply applies d to the user's balance in one atomic update, retrying
// conflicts. A delta whose key is already journaled is skipped.
func (l *Ledger) Apply(ctx context.Context, userID string, d Delta) (Result, error) {
	var res Result
	err := store.Retry(ctx, "ledger.apply", func(ctx context.Context) error {
		u, err := l.users.UpdateUser(ctx, userID, func(u *models.User) (store.Fields, error) {
			res = Result{Balance: u.TotalPoints}
			if journaled(u.LedgerJournal, d.Key) {
				return nil, nil
			}
			res = Result{Applied: true, Balance: Next(d.Rule, u.TotalPoints)}
			return store.Fields{
				"totalPoints":   res.Balance,
				"ledgerJournal": appendJournal(u.LedgerJournal, d.Key),
			}, nil
		})
		if err != nil {
			return err
		}
		res.Balance = u.TotalPoints
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply %s to %s: %w", d.Rule, userID, err)
	}
	if res.Applied {
		metrics.LedgerDeltas.WithLabelValues(string(d.Rule)).Inc()
		l.logger.Debug().Str("user_id", userID).Str("rule", string(d.Rule)).Int64("balance", res.Balance).Msg("delta applied")
	}
	return res, nil
}

// ApplyOrQueue applies d and, if that fails, queues it for reconciliation.
// It reports whether the delta is still pending.
func (l *Ledger) ApplyOrQueue(ctx context.Context, userID string, d Delta) bool {
	_, err := l.Apply(ctx, userID, d)
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrNotFound) {
		l.logger.Error().Err(err).Str("user_id", userID).Str("rule", string(d.Rule)).Msg("ledger target missing, delta dropped")
		return false
	}
	key := TaskKey(userID, d)
	l.logger.Error().Err(err).Str("user_id", userID).Str("rule", string(d.Rule)).Str("task", key).Msg("ledger update failed, queued for reconciliation")
	if qerr := l.enqueue(ctx, userID, d); qerr != nil {
		l.logger.Error().Err(qerr).Str("task", key).Msg("could not queue ledger task")
	}
	return true
}

type taskPayload struct {
	UserID string `json:"userId"`
	Delta
}

// TaskKey is the reconciliation key of a ledger delta.
func TaskKey(userID string, d Delta) string {
	return "ledger:" + userID + ":" + d.Key
}

func (l *Ledger) enqueue(ctx context.Context, userID string, d Delta) error {
	payload, err := json.Marshal(taskPayload{UserID: userID, Delta: d})
	if err != nil {
		return err
	}
	return l.queue.Enqueue(context.WithoutCancel(ctx), &models.ReconcileTask{
		Key:     TaskKey(userID, d),
		Kind:    models.ReconcileKindLedger,
		Payload: string(payload),
	})
}

// Replay applies a queued ledger task. Replaying twice is harmless.
func (l *Ledger) Replay(ctx context.Context, task models.ReconcileTask) error {
	var p taskPayload
	if err := json.Unmarshal([]byte(task.Payload), &p); err != nil {
		return fmt.Errorf("decode ledger task %s: %w", task.Key, err)
	}
	_, err := l.Apply(ctx, p.UserID, p.Delta)
	return err
}

func journaled(journal []string, key string) bool {
	for _, k := range journal {
		if k == key {
			return true
		}
	}
	return false
}

func appendJournal(journal []string, key string) []string {
	out := append(append([]string{}, journal...), key)
	if len(out) > JournalSize {
		out = out[len(out)-JournalSize:]
	}
	return out
}
