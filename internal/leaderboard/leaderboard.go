// Package leaderboard ranks users by totalPoints.
package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	DefaultSize = 5
	MaxSize     = 100
	CacheTTL    = 15 * time.Second
)

type Board struct {
	users   repositories.UserRepository
	cache   Cache
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// New builds a leaderboard. cache may be nil.
func New(users repositories.UserRepository, cache Cache, logger zerolog.Logger) *Board {
	st := gobreaker.Settings{Name: "leaderboard-cache"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 }
	st.Timeout = 30 * time.Second
	return &Board{
		users:   users,
		cache:   cache,
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger.With().Str("component", "leaderboard").Logger(),
	}
}

// Top returns the n highest balances. Cache failures fall through to the store.
func (b *Board) Top(ctx context.Context, n int) ([]models.UserCompact, error) {
	if n <= 0 {
		n = DefaultSize
	}
	if n > MaxSize {
		n = MaxSize
	}
	key := fmt.Sprintf("leaderboard:top:%d", n)

	if b.cache != nil {
		v, err := b.breaker.Execute(func() (interface{}, error) {
			data, ok, err := b.cache.Get(ctx, key)
			if err != nil || !ok {
				return nil, err
			}
			return data, nil
		})
		if err != nil {
			b.logger.Warn().Err(err).Msg("leaderboard cache read failed")
		} else if data, ok := v.([]byte); ok {
			var out []models.UserCompact
			if err := json.Unmarshal(data, &out); err == nil {
				return out, nil
			}
		}
	}

	users, err := b.users.TopUsers(ctx, n)
	if err != nil {
		return nil, err
	}
	out := Rank(users)

	if b.cache != nil {
		data, err := json.Marshal(out)
		if err == nil {
			_, err = b.breaker.Execute(func() (interface{}, error) {
				return nil, b.cache.Set(ctx, key, data, CacheTTL)
			})
		}
		if err != nil {
			b.logger.Warn().Err(err).Msg("leaderboard cache write failed")
		}
	}
	return out, nil
}

// Rank converts users already ordered by balance into leaderboard rows.
func Rank(users []models.User) []models.UserCompact {
	out := make([]models.UserCompact, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToCompact())
	}
	return out
}
