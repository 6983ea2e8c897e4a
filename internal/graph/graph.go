// Package graph maintains the follower/following relation between users.
//
// A follow touches two user documents and is not atomic across them.
// following is the commit point: Follow writes target.followers before
// self.following and Unfollow removes self.following before target.followers,
// so an interrupted operation leaves at most an extra followers entry. Both
// writes assert set membership, so repeating the operation or running
// Reconcile restores symmetry.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/session"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/rs/zerolog"
)

type Manager struct {
	users  repositories.UserRepository
	logger zerolog.Logger
}

func New(users repositories.UserRepository, logger zerolog.Logger) *Manager {
	return &Manager{users: users, logger: logger.With().Str("component", "graph").Logger()}
}

// Follow makes sess follow targetID. Following an already followed user is a no-op.
func (m *Manager) Follow(ctx context.Context, sess session.Session, targetID string) error {
	if err := m.check(ctx, sess, targetID); err != nil {
		return err
	}
	if err := m.setMember(ctx, targetID, "followers", sess.UserID, true); err != nil {
		return fmt.Errorf("follow %s: %w", targetID, err)
	}
	if err := m.setMember(ctx, sess.UserID, "following", targetID, true); err != nil {
		return fmt.Errorf("follow %s: %w", targetID, err)
	}
	m.logger.Info().Str("user_id", sess.UserID).Str("target_id", targetID).Msg("followed")
	return nil
}

// Unfollow removes the follow edge. Unfollowing a user not followed is a no-op.
func (m *Manager) Unfollow(ctx context.Context, sess session.Session, targetID string) error {
	if err := m.check(ctx, sess, targetID); err != nil {
		return err
	}
	if err := m.setMember(ctx, sess.UserID, "following", targetID, false); err != nil {
		return fmt.Errorf("unfollow %s: %w", targetID, err)
	}
	if err := m.setMember(ctx, targetID, "followers", sess.UserID, false); err != nil {
		return fmt.Errorf("unfollow %s: %w", targetID, err)
	}
	m.logger.Info().Str("user_id", sess.UserID).Str("target_id", targetID).Msg("unfollowed")
	return nil
}

func (m *Manager) check(ctx context.Context, sess session.Session, targetID string) error {
	if targetID == "" || sess.UserID == targetID {
		return fmt.Errorf("cannot follow yourself: %w", models.ErrValidation)
	}
	if _, err := m.users.GetUserByID(ctx, sess.UserID); err != nil {
		return err
	}
	if _, err := m.users.GetUserByID(ctx, targetID); err != nil {
		return err
	}
	return nil
}

// setMember adds or removes member in the set field of userID.
func (m *Manager) setMember(ctx context.Context, userID, field, member string, present bool) error {
	return store.Retry(ctx, "graph."+field, func(ctx context.Context) error {
		_, err := m.users.UpdateUser(ctx, userID, func(u *models.User) (store.Fields, error) {
			set := u.Followers
			if field == "following" {
				set = u.Following
			}
			next, changed := toggle(set, member, present)
			if !changed {
				return nil, nil
			}
			return store.Fields{field: next}, nil
		})
		return err
	})
}

// Followers lists the profiles following userID.
func (m *Manager) Followers(ctx context.Context, userID string) ([]models.UserCompact, error) {
	u, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.compact(ctx, u.Followers)
}

// Following lists the profiles userID follows.
func (m *Manager) Following(ctx context.Context, userID string) ([]models.UserCompact, error) {
	u, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.compact(ctx, u.Following)
}

func (m *Manager) compact(ctx context.Context, ids []string) ([]models.UserCompact, error) {
	users, err := m.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserCompact, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToCompact())
	}
	return out, nil
}

// Reconcile rewrites every followers set that disagrees with the following
// sets and returns how many users were repaired.
func (m *Manager) Reconcile(ctx context.Context) (int, error) {
	users, err := m.users.GetUsers(ctx)
	if err != nil {
		return 0, err
	}
	want := make(map[string]map[string]bool, len(users))
	for _, u := range users {
		for _, target := range u.Following {
			if want[target] == nil {
				want[target] = make(map[string]bool)
			}
			want[target][u.ID] = true
		}
	}

	repaired := 0
	for _, u := range users {
		missing, extra := diff(u.Followers, want[u.ID])
		if len(missing) == 0 && len(extra) == 0 {
			continue
		}
		// The snapshot is not atomic across users and a follow may have
		// finished since; only repair entries the follower still disagrees with.
		if missing, err = m.confirm(ctx, u.ID, missing, true); err != nil {
			return repaired, fmt.Errorf("reconcile followers of %s: %w", u.ID, err)
		}
		if extra, err = m.confirm(ctx, u.ID, extra, false); err != nil {
			return repaired, fmt.Errorf("reconcile followers of %s: %w", u.ID, err)
		}
		if len(missing) == 0 && len(extra) == 0 {
			continue
		}
		err = store.Retry(ctx, "graph.reconcile", func(ctx context.Context) error {
			_, err := m.users.UpdateUser(ctx, u.ID, func(cur *models.User) (store.Fields, error) {
				next := cur.Followers
				for _, id := range missing {
					next, _ = toggle(next, id, true)
				}
				for _, id := range extra {
					next, _ = toggle(next, id, false)
				}
				return store.Fields{"followers": next}, nil
			})
			return err
		})
		if err != nil {
			return repaired, fmt.Errorf("reconcile followers of %s: %w", u.ID, err)
		}
		m.logger.Warn().Str("user_id", u.ID).Strs("added", missing).Strs("removed", extra).Msg("repaired followers")
		repaired++
	}
	return repaired, nil
}

// confirm re-reads each follower and keeps the ids whose following set
// currently contains targetID exactly when follows is true. A deleted
// follower follows nobody.
func (m *Manager) confirm(ctx context.Context, targetID string, ids []string, follows bool) ([]string, error) {
	var out []string
	for _, id := range ids {
		f, err := m.users.GetUserByID(ctx, id)
		switch {
		case errors.Is(err, models.ErrNotFound):
			if !follows {
				out = append(out, id)
			}
			continue
		case err != nil:
			return nil, err
		}
		if contains(f.Following, targetID) == follows {
			out = append(out, id)
		}
	}
	return out, nil
}

func contains(set []string, id string) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}

func diff(have []string, want map[string]bool) (missing, extra []string) {
	seen := make(map[string]bool, len(have))
	for _, id := range have {
		seen[id] = true
		if !want[id] {
			extra = append(extra, id)
		}
	}
	for id := range want {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing, extra
}

func toggle(set []string, member string, present bool) ([]string, bool) {
	out := make([]string, 0, len(set)+1)
	found := false
	for _, id := range set {
		if id == member {
			found = true
			if !present {
				continue
			}
		}
		out = append(out, id)
	}
	if present && !found {
		out = append(out, member)
	}
	return out, found != present
}
