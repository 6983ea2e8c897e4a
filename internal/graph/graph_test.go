package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/session"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/anonto42/campus-feed/backend/internal/store/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, ids ...string) (*Manager, repositories.UserRepository, *storetest.Faulty) {
	t.Helper()
	s := storetest.NewFaulty(store.NewMemoryStore())
	users := repositories.NewUserRepository(s)
	for _, id := range ids {
		require.NoError(t, users.CreateUser(context.Background(), &models.User{ID: id, Name: id, CreatedAt: time.Now()}))
	}
	return New(users, zerolog.Nop()), users, s
}

func user(t *testing.T, users repositories.UserRepository, id string) *models.User {
	t.Helper()
	u, err := users.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestFollowUnfollow_Symmetric(t *testing.T) {
	m, users, _ := setup(t, "a", "b")
	ctx := context.Background()

	require.NoError(t, m.Follow(ctx, session.New("a", ""), "b"))
	assert.Equal(t, []string{"b"}, user(t, users, "a").Following)
	assert.Equal(t, []string{"a"}, user(t, users, "b").Followers)

	require.NoError(t, m.Unfollow(ctx, session.New("a", ""), "b"))
	assert.Empty(t, user(t, users, "a").Following)
	assert.Empty(t, user(t, users, "b").Followers)
}

func TestFollow_Idempotent(t *testing.T) {
	m, users, _ := setup(t, "a", "b")
	ctx := context.Background()

	require.NoError(t, m.Follow(ctx, session.New("a", ""), "b"))
	require.NoError(t, m.Follow(ctx, session.New("a", ""), "b"))
	assert.Equal(t, []string{"b"}, user(t, users, "a").Following)
	assert.Equal(t, []string{"a"}, user(t, users, "b").Followers)

	require.NoError(t, m.Unfollow(ctx, session.New("a", ""), "b"))
	require.NoError(t, m.Unfollow(ctx, session.New("a", ""), "b"))
	assert.Empty(t, user(t, users, "b").Followers)
}

func TestFollow_Rejections(t *testing.T) {
	m, _, _ := setup(t, "a")
	ctx := context.Background()

	assert.ErrorIs(t, m.Follow(ctx, session.New("a", ""), "a"), models.ErrValidation)
	assert.ErrorIs(t, m.Unfollow(ctx, session.New("a", ""), "a"), models.ErrValidation)
	assert.ErrorIs(t, m.Follow(ctx, session.New("a", ""), "ghost"), models.ErrNotFound)
	assert.ErrorIs(t, m.Follow(ctx, session.New("ghost", ""), "a"), models.ErrNotFound)
}

func TestFollow_FailedFirstWriteChangesNothing(t *testing.T) {
	m, users, s := setup(t, "a", "b")
	boom := errors.New("network down")
	s.FailNext("AtomicUpdate", models.CollectionUsers, 1, boom)

	err := m.Follow(context.Background(), session.New("a", ""), "b")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, user(t, users, "a").Following)
	assert.Empty(t, user(t, users, "b").Followers)
}

func TestFollow_ConcurrentFollowersAllLand(t *testing.T) {
	ids := []string{"target", "f1", "f2", "f3", "f4", "f5", "f6"}
	m, users, _ := setup(t, ids...)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range ids[1:] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, m.Follow(ctx, session.New(id, ""), "target"))
		}(id)
	}
	wg.Wait()
	assert.ElementsMatch(t, ids[1:], user(t, users, "target").Followers)
}

func TestReconcile_RepairsAsymmetry(t *testing.T) {
	m, users, s := setup(t, "a", "b", "c")
	ctx := context.Background()

	// a -> b half-written (followers only), c -> a half-written (following only).
	require.NoError(t, s.Put(ctx, models.CollectionUsers, "b", store.Fields{"followers": []string{"a"}}, true))
	require.NoError(t, s.Put(ctx, models.CollectionUsers, "c", store.Fields{"following": []string{"a"}}, true))

	n, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, user(t, users, "b").Followers)
	assert.Equal(t, []string{"c"}, user(t, users, "a").Followers)

	n, err = m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// afterSnapshot runs hook once GetUsers has read its snapshot.
type afterSnapshot struct {
	repositories.UserRepository
	hook func()
}

func (a afterSnapshot) GetUsers(ctx context.Context) ([]models.User, error) {
	users, err := a.UserRepository.GetUsers(ctx)
	a.hook()
	return users, err
}

func TestReconcile_KeepsFollowThatCompletedAfterSnapshot(t *testing.T) {
	_, users, s := setup(t, "a", "b")
	ctx := context.Background()

	// a -> b has written b.followers and completes its second write while
	// the pass is running.
	require.NoError(t, s.Put(ctx, models.CollectionUsers, "b", store.Fields{"followers": []string{"a"}}, true))
	m := New(afterSnapshot{UserRepository: users, hook: func() {
		require.NoError(t, s.Put(ctx, models.CollectionUsers, "a", store.Fields{"following": []string{"b"}}, true))
	}}, zerolog.Nop())

	n, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []string{"a"}, user(t, users, "b").Followers)
	assert.Equal(t, []string{"b"}, user(t, users, "a").Following)
}

func TestReconcile_SkipsUnfollowThatCompletedAfterSnapshot(t *testing.T) {
	m0, users, s := setup(t, "a", "b")
	ctx := context.Background()
	require.NoError(t, m0.Follow(ctx, session.New("a", ""), "b"))

	// The snapshot sees a.following with b but b.followers without a, then
	// a unfollows for good.
	require.NoError(t, s.Put(ctx, models.CollectionUsers, "b", store.Fields{"followers": []string{}}, true))
	m := New(afterSnapshot{UserRepository: users, hook: func() {
		require.NoError(t, s.Put(ctx, models.CollectionUsers, "a", store.Fields{"following": []string{}}, true))
	}}, zerolog.Nop())

	n, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, user(t, users, "b").Followers)
}

func TestFollowersAndFollowing(t *testing.T) {
	m, _, _ := setup(t, "a", "b", "c")
	ctx := context.Background()
	require.NoError(t, m.Follow(ctx, session.New("b", ""), "a"))
	require.NoError(t, m.Follow(ctx, session.New("c", ""), "a"))

	followers, err := m.Followers(ctx, "a")
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, "b", followers[0].ID)
	assert.Equal(t, "c", followers[1].ID)

	following, err := m.Following(ctx, "b")
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "a", following[0].ID)
}
