package content

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/ledger"
	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/notify"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/session"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/anonto42/campus-feed/backend/internal/store/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *storetest.Faulty
	users    repositories.UserRepository
	posts    repositories.PostRepository
	queue    repositories.ReconcileRepository
	notifier *notify.Notifier
	svc      *Service
}

func newFixture(t *testing.T, ids ...string) *fixture {
	t.Helper()
	s := storetest.NewFaulty(store.NewMemoryStore())
	users := repositories.NewUserRepository(s)
	posts := repositories.NewPostRepository(s)
	queue := repositories.NewMemoryReconcileRepository()
	l := ledger.New(users, queue, zerolog.Nop())
	n := notify.New(s, repositories.NewNotificationRepository(s), queue, zerolog.Nop())
	for _, id := range ids {
		require.NoError(t, users.CreateUser(context.Background(), &models.User{ID: id, Name: "name-" + id, Branch: "CSE", Year: 3, CreatedAt: time.Now()}))
	}
	return &fixture{store: s, users: users, posts: posts, queue: queue, notifier: n, svc: NewService(posts, users, l, n, zerolog.Nop())}
}

func (f *fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	u, err := f.users.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u.TotalPoints
}

func (f *fixture) post(t *testing.T, author string) *models.Post {
	t.Helper()
	res, err := f.svc.CreatePost(context.Background(), session.New(author, ""), CreatePostInput{Content: "hello"})
	require.NoError(t, err)
	return res.Post
}

func likers(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("l%d", i+1)
	}
	return ids
}

func TestCreatePost_FirstThenPerPost(t *testing.T) {
	f := newFixture(t, "u")
	ctx := context.Background()

	res, err := f.svc.CreatePost(ctx, session.New("u", ""), CreatePostInput{Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Post.Content)
	assert.Equal(t, "name-u", res.Post.AuthorName)
	assert.Equal(t, "CSE", res.Post.AuthorBranch)
	assert.Empty(t, res.Post.Likes)
	assert.Empty(t, res.Post.Comments)
	assert.False(t, res.LedgerPending)
	assert.Equal(t, int64(7), f.balance(t, "u"))

	f.post(t, "u")
	assert.Equal(t, int64(9), f.balance(t, "u"))
}

func TestCreatePost_Validation(t *testing.T) {
	f := newFixture(t, "u")
	ctx := context.Background()

	_, err := f.svc.CreatePost(ctx, session.New("u", ""), CreatePostInput{Content: "   "})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, f.balance(t, "u"))

	res, err := f.svc.CreatePost(ctx, session.New("u", ""), CreatePostInput{MediaURL: "https://cdn.example/p.png", MediaType: "image"})
	require.NoError(t, err)
	assert.Equal(t, "image", res.Post.MediaType)

	_, err = f.svc.CreatePost(ctx, session.New("ghost", ""), CreatePostInput{Content: "hi"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreatePost_LedgerFailureIsQueued(t *testing.T) {
	f := newFixture(t, "u")
	ctx := context.Background()
	f.store.FailNext("AtomicUpdate", models.CollectionUsers, 5, store.ErrConflict)

	res, err := f.svc.CreatePost(ctx, session.New("u", ""), CreatePostInput{Content: "hello"})
	require.NoError(t, err)
	assert.True(t, res.LedgerPending)
	assert.Zero(t, f.balance(t, "u"))

	_, err = f.posts.GetPostByID(ctx, res.Post.ID)
	require.NoError(t, err)
	tasks, err := f.queue.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.ReconcileKindLedger, tasks[0].Kind)
}

func TestCreatePost_NotifiesFollowerSnapshot(t *testing.T) {
	f := newFixture(t, "u", "f1", "f2", "f3", "late")
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, models.CollectionUsers, "u", store.Fields{"followers": []string{"f1", "f2", "f3"}}, true))

	p := f.post(t, "u")
	require.NoError(t, f.store.Put(ctx, models.CollectionUsers, "u", store.Fields{"followers": []string{"f1", "f2", "f3", "late"}}, true))

	for _, id := range []string{"f1", "f2", "f3"} {
		unread, err := f.notifier.Unread(ctx, session.New(id, ""))
		require.NoError(t, err)
		require.Len(t, unread, 1)
		assert.Equal(t, p.ID, unread[0].PostID)
		assert.Equal(t, "u", unread[0].SenderID)
	}
	unread, err := f.notifier.Unread(ctx, session.New("late", ""))
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t, "u", "other")
	ctx := context.Background()
	p := f.post(t, "u")

	_, err := f.svc.DeletePost(ctx, session.New("other", ""), p.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = f.svc.DeletePost(ctx, session.New("u", ""), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.balance(t, "u"))

	_, err = f.svc.GetPost(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.DeletePost(ctx, session.New("u", ""), p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.Like(ctx, session.New("other", ""), p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeletePost_FloorsAtZero(t *testing.T) {
	f := newFixture(t, "u")
	ctx := context.Background()
	p := f.post(t, "u")
	require.NoError(t, f.store.Put(ctx, models.CollectionUsers, "u", store.Fields{"totalPoints": int64(1)}, true))

	_, err := f.svc.DeletePost(ctx, session.New("u", ""), p.ID)
	require.NoError(t, err)
	assert.Zero(t, f.balance(t, "u"))
}

func TestLike_ThresholdAwardsOnceAndReverses(t *testing.T) {
	f := newFixture(t, append([]string{"u"}, likers(10)...)...)
	ctx := context.Background()
	p := f.post(t, "u")

	for _, id := range likers(9) {
		_, err := f.svc.Like(ctx, session.New(id, ""), p.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(7), f.balance(t, "u"))

	res, err := f.svc.Like(ctx, session.New("l10", ""), p.ID)
	require.NoError(t, err)
	assert.Len(t, res.Post.Likes, 10)
	assert.Equal(t, int64(10), f.balance(t, "u"))

	res, err = f.svc.Like(ctx, session.New("l10", ""), p.ID)
	require.NoError(t, err)
	assert.Len(t, res.Post.Likes, 10)
	assert.Equal(t, int64(10), f.balance(t, "u"))

	_, err = f.svc.Unlike(ctx, session.New("l10", ""), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.balance(t, "u"))

	_, err = f.svc.Unlike(ctx, session.New("l10", ""), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.balance(t, "u"))

	_, err = f.svc.Like(ctx, session.New("l10", ""), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.balance(t, "u"))
}

func TestLike_ConcurrentLikesAwardThresholdOnce(t *testing.T) {
	ids := likers(12)
	f := newFixture(t, append([]string{"u"}, ids...)...)
	ctx := context.Background()
	p := f.post(t, "u")

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.svc.Like(ctx, session.New(id, ""), p.ID)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	got, err := f.svc.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Likes, 12)
	assert.Equal(t, int64(10), f.balance(t, "u"))
}

func TestComments_Threading(t *testing.T) {
	f := newFixture(t, "u", "v")
	ctx := context.Background()
	p := f.post(t, "u")
	other := f.post(t, "u")

	top, err := f.svc.AddComment(ctx, session.New("v", ""), p.ID, "nice", "")
	require.NoError(t, err)
	reply, err := f.svc.AddComment(ctx, session.New("u", ""), p.ID, "thanks", top.ID)
	require.NoError(t, err)
	deep, err := f.svc.AddComment(ctx, session.New("v", ""), p.ID, "welcome", reply.ID)
	require.NoError(t, err)
	assert.Equal(t, top.ID, reply.ParentCommentID)
	assert.Less(t, top.Seq, reply.Seq)
	assert.Less(t, reply.Seq, deep.Seq)

	_, err = f.svc.AddComment(ctx, session.New("v", ""), other.ID, "cross", top.ID)
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = f.svc.AddComment(ctx, session.New("v", ""), p.ID, " ", "")
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := f.svc.GetPost(ctx, p.ID)
	require.NoError(t, err)
	thread := Thread(got)
	require.Len(t, thread, 1)
	assert.Equal(t, top.ID, thread[0].ID)
	require.Len(t, thread[0].Replies, 2)
	assert.Equal(t, reply.ID, thread[0].Replies[0].ID)
	assert.Equal(t, deep.ID, thread[0].Replies[1].ID)
}

func TestDeleteComment_DoesNotCascade(t *testing.T) {
	f := newFixture(t, "u", "v")
	ctx := context.Background()
	p := f.post(t, "u")

	top, err := f.svc.AddComment(ctx, session.New("v", ""), p.ID, "nice", "")
	require.NoError(t, err)
	reply, err := f.svc.AddComment(ctx, session.New("u", ""), p.ID, "thanks", top.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteComment(ctx, session.New("u", ""), p.ID, top.ID), models.ErrUnauthorized)
	require.NoError(t, f.svc.DeleteComment(ctx, session.New("v", ""), p.ID, top.ID))
	assert.ErrorIs(t, f.svc.DeleteComment(ctx, session.New("v", ""), p.ID, top.ID), models.ErrNotFound)

	got, err := f.svc.GetPost(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, reply.ID, got.Comments[0].ID)

	thread := Thread(got)
	require.Len(t, thread, 1)
	assert.Equal(t, reply.ID, thread[0].ID)
}

func TestEngagementWalkthrough(t *testing.T) {
	f := newFixture(t, append([]string{"u", "fan"}, likers(10)...)...)
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, models.CollectionUsers, "u", store.Fields{"followers": []string{"fan"}}, true))

	p := f.post(t, "u")
	assert.Equal(t, int64(7), f.balance(t, "u"))
	feed, err := f.svc.Feed(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Empty(t, feed[0].Comments)

	for _, id := range likers(10) {
		_, err := f.svc.Like(ctx, session.New(id, ""), p.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(10), f.balance(t, "u"))

	_, err = f.svc.Unlike(ctx, session.New("l10", ""), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.balance(t, "u"))

	_, err = f.svc.DeletePost(ctx, session.New("u", ""), p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.balance(t, "u"))

	unread, err := f.notifier.Unread(ctx, session.New("fan", ""))
	require.NoError(t, err)
	assert.Len(t, unread, 1)
	_, err = f.notifier.MarkAllRead(ctx, session.New("fan", ""))
	require.NoError(t, err)
	unread, err = f.notifier.Unread(ctx, session.New("fan", ""))
	require.NoError(t, err)
	assert.Empty(t, unread)
}
