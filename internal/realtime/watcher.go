// Package realtime keeps a signed-in session's views live.
//
// A Watcher opens one store subscription per view and multiplexes their
// snapshots into a single Frame channel. Frames of one stream arrive in
// commit order; frames of different streams are not ordered relative to
// each other.
package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/content"
	"github.com/anonto42/campus-feed/backend/internal/leaderboard"
	"github.com/anonto42/campus-feed/backend/internal/metrics"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/session"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/rs/zerolog"
)

const (
	StreamSelf          = "self"
	StreamNotifications = "notifications"
	StreamFeed          = "feed"
	StreamLeaderboard   = "leaderboard"
	streamProfilePrefix = "profile:"
)

// ErrClosed is returned when a closed Watcher is used.
var ErrClosed = errors.New("watcher closed")

// Frame is one pushed view update.
type Frame struct {
	Stream string      `json:"stream"`
	Data   interface{} `json:"data"`
	TS     time.Time   `json:"ts"`
}

// Options sizes the watched views.
type Options struct {
	FeedLimit        int
	LeaderboardLimit int
}

type Watcher struct {
	store  store.Store
	sess   session.Session
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	out    chan Frame
	wg     sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	profile *store.Subscription
}

// Watch opens the session streams: own user document, unread notifications,
// the feed and the leaderboard.
func Watch(ctx context.Context, s store.Store, sess session.Session, opts Options, logger zerolog.Logger) (*Watcher, error) {
	if opts.LeaderboardLimit <= 0 {
		opts.LeaderboardLimit = leaderboard.DefaultSize
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		store:  s,
		sess:   sess,
		logger: logger.With().Str("component", "realtime").Str("user_id", sess.UserID).Logger(),
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan Frame, 32),
	}
	metrics.LiveSessions.Inc()

	streams := []struct {
		name   string
		query  store.Query
		decode func([]*store.Document) (interface{}, error)
	}{
		{StreamSelf, repositories.UserQuery(sess.UserID), decodeUser},
		{StreamNotifications, repositories.UnreadQuery(sess.UserID), decodeNotifications},
		{StreamFeed, repositories.FeedQuery(opts.FeedLimit), decodeFeed},
		{StreamLeaderboard, repositories.TopUsersQuery(opts.LeaderboardLimit), decodeLeaderboard},
	}
	for _, st := range streams {
		sub, err := s.Subscribe(ctx, st.query)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.pump(st.name, sub, st.decode)
	}
	return w, nil
}

// Frames delivers every stream's snapshots. It is closed by Close.
func (w *Watcher) Frames() <-chan Frame {
	return w.out
}

// WatchProfile starts streaming userID's profile, replacing any profile
// stream already open.
func (w *Watcher) WatchProfile(userID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.profile != nil {
		w.profile.Close()
		w.profile = nil
	}
	sub, err := w.store.Subscribe(w.ctx, repositories.UserQuery(userID))
	if err != nil {
		return err
	}
	w.profile = sub
	w.pump(streamProfilePrefix+userID, sub, decodeUser)
	return nil
}

// UnwatchProfile stops the profile stream, if any.
func (w *Watcher) UnwatchProfile() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.profile != nil {
		w.profile.Close()
		w.profile = nil
	}
}

// Close tears every subscription down and closes Frames.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	close(w.out)
	metrics.LiveSessions.Dec()
}

func (w *Watcher) pump(name string, sub *store.Subscription, decode func([]*store.Document) (interface{}, error)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer sub.Close()
		for snap := range sub.Snapshots() {
			data, err := decode(snap.Documents)
			if err != nil {
				w.logger.Error().Err(err).Str("stream", name).Msg("decode snapshot")
				continue
			}
			select {
			case w.out <- Frame{Stream: name, Data: data, TS: snap.At}:
			case <-w.ctx.Done():
				return
			}
		}
	}()
}

func decodeUser(docs []*store.Document) (interface{}, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	return repositories.DecodeUser(docs[0])
}

func decodeNotifications(docs []*store.Document) (interface{}, error) {
	return repositories.DecodeNotifications(docs)
}

func decodeFeed(docs []*store.Document) (interface{}, error) {
	posts, err := repositories.DecodePosts(docs)
	if err != nil {
		return nil, err
	}
	views := make([]content.PostView, 0, len(posts))
	for i := range posts {
		views = append(views, content.View(&posts[i]))
	}
	return views, nil
}

func decodeLeaderboard(docs []*store.Document) (interface{}, error) {
	users, err := repositories.DecodeUsers(docs)
	if err != nil {
		return nil, err
	}
	return leaderboard.Rank(users), nil
}
