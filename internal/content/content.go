// Package content owns posts, their like sets and their comment lists.
package content

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/ledger"
	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/session"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier delivers new_post notifications and reports whether delivery is
// still pending.
type Notifier interface {
	FanOut(ctx context.Context, post *models.Post, recipients []string) bool
}

type Service struct {
	posts    repositories.PostRepository
	users    repositories.UserRepository
	ledger   *ledger.Ledger
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(posts repositories.PostRepository, users repositories.UserRepository, l *ledger.Ledger, n Notifier, logger zerolog.Logger) *Service {
	return &Service{
		posts:    posts,
		users:    users,
		ledger:   l,
		notifier: n,
		logger:   logger.With().Str("component", "content").Logger(),
		now:      time.Now,
	}
}

type CreatePostInput struct {
	Content   string
	MediaURL  string
	MediaType string
}

// PostResult is returned by operations that trigger side effects after the
// post write committed. The pending flags mean a side effect was queued for
// reconciliation.
type PostResult struct {
	Post          *models.Post `json:"post"`
	LedgerPending bool         `json:"ledgerPending,omitempty"`
	FanoutPending bool         `json:"fanoutPending,omitempty"`
}

// CreatePost stores a new post, awards the author and notifies the author's
// followers as of now.
func (s *Service) CreatePost(ctx context.Context, sess session.Session, in CreatePostInput) (*PostResult, error) {
	body := strings.TrimSpace(in.Content)
	if body == "" && in.MediaURL == "" {
		return nil, fmt.Errorf("post needs text or media: %w", models.ErrValidation)
	}
	author, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:           uuid.NewString(),
		AuthorID:     author.ID,
		AuthorName:   author.Name,
		AuthorBranch: author.Branch,
		AuthorYear:   author.Year,
		Content:      body,
		MediaURL:     in.MediaURL,
		MediaType:    in.MediaType,
		Likes:        []string{},
		Comments:     []models.Comment{},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.logger.Info().Str("post_id", post.ID).Str("user_id", author.ID).Msg("post created")

	res := &PostResult{Post: post}
	res.LedgerPending = s.ledger.ApplyOrQueue(ctx, author.ID, ledger.PostCreated(post.ID))
	res.FanoutPending = s.notifier.FanOut(ctx, post, author.Followers)
	return res, nil
}

// DeletePost removes a post owned by sess and reverses its post award.
func (s *Service) DeletePost(ctx context.Context, sess session.Session, postID string) (*PostResult, error) {
	post, err := s.posts.GetPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != sess.UserID {
		return nil, fmt.Errorf("delete post %s: %w", postID, models.ErrUnauthorized)
	}
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		return nil, err
	}
	s.logger.Info().Str("post_id", postID).Str("user_id", sess.UserID).Msg("post deleted")

	res := &PostResult{Post: post}
	res.LedgerPending = s.ledger.ApplyOrQueue(ctx, post.AuthorID, ledger.PostDeleted(postID))
	return res, nil
}

// Like adds sess to the like set. Liking twice is a no-op.
func (s *Service) Like(ctx context.Context, sess session.Session, postID string) (*PostResult, error) {
	return s.toggleLike(ctx, sess, postID, true)
}

// Unlike removes sess from the like set. Unliking a post not liked is a no-op.
func (s *Service) Unlike(ctx context.Context, sess session.Session, postID string) (*PostResult, error) {
	return s.toggleLike(ctx, sess, postID, false)
}

func (s *Service) toggleLike(ctx context.Context, sess session.Session, postID string, like bool) (*PostResult, error) {
	if _, err := s.users.GetUserByID(ctx, sess.UserID); err != nil {
		return nil, err
	}

	var (
		before, after int
		crossing      int64
		post          *models.Post
	)
	err := store.Retry(ctx, "content.like", func(ctx context.Context) error {
		var err error
		post, err = s.posts.UpdatePost(ctx, postID, func(p *models.Post) (store.Fields, error) {
			before, after, crossing = len(p.Likes), len(p.Likes), p.ThresholdCrossings
			if p.HasLiked(sess.UserID) == like {
				return nil, nil
			}
			likes := make([]string, 0, len(p.Likes)+1)
			for _, id := range p.Likes {
				if id != sess.UserID {
					likes = append(likes, id)
				}
			}
			if like {
				likes = append(likes, sess.UserID)
			}
			after = len(likes)
			fields := store.Fields{"likes": likes}
			if ledger.IsCrossing(before, after) {
				crossing = p.ThresholdCrossings + 1
				fields["thresholdCrossings"] = crossing
			}
			return fields, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	res := &PostResult{Post: post}
	if d, ok := ledger.LikeTransition(postID, before, after, crossing); ok {
		s.logger.Info().Str("post_id", postID).Int("before", before).Int("after", after).Msg("like threshold crossed")
		res.LedgerPending = s.ledger.ApplyOrQueue(ctx, post.AuthorID, d)
	}
	return res, nil
}

// AddComment appends a comment, or a reply when parentID names a comment of
// the same post.
func (s *Service) AddComment(ctx context.Context, sess session.Session, postID, text, parentID string) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("comment text is empty: %w", models.ErrValidation)
	}
	author, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	comment := models.Comment{
		ID:              uuid.NewString(),
		UserID:          author.ID,
		UserName:        author.Name,
		Text:            text,
		ParentCommentID: parentID,
		CreatedAt:       s.now().UTC(),
	}
	err = store.Retry(ctx, "content.comment", func(ctx context.Context) error {
		_, err := s.posts.UpdatePost(ctx, postID, func(p *models.Post) (store.Fields, error) {
			if parentID != "" && p.CommentByID(parentID) < 0 {
				return nil, fmt.Errorf("parent comment %s is not on post %s: %w", parentID, postID, models.ErrValidation)
			}
			comment.Seq = p.CommentSeq + 1
			return store.Fields{
				"comments":   append(append([]models.Comment{}, p.Comments...), comment),
				"commentSeq": comment.Seq,
			}, nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes exactly one comment written by sess. Replies to it stay.
func (s *Service) DeleteComment(ctx context.Context, sess session.Session, postID, commentID string) error {
	return store.Retry(ctx, "content.comment", func(ctx context.Context) error {
		_, err := s.posts.UpdatePost(ctx, postID, func(p *models.Post) (store.Fields, error) {
			i := p.CommentByID(commentID)
			if i < 0 {
				return nil, fmt.Errorf("comment %s: %w", commentID, models.ErrNotFound)
			}
			if p.Comments[i].UserID != sess.UserID {
				return nil, fmt.Errorf("delete comment %s: %w", commentID, models.ErrUnauthorized)
			}
			rest := make([]models.Comment, 0, len(p.Comments)-1)
			rest = append(rest, p.Comments[:i]...)
			rest = append(rest, p.Comments[i+1:]...)
			return store.Fields{"comments": rest}, nil
		})
		return err
	})
}

func (s *Service) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	return s.posts.GetPostByID(ctx, postID)
}

// Feed returns posts newest first. authorID narrows it to one author.
func (s *Service) Feed(ctx context.Context, authorID string, limit int) ([]models.Post, error) {
	if authorID != "" {
		return s.posts.GetPostsByUserID(ctx, authorID, limit)
	}
	return s.posts.GetPosts(ctx, limit)
}
