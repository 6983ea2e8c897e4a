package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/store"
)

// PostUpdateFunc computes the fields to merge into the current post.
type PostUpdateFunc func(p *models.Post) (store.Fields, error)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPostByID(ctx context.Context, id string) (*models.Post, error)
	GetPosts(ctx context.Context, limit int) ([]models.Post, error)
	GetPostsByUserID(ctx context.Context, userID string, limit int) ([]models.Post, error)
	UpdatePost(ctx context.Context, id string, fn PostUpdateFunc) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
}

type postRepository struct {
	store store.Store
}

// NewPostRepository creates a new PostRepository backed by s
func NewPostRepository(s store.Store) PostRepository {
	return &postRepository{store: s}
}

func (r *postRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if post.Likes == nil {
		post.Likes = []string{}
	}
	if post.Comments == nil {
		post.Comments = []models.Comment{}
	}
	fields, err := store.Encode(post)
	if err != nil {
		return err
	}
	return mapStoreError(r.store.Put(ctx, models.CollectionPosts, post.ID, fields, false))
}

func (r *postRepository) GetPostByID(ctx context.Context, id string) (*models.Post, error) {
	doc, err := r.store.Get(ctx, models.CollectionPosts, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodePost(doc)
}

// GetPosts returns the newest posts first.
func (r *postRepository) GetPosts(ctx context.Context, limit int) ([]models.Post, error) {
	docs, err := r.store.Query(ctx, FeedQuery(limit))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodePosts(docs)
}

func (r *postRepository) GetPostsByUserID(ctx context.Context, userID string, limit int) ([]models.Post, error) {
	docs, err := r.store.Query(ctx, FeedQuery(limit).Where("authorId", userID))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodePosts(docs)
}

func (r *postRepository) UpdatePost(ctx context.Context, id string, fn PostUpdateFunc) (*models.Post, error) {
	doc, err := r.store.AtomicUpdate(ctx, models.CollectionPosts, id, func(current *store.Document) (store.Fields, error) {
		if current == nil {
			return nil, fmt.Errorf("post %s: %w", id, models.ErrNotFound)
		}
		p, err := DecodePost(current)
		if err != nil {
			return nil, err
		}
		return fn(p)
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodePost(doc)
}

func (r *postRepository) DeletePost(ctx context.Context, id string) error {
	return mapStoreError(r.store.Delete(ctx, models.CollectionPosts, id))
}

// FeedQuery selects posts by creation time, newest first.
func FeedQuery(limit int) store.Query {
	return store.Query{Collection: models.CollectionPosts, OrderBy: "createdAt", Desc: true, Limit: limit}
}

// DecodePost decodes a post document.
func DecodePost(doc *store.Document) (*models.Post, error) {
	var p models.Post
	if err := doc.Decode(&p); err != nil {
		return nil, err
	}
	p.ID = doc.ID
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
	return &p, nil
}

func DecodePosts(docs []*store.Document) ([]models.Post, error) {
	posts := make([]models.Post, 0, len(docs))
	for _, d := range docs {
		p, err := DecodePost(d)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, nil
}
