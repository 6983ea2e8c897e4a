package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/store"
)

// UserUpdateFunc computes the fields to merge into the current user.
// Returning nil fields leaves the document untouched.
type UserUpdateFunc func(u *models.User) (store.Fields, error)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error)
	GetUsers(ctx context.Context) ([]models.User, error)
	TopUsers(ctx context.Context, n int) ([]models.User, error)
	// UpdateUser applies fn atomically to the stored user.
	UpdateUser(ctx context.Context, id string, fn UserUpdateFunc) (*models.User, error)
}

type userRepository struct {
	store store.Store
}

// NewUserRepository creates a new UserRepository backed by s
func NewUserRepository(s store.Store) UserRepository {
	return &userRepository{store: s}
}

// ErrAlreadyRegistered is returned by CreateUser when the document exists.
var ErrAlreadyRegistered = errors.New("user already registered")

func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	fields, err := store.Encode(user)
	if err != nil {
		return err
	}
	_, err = r.store.AtomicUpdate(ctx, models.CollectionUsers, user.ID, func(current *store.Document) (store.Fields, error) {
		if current != nil {
			return nil, ErrAlreadyRegistered
		}
		return fields, nil
	})
	return mapStoreError(err)
}

func (r *userRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	doc, err := r.store.Get(ctx, models.CollectionUsers, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodeUser(doc)
}

// GetUsersByIDs returns the users that exist among ids, in the order given.
func (r *userRepository) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	for _, id := range ids {
		u, err := r.GetUserByID(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func (r *userRepository) GetUsers(ctx context.Context) ([]models.User, error) {
	docs, err := r.store.Query(ctx, store.Query{Collection: models.CollectionUsers})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodeUsers(docs)
}

func (r *userRepository) TopUsers(ctx context.Context, n int) ([]models.User, error) {
	docs, err := r.store.Query(ctx, TopUsersQuery(n))
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodeUsers(docs)
}

func (r *userRepository) UpdateUser(ctx context.Context, id string, fn UserUpdateFunc) (*models.User, error) {
	doc, err := r.store.AtomicUpdate(ctx, models.CollectionUsers, id, func(current *store.Document) (store.Fields, error) {
		if current == nil {
			return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		u, err := DecodeUser(current)
		if err != nil {
			return nil, err
		}
		return fn(u)
	})
	if err != nil {
		return nil, mapStoreError(err)
	}
	return DecodeUser(doc)
}

// TopUsersQuery selects the n users with the highest balance.
func TopUsersQuery(n int) store.Query {
	return store.Query{Collection: models.CollectionUsers, OrderBy: "totalPoints", Desc: true, Limit: n}
}

// UserQuery selects a single user document.
func UserQuery(id string) store.Query {
	return store.Query{Collection: models.CollectionUsers}.Where(store.FieldID, id)
}

// DecodeUser decodes a user document.
func DecodeUser(doc *store.Document) (*models.User, error) {
	var u models.User
	if err := doc.Decode(&u); err != nil {
		return nil, err
	}
	u.ID = doc.ID
	return &u, nil
}

func DecodeUsers(docs []*store.Document) ([]models.User, error) {
	users := make([]models.User, 0, len(docs))
	for _, d := range docs {
		u, err := DecodeUser(d)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", err, models.ErrNotFound)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", err, models.ErrConflict)
	}
	return err
}
