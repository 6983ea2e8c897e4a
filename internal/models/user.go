package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// CollectionUsers holds one document per registered user, keyed by auth uid.
const CollectionUsers = "users"

// User is a registered student. Followers/Following are mutated only by the
// social graph; TotalPoints and LedgerJournal only by the ledger.
type User struct {
	ID            string    `json:"id" bson:"-"`
	Name          string    `json:"name" bson:"name"`
	Email         string    `json:"email" bson:"email"`
	Branch        string    `json:"branch" bson:"branch"`
	Year          int       `json:"year" bson:"year"`
	IsSenior      bool      `json:"isSenior" bson:"isSenior"`
	TotalPoints   int64     `json:"totalPoints" bson:"totalPoints"`
	Followers     []string  `json:"followers" bson:"followers"`
	Following     []string  `json:"following" bson:"following"`
	LedgerJournal []string  `json:"-" bson:"ledgerJournal,omitempty"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

// UserCompact is the profile card shown in lists and leaderboards.
type UserCompact struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Branch      string `json:"branch"`
	Year        int    `json:"year"`
	TotalPoints int64  `json:"totalPoints"`
}

func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:          u.ID,
		Name:        u.Name,
		Branch:      u.Branch,
		Year:        u.Year,
		TotalPoints: u.TotalPoints,
	}
}

// RegisterUserRequest defines the request body for creating the user
// document of an authenticated identity.
type RegisterUserRequest struct {
	Name   string `json:"name" validate:"required,min=2,max=50"`
	Email  string `json:"email" validate:"required,email"`
	Branch string `json:"branch" validate:"required,max=20"`
	Year   int    `json:"year" validate:"required,min=1,max=4"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims.
// The subject is the user id.
type JwtCustomClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}
