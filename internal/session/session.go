// Package session carries the acting identity into every core operation.
package session

import (
	"errors"

	"github.com/labstack/echo/v4"
)

const contextKey = "session"

// ErrNoSession is returned when a request reached a handler without authentication.
var ErrNoSession = errors.New("no session")

// Session identifies who is acting. Email is whatever the authentication
// provider asserted and is only consulted at registration.
type Session struct {
	UserID string
	Email  string
}

// New returns a session for userID.
func New(userID, email string) Session {
	return Session{UserID: userID, Email: email}
}

// Set attaches s to the request context.
func Set(c echo.Context, s Session) {
	c.Set(contextKey, s)
}

// From returns the session attached by the auth middleware.
func From(c echo.Context) (Session, error) {
	s, ok := c.Get(contextKey).(Session)
	if !ok || s.UserID == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}
