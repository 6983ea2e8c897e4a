package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// AuthHandler handles registration of authenticated identities
type AuthHandler struct {
	userRepository    repositories.UserRepository
	institutionDomain string
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(userRepo repositories.UserRepository, institutionDomain string) *AuthHandler {
	return &AuthHandler{
		userRepository:    userRepo,
		institutionDomain: strings.ToLower(institutionDomain),
	}
}

// RegisterAuthRoutes registers authentication-related routes
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	g.POST("/auth/register", h.Register)
}

// Register creates the user document for the authenticated identity
func (h *AuthHandler) Register(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	var req models.RegisterUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.HasSuffix(email, "@"+h.institutionDomain) {
		return echo.NewHTTPError(http.StatusBadRequest, "Only @"+h.institutionDomain+" email addresses can register")
	}
	if sess.Email != "" && !strings.EqualFold(sess.Email, email) {
		return echo.NewHTTPError(http.StatusBadRequest, "Email does not match the signed-in account")
	}

	user := &models.User{
		ID:        sess.UserID,
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		Branch:    req.Branch,
		Year:      req.Year,
		IsSenior:  req.Year > 2,
		Followers: []string{},
		Following: []string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := h.userRepository.CreateUser(c.Request().Context(), user); err != nil {
		return httpError(err)
	}

	return ok(c, http.StatusCreated, user)
}
