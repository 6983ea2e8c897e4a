package handlers

import (
	"net/http"

	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// UserHandler serves user profiles
type UserHandler struct {
	userRepository repositories.UserRepository
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(userRepo repositories.UserRepository) *UserHandler {
	return &UserHandler{userRepository: userRepo}
}

// RegisterProfileRoutes registers profile routes
func (h *UserHandler) RegisterProfileRoutes(g *echo.Group) {
	g.GET("/profile", h.GetProfile)
	g.GET("/users/:id", h.GetUser)
}

// GetProfile returns the signed-in user
func (h *UserHandler) GetProfile(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	user, err := h.userRepository.GetUserByID(c.Request().Context(), sess.UserID)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, user)
}

// GetUser returns another user's profile
func (h *UserHandler) GetUser(c echo.Context) error {
	user, err := h.userRepository.GetUserByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, user)
}
