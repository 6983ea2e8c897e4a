package handlers

import (
	"net/http"

	"github.com/anonto42/campus-feed/backend/internal/content"
	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// CommentHandler handles comment-related HTTP requests
type CommentHandler struct {
	content *content.Service
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(svc *content.Service) *CommentHandler {
	return &CommentHandler{content: svc}
}

// RegisterCommentRoutes registers comment routes
func (h *CommentHandler) RegisterCommentRoutes(g *echo.Group) {
	g.POST("/posts/:id/comments", h.CreateComment)
	g.DELETE("/posts/:id/comments/:comment_id", h.DeleteComment)
}

// CreateComment adds a comment or a reply to a post
func (h *CommentHandler) CreateComment(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	var req models.CreateCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	comment, err := h.content.AddComment(c.Request().Context(), sess, c.Param("id"), req.Text, req.ParentCommentID)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusCreated, comment)
}

// DeleteComment deletes one of the caller's comments
func (h *CommentHandler) DeleteComment(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	if err := h.content.DeleteComment(c.Request().Context(), sess, c.Param("id"), c.Param("comment_id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
