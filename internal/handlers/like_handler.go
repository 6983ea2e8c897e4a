package handlers

import (
	"net/http"

	"github.com/anonto42/campus-feed/backend/internal/content"
	"github.com/labstack/echo/v4"
)

// LikeHandler handles like-related HTTP requests
type LikeHandler struct {
	content *content.Service
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(svc *content.Service) *LikeHandler {
	return &LikeHandler{content: svc}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group) {
	g.POST("/posts/:id/likes", h.LikePost)
	g.DELETE("/posts/:id/likes", h.UnlikePost)
}

// LikePost likes a post
func (h *LikeHandler) LikePost(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	res, err := h.content.Like(c.Request().Context(), sess, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, likeState(res))
}

// UnlikePost removes the caller's like
func (h *LikeHandler) UnlikePost(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	res, err := h.content.Unlike(c.Request().Context(), sess, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, likeState(res))
}

func likeState(res *content.PostResult) echo.Map {
	return echo.Map{
		"postId":        res.Post.ID,
		"likes":         len(res.Post.Likes),
		"ledgerPending": res.LedgerPending,
	}
}
