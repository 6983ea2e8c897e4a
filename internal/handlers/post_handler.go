package handlers

import (
	"net/http"
	"strconv"

	"github.com/anonto42/campus-feed/backend/internal/content"
	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/labstack/echo/v4"
)

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	content *content.Service
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(svc *content.Service) *PostHandler {
	return &PostHandler{content: svc}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.GET("/posts", h.GetPosts)
	g.GET("/posts/:id", h.GetPost)
	g.DELETE("/posts/:id", h.DeletePost)
}

// CreatePost creates a new post
func (h *PostHandler) CreatePost(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}

	var req models.CreatePostRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.content.CreatePost(c.Request().Context(), sess, content.CreatePostInput{
		Content:   req.Content,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	})
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusCreated, res)
}

// GetPost returns a post with its comment thread
func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.content.GetPost(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, content.View(post))
}

// GetPosts returns the feed, newest first, optionally for one author
func (h *PostHandler) GetPosts(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > maxFeedLimit {
		limit = defaultFeedLimit
	}

	posts, err := h.content.Feed(c.Request().Context(), c.QueryParam("user_id"), limit)
	if err != nil {
		return httpError(err)
	}
	views := make([]content.PostView, 0, len(posts))
	for i := range posts {
		views = append(views, content.View(&posts[i]))
	}
	return ok(c, http.StatusOK, views)
}

// DeletePost deletes a post owned by the caller
func (h *PostHandler) DeletePost(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	res, err := h.content.DeletePost(c.Request().Context(), sess, c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, echo.Map{"deleted": true, "ledgerPending": res.LedgerPending})
}
