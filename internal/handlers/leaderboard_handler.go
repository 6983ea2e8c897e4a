package handlers

import (
	"net/http"
	"strconv"

	"github.com/anonto42/campus-feed/backend/internal/leaderboard"
	"github.com/labstack/echo/v4"
)

type LeaderboardHandler struct {
	board *leaderboard.Board
}

func NewLeaderboardHandler(b *leaderboard.Board) *LeaderboardHandler {
	return &LeaderboardHandler{board: b}
}

func (h *LeaderboardHandler) RegisterLeaderboardRoutes(g *echo.Group) {
	g.GET("/leaderboard", h.GetLeaderboard)
}

// GetLeaderboard returns the top users by points (?limit, default 5)
func (h *LeaderboardHandler) GetLeaderboard(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	rows, err := h.board.Top(c.Request().Context(), limit)
	if err != nil {
		return httpError(err)
	}
	return ok(c, http.StatusOK, rows)
}
