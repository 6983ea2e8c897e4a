package handlers

import (
	"errors"
	"net/http"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/anonto42/campus-feed/backend/internal/session"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// httpError maps an operation error onto an HTTP status.
func httpError(err error) error {
	switch {
	case errors.Is(err, models.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, repositories.ErrAlreadyRegistered):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "Concurrent update, please retry")
	}
	log.Error().Err(err).Msg("request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}

// currentSession returns the acting identity or a 401.
func currentSession(c echo.Context) (session.Session, error) {
	s, err := session.From(c)
	if err != nil {
		return session.Session{}, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return s, nil
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}
