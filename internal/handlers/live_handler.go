package handlers

import (
	"net/http"

	"github.com/anonto42/campus-feed/backend/internal/realtime"
	"github.com/anonto42/campus-feed/backend/internal/store"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// LiveHandler upgrades to a websocket carrying the session's live views
type LiveHandler struct {
	store    store.Store
	upgrader websocket.Upgrader
	opts     realtime.Options
	logger   zerolog.Logger
}

func NewLiveHandler(s store.Store, opts realtime.Options, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		store: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		opts:   opts,
		logger: logger,
	}
}

func (h *LiveHandler) RegisterLiveRoutes(g *echo.Group) {
	g.GET("/live", h.Live)
}

// Live streams frames until the client disconnects
func (h *LiveHandler) Live(c echo.Context) error {
	sess, err := currentSession(c)
	if err != nil {
		return err
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return nil
	}

	w, err := realtime.Watch(c.Request().Context(), h.store, sess, h.opts, h.logger)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", sess.UserID).Msg("open live session")
		_ = conn.Close()
		return nil
	}
	realtime.Serve(conn, w, h.logger.With().Str("user_id", sess.UserID).Logger())
	return nil
}
