package realtime

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client actions accepted over the websocket.
const (
	ActionWatchProfile   = "watch_profile"
	ActionUnwatchProfile = "unwatch_profile"
)

// ClientMessage is a control message sent by the browser.
type ClientMessage struct {
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// Serve pumps w's frames to conn until either side goes away, then closes
// both. It blocks.
func Serve(conn *websocket.Conn, w *Watcher, logger zerolog.Logger) {
	done := make(chan struct{})
	defer func() {
		w.Close()
		_ = conn.Close()
	}()

	go func() {
		defer close(done)
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn().Err(err).Msg("websocket read")
				}
				return
			}
			switch msg.Action {
			case ActionWatchProfile:
				if msg.ID == "" {
					continue
				}
				if err := w.WatchProfile(msg.ID); err != nil && !errors.Is(err, ErrClosed) {
					logger.Error().Err(err).Str("profile_id", msg.ID).Msg("watch profile")
				}
			case ActionUnwatchProfile:
				w.UnwatchProfile()
			default:
				logger.Debug().Str("action", msg.Action).Msg("unknown client action")
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-w.Frames():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				logger.Debug().Err(err).Msg("websocket write")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
