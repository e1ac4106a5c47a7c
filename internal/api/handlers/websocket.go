package handlers

import (
	"net/http"
	"time"
	"tinking/backend/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RecipeWebSocket connects a page to a session. Commands of the editor
// are written as protocol envelopes and events read back are handed to
// the editor.
func (h *Handler) RecipeWebSocket(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "recipe", s.ID, "error", err)
		return
	}
	defer conn.Close()

	logger := h.logger.With("recipe", s.ID, "remote", conn.RemoteAddr().String())
	cmds, unsubscribe := s.Relay.Subscribe()
	defer unsubscribe()
	logger.Info("page connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case cmd, ok := <-cmds:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
					return
				}
				raw, err := protocol.EncodeCommand(cmd)
				if err != nil {
					logger.Error("command encode failed", "command", cmd.CommandType(), "error", err)
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
					logger.Debug("websocket write failed", "error", err)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read error", "error", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		ev, err := protocol.DecodeEvent(raw)
		if err != nil {
			logger.Warn("page event rejected", "error", err)
			continue
		}
		if _, err := s.Editor.HandleEvent(ev); err != nil {
			logger.Warn("page event failed", "event", ev.EventType(), "error", err)
		}
	}

	unsubscribe()
	<-done
	logger.Info("page disconnected")
}
