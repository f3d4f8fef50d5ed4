package server

import (
	"net/http"
	"strings"

	"RapLab/core/live"
	"RapLab/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源，与 CORS 配置一致
	},
}

// handleTrackSocket subscribes the caller to their own track events.
// Browsers cannot set headers on a WebSocket handshake, so the token travels
// in the query string.
func (s *Server) handleTrackSocket(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := s.auth.Issuer().ParseToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[Live] websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := live.NewClient(s.hub, conn, id.UserID)
	s.hub.Register(client)
	logger.Debug("[Live] client connected", logger.UserID(id.UserID))

	go client.WritePump()
	go client.ReadPump(s.bgCtx)
}
