package ws

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"orderstream/internal/auth"
)

// ServeWS upgrades the request to a WebSocket connection and registers it
// with the hub in anonymous state. A session token may be supplied via query
// parameter or Authorization header; when present and valid the connection is
// bound to the token's identity immediately, otherwise the client can still
// authenticate in-band later. An invalid token is rejected outright.
func ServeWS(hub *Hub, authSvc *auth.Service, w http.ResponseWriter, r *http.Request) {
	remoteAddr := r.RemoteAddr

	var userID, userType string
	if token := auth.ExtractTokenFromRequest(r); token != "" {
		claims, err := authSvc.ValidateToken(token)
		if err != nil {
			slog.Warn("[WS] token validation failed", "from", remoteAddr, "error", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
		userID = claims.Subject
		userType = claims.UserType
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("[WS] failed to upgrade connection", "from", remoteAddr, "error", err)
		return
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufSize),
		id:       uuid.New().String(),
		userID:   userID,
		userType: userType,
		rooms:    make(map[string]bool),
	}

	slog.Info("[WS] connection accepted", "conn", client.id, "user", userID, "from", remoteAddr)
	client.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
