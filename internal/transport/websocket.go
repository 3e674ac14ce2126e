package transport

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haasonsaas/agentkit/internal/app"
)

// upgrader accepts same-origin and cross-origin connections alike: the
// deployment's reverse proxy is responsible for origin restriction,
// the same trust boundary the teacher's newWSControlPlane assumes.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveStream upgrades the request to a WebSocket and relays
// sessionID's broadcast events to the client as JSON frames until the
// connection closes.
func serveStream(w http.ResponseWriter, r *http.Request, a *app.App, sessionID uuid.UUID, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("transport: websocket upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := a.Broadcaster.Subscribe(sessionID)
	defer unsubscribe()

	// Drain client-initiated control frames (pings, close) on their own
	// goroutine so a slow or silent client doesn't block event delivery;
	// any message or error here ends the stream.
	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientClosed:
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				logger.Debug("transport: websocket write failed, closing stream", "session_id", sessionID, "error", err)
				return
			}
		}
	}
}
