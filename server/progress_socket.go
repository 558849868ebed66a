package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The facade binds to loopback; cross-origin dashboards are expected.
	CheckOrigin: func(request *http.Request) bool { return true },
}

const socketWriteTimeout = time.Second * 10

// progress streams an operation's events over a websocket until the
// terminal event, then closes cleanly. Subscribing after the operation
// finished yields just the terminal event.
func (this *Server) progress(response http.ResponseWriter, request *http.Request) {
	operationID := chi.URLParam(request, "operation")
	events, err := this.broker.Subscribe(operationID)
	if err != nil {
		writeError(response, http.StatusNotFound, err)
		return
	}

	connection, err := upgrader.Upgrade(response, request, nil)
	if err != nil {
		this.logger.Printf("[WARN] websocket upgrade failed for operation %s: %v", operationID, err)
		return
	}
	defer func() { _ = connection.Close() }()

	// Discard inbound frames so close handshakes are processed.
	go func() {
		for {
			if _, _, err := connection.NextReader(); err != nil {
				return
			}
		}
	}()

	for event := range events {
		_ = connection.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
		if err := connection.WriteJSON(event); err != nil {
			this.logger.Printf("[WARN] dropping progress subscriber for operation %s: %v", operationID, err)
			return
		}
	}

	_ = connection.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	_ = connection.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "operation finished"))
}
