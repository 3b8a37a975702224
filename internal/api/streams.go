package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hueview/wallpaint/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI collaborator is served from its own origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams core events over Server-Sent Events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch, err := s.subscribe("sse")
	if err != nil {
		writeError(w, err)
		return
	}
	defer s.ctrl.Detach(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Initial comment so the client sees the stream is open.
	fmt.Fprintf(w, ": connected %s\n\n", id)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			data, err := marshalEvent(ev)
			if err != nil {
				monitoring.Logf("api: marshal event for %s: %v", id, err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleWS streams core events over a websocket. The socket is write-only;
// inbound messages are read and discarded to service control frames.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	id, ch, err := s.subscribe("ws")
	if err != nil {
		monitoring.Logf("api: websocket subscribe: %v", err)
		return
	}
	defer s.ctrl.Detach(id)

	// Hello frame so clients know the subscription is live.
	if err := conn.WriteJSON(map[string]string{"kind": "connected", "subscriber": id}); err != nil {
		monitoring.Logf("api: websocket hello to %s: %v", id, err)
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case ev := <-ch:
			if err := conn.WriteJSON(eventPayload(ev)); err != nil {
				monitoring.Logf("api: websocket write to %s: %v", id, err)
				return
			}
		}
	}
}
