package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/liveview/logger"
)

// DefaultKeepAlive is below common proxy idle timeouts.
const DefaultKeepAlive = 30 * time.Second

// Stream configures one call to Serve.
type Stream struct {
	ClientID  string
	Buffer    int
	KeepAlive time.Duration
	// Snapshot is called after the client is registered and its events are
	// written before any broadcast. Events broadcast meanwhile are also
	// delivered, so payloads should carry a sequence the client can use to
	// skip what the snapshot already covers.
	Snapshot func() []Event
}

// connectedEvent is the payload of EventConnected.
type connectedEvent struct {
	ClientID string `json:"client_id"`
}

// Serve streams events for one client until the request ends or the hub
// drops the client.
func Serve(hub *Hub, w http.ResponseWriter, r *http.Request, s Stream) {
	log := hub.log.WithFields(logger.Fields("client_id", s.ClientID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		log.Debug("could not clear write deadline", logger.ErrorFields("stream", err))
	}

	client := NewClient(s.ClientID, s.Buffer)
	if err := hub.Register(client); err != nil {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	defer hub.Unregister(client)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	hello, _ := json.Marshal(connectedEvent{ClientID: s.ClientID})
	if _, err := (Event{Type: EventConnected, Data: hello}).WriteTo(w); err != nil {
		return
	}
	var initial []Event
	if s.Snapshot != nil {
		initial = s.Snapshot()
	}
	for _, e := range initial {
		if _, err := e.WriteTo(w); err != nil {
			return
		}
	}
	flusher.Flush()

	keepAlive := s.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("client disconnected")
			return
		case e, ok := <-client.Events():
			if !ok {
				return
			}
			if _, err := e.WriteTo(w); err != nil {
				log.Debug("write failed", logger.ErrorFields("stream", err))
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive %d\n\n", time.Now().Unix()); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
