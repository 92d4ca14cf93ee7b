package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/loreforge/loreforge/internal/events"
)

// pingInterval keeps idle SSE connections alive through proxies.
const pingInterval = 15 * time.Second

// SSEHandler streams project events over Server-Sent Events. Registered as a
// raw chi handler because huma's typed responses cannot express a stream.
type SSEHandler struct {
	broadcaster *events.Broadcaster
	logger      *slog.Logger
}

func (h *SSEHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// The stream lives until the client disconnects; drop any server-side
	// write deadline.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ch, cancel := h.broadcaster.Subscribe(projectID)
	defer cancel()

	writeEvent := func(eventType string, data []byte) error {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := writeEvent(events.EventOpen, []byte(`{}`)); err != nil {
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := writeEvent(events.EventPing, []byte(`{}`)); err != nil {
				return
			}
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeEvent(ev.Type, ev.Payload); err != nil {
				h.logger.Debug("sse write failed", "project_id", projectID, "error", err)
				return
			}
		}
	}
}
