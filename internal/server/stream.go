package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ai-datalab/internal/events"
)

// handleStream relays a session's progress events as Server-Sent Events
// until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.log.Debug("cannot lift write deadline", zap.Error(err))
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.log.Warn("streaming unsupported", zap.Error(err))
		return
	}

	s.log.Debug("stream opened", zap.String("session_id", sessionID))
	defer s.log.Debug("stream closed", zap.String("session_id", sessionID))

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stream.Ready(sessionID):
			for _, ev := range s.stream.Drain(sessionID) {
				if err := writeEvent(w, ev); err != nil {
					return
				}
			}
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeEvent emits one SSE frame with the payload as single-line JSON.
// HTML in previews is left unescaped.
func writeEvent(w io.Writer, ev events.Event) error {
	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev.Payload); err != nil {
		data.Reset()
		data.WriteString("{}")
	}
	_, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Kind, bytes.TrimSpace(data.Bytes()))
	return err
}
