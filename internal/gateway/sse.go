package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/pkg/models"
)

// sseWriter serializes events onto one HTTP response in SSE framing.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &sseWriter{w: w, flusher: flusher}, nil
}

// send writes one named event and flushes it to the client.
func (s *sseWriter) send(ev models.Event) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, ev.Payload()); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// streamEvents drains the event channel onto the response, interleaving
// keepalive pings on an idle timer, and terminates the stream with exactly
// one done event after the channel closes. A client disconnect stops
// everything; no done is sent on that path because nobody is listening.
func (s *sseWriter) streamEvents(r *http.Request, endpoint string, events <-chan models.Event, pingInterval time.Duration) {
	start := time.Now()
	outcome := "ok"

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	defer func() {
		observability.RequestsTotal.WithLabelValues(endpoint, outcome).Inc()
		observability.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	for {
		select {
		case <-r.Context().Done():
			outcome = "disconnected"
			return

		case <-ticker.C:
			if err := s.send(models.PingEvent()); err != nil {
				outcome = "disconnected"
				return
			}

		case ev, ok := <-events:
			if !ok {
				_ = s.send(models.DoneEvent())
				return
			}
			switch ev.Type {
			case models.EventToken:
				observability.TokensStreamed.Inc()
			case models.EventError:
				outcome = "error"
			}
			if err := s.send(ev); err != nil {
				outcome = "disconnected"
				return
			}
		}
	}
}
