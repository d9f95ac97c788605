package gateway

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/quill/internal/observability"
)

// handleChatSSE streams the agent's answer to a chat message. The parameter
// check happens before any stream bytes go out so a missing message is a
// plain 400, not an error event.
func (s *Server) handleChatSSE(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		observability.RequestsTotal.WithLabelValues("chat", "bad_request").Inc()
		writeBadRequest(w, "message query parameter is required")
		return
	}

	writer, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := observability.AddRequestID(r.Context(), uuid.NewString())
	s.logger.Info(ctx, "chat request", "message_len", len(message))

	events := s.chat.Run(ctx, message)
	writer.streamEvents(r.WithContext(ctx), "chat", events, s.config.HTTP.PingInterval)
}
