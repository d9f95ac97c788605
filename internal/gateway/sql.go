package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/internal/sqlgen"
	"github.com/haasonsaas/quill/pkg/models"
)

// handleSQLSSE streams a validated SQL candidate for a natural-language
// question. The pipeline runs in one shot; the accepted statement is then
// streamed line by line so the client sees the same event shapes as chat.
func (s *Server) handleSQLSSE(w http.ResponseWriter, r *http.Request) {
	question := strings.TrimSpace(r.URL.Query().Get("question"))
	if question == "" {
		observability.RequestsTotal.WithLabelValues("sql", "bad_request").Inc()
		writeBadRequest(w, "question query parameter is required")
		return
	}

	writer, err := newSSEWriter(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ctx := observability.AddRequestID(r.Context(), uuid.NewString())
	s.logger.Info(ctx, "sql request", "question_len", len(question))

	events := make(chan models.Event)
	go s.runSQL(ctx, question, events)
	writer.streamEvents(r.WithContext(ctx), "sql", events, s.config.HTTP.PingInterval)
}

func (s *Server) runSQL(ctx context.Context, question string, events chan<- models.Event) {
	defer close(events)

	result, err := s.sql.Generate(ctx, question)
	if err != nil {
		emit(ctx, events, models.ErrorEvent(sqlUserMessage(err)))
		return
	}

	// Stream the statement line by line. The clarification form is ordinary
	// output; the client reads the NEED_CLARIFY comment like any other token.
	for _, line := range strings.Split(result.SQL, "\n") {
		if !emit(ctx, events, models.TokenEvent(line+"\n")) {
			return
		}
	}
}

// emit delivers an event unless the request is already gone.
func emit(ctx context.Context, events chan<- models.Event, ev models.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// sqlUserMessage maps pipeline failures to client-facing text without
// leaking internals.
func sqlUserMessage(err error) string {
	var vErr *sqlgen.ValidationError
	if errors.As(err, &vErr) {
		return "the generated query failed a safety check: " + string(vErr.Reason)
	}
	var mErr *sqlgen.ModelError
	if errors.As(err, &mErr) {
		return "the model backend is unavailable"
	}
	return "sql generation failed"
}
