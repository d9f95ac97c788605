package gateway

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/quill/internal/config"
	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/internal/sqlgen"
	"github.com/haasonsaas/quill/pkg/models"
)

type fakeChat struct {
	events []models.Event
	delay  time.Duration
}

func (f *fakeChat) Run(ctx context.Context, utterance string) <-chan models.Event {
	out := make(chan models.Event)
	go func() {
		defer close(out)
		for _, ev := range f.events {
			if f.delay > 0 {
				time.Sleep(f.delay)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type fakeSQL struct {
	result *sqlgen.Result
	err    error
}

func (f *fakeSQL) Generate(ctx context.Context, question string) (*sqlgen.Result, error) {
	return f.result, f.err
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if current.name != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		}
	}
	return events
}

func newTestServer(t *testing.T, chat ChatRunner, sql SQLGenerator, ping time.Duration) *httptest.Server {
	t.Helper()
	cfg := &config.Config{}
	cfg.HTTP.PingInterval = ping
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Output: io.Discard})
	server := NewServer(cfg, chat, sql, logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatStreamEndsWithDone(t *testing.T) {
	chat := &fakeChat{events: []models.Event{
		models.TokenEvent("Hello, "),
		models.TokenEvent("world."),
	}}
	ts := newTestServer(t, chat, &fakeSQL{}, time.Minute)

	resp := get(t, ts.URL+"/v1/chat/sse?message=hi")
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := parseSSE(t, resp.Body)
	if len(events) != 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].name != "token" || events[0].data != `{"text":"Hello, "}` {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].name != "token" || events[1].data != `{"text":"world."}` {
		t.Errorf("events[1] = %+v", events[1])
	}
	if events[2].name != "done" || events[2].data != "{}" {
		t.Errorf("events[2] = %+v", events[2])
	}
}

func TestChatErrorStillGetsDone(t *testing.T) {
	chat := &fakeChat{events: []models.Event{
		models.ErrorEvent("could not determine how to handle the request"),
	}}
	ts := newTestServer(t, chat, &fakeSQL{}, time.Minute)

	resp := get(t, ts.URL+"/v1/chat/sse?message=hi")
	events := parseSSE(t, resp.Body)
	if len(events) != 2 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].name != "error" || !strings.Contains(events[0].data, "could not determine") {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].name != "done" {
		t.Errorf("events[1] = %+v", events[1])
	}

	doneCount := 0
	for _, ev := range events {
		if ev.name == "done" {
			doneCount++
		}
	}
	if doneCount != 1 {
		t.Errorf("done count = %d, want exactly 1", doneCount)
	}
}

func TestChatPingOnIdle(t *testing.T) {
	// A slow producer forces the idle ticker to fire before the first token.
	chat := &fakeChat{
		events: []models.Event{models.TokenEvent("late")},
		delay:  120 * time.Millisecond,
	}
	ts := newTestServer(t, chat, &fakeSQL{}, 30*time.Millisecond)

	resp := get(t, ts.URL+"/v1/chat/sse?message=hi")
	events := parseSSE(t, resp.Body)

	pings := 0
	for _, ev := range events {
		if ev.name == "ping" {
			if ev.data != "{}" {
				t.Errorf("ping data = %q", ev.data)
			}
			pings++
		}
	}
	if pings == 0 {
		t.Errorf("expected at least one ping, events: %+v", events)
	}
	if events[len(events)-1].name != "done" {
		t.Errorf("last event = %+v", events[len(events)-1])
	}
}

func TestChatMissingMessageParam(t *testing.T) {
	ts := newTestServer(t, &fakeChat{}, &fakeSQL{}, time.Minute)

	for _, url := range []string{"/v1/chat/sse", "/v1/chat/sse?message=%20"} {
		resp := get(t, ts.URL+url)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", url, resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "message query parameter is required") {
			t.Errorf("body = %s", body)
		}
	}
}

func TestSQLStreamsStatement(t *testing.T) {
	sql := &fakeSQL{result: &sqlgen.Result{
		SQL: "SELECT name, total\nFROM orders\nLIMIT 10",
	}}
	ts := newTestServer(t, &fakeChat{}, sql, time.Minute)

	resp := get(t, ts.URL+"/v1/sql/sse?question=top+orders")
	events := parseSSE(t, resp.Body)
	if len(events) != 4 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	for i, want := range []string{"SELECT name, total", "FROM orders", "LIMIT 10"} {
		if events[i].name != "token" || !strings.Contains(events[i].data, want) {
			t.Errorf("events[%d] = %+v, want token with %q", i, events[i], want)
		}
	}
	if events[3].name != "done" {
		t.Errorf("events[3] = %+v", events[3])
	}
}

func TestSQLValidationErrorBecomesErrorEvent(t *testing.T) {
	sql := &fakeSQL{err: &sqlgen.ValidationError{Reason: sqlgen.ReasonMissingLimit}}
	ts := newTestServer(t, &fakeChat{}, sql, time.Minute)

	resp := get(t, ts.URL+"/v1/sql/sse?question=everything")
	events := parseSSE(t, resp.Body)
	if len(events) != 2 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[0].name != "error" || !strings.Contains(events[0].data, "missing_limit") {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1].name != "done" {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestSQLModelErrorMessage(t *testing.T) {
	sql := &fakeSQL{err: &sqlgen.ModelError{Err: fmt.Errorf("connection refused")}}
	ts := newTestServer(t, &fakeChat{}, sql, time.Minute)

	resp := get(t, ts.URL+"/v1/sql/sse?question=anything")
	events := parseSSE(t, resp.Body)
	if events[0].name != "error" {
		t.Fatalf("events[0] = %+v", events[0])
	}
	if strings.Contains(events[0].data, "connection refused") {
		t.Errorf("internal error leaked to client: %s", events[0].data)
	}
	if !strings.Contains(events[0].data, "model backend is unavailable") {
		t.Errorf("events[0] = %+v", events[0])
	}
}

func TestSQLMissingQuestionParam(t *testing.T) {
	ts := newTestServer(t, &fakeChat{}, &fakeSQL{}, time.Minute)

	resp := get(t, ts.URL+"/v1/sql/sse")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &fakeChat{}, &fakeSQL{}, time.Minute)

	resp := get(t, ts.URL+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != `{"status":"ok"}` {
		t.Errorf("body = %s", body)
	}
}
