package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/quill/internal/config"
	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/pkg/models"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Level: "error", Format: "text"})
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.ModelConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		Name:      "deepseek-chat",
		MaxTokens: 256,
	}, testLogger())
}

func TestCompleteReturnsContent(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["model"] != "deepseek-chat" {
			t.Errorf("model = %v", req["model"])
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`)
	}))

	comp, err := client.Complete(context.Background(), &Request{
		Messages: []models.Message{models.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if comp.Content != "hi there" {
		t.Errorf("content = %q", comp.Content)
	}
}

func TestCompleteReturnsToolCalls(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"list_directory","arguments":"{\"path\":\"/tmp\"}"}}
		]}}]}`)
	}))

	comp, err := client.Complete(context.Background(), &Request{
		Messages: []models.Message{models.UserMessage("list files")},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if len(comp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(comp.ToolCalls))
	}
	tc := comp.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "list_directory" {
		t.Errorf("tool call = %+v", tc)
	}
	if !strings.Contains(string(tc.Input), "/tmp") {
		t.Errorf("arguments = %s", tc.Input)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"recovered"}}]}`)
	}))

	comp, err := client.Complete(context.Background(), &Request{
		Messages: []models.Message{models.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if comp.Content != "recovered" {
		t.Errorf("content = %q", comp.Content)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestCompleteDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))

	if _, err := client.Complete(context.Background(), &Request{
		Messages: []models.Message{models.UserMessage("hello")},
	}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry)", calls.Load())
	}
}

func TestStreamDeliversFragments(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"content":"Hello"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"content":" world"}}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	chunks, err := client.Stream(context.Background(), &Request{
		Messages: []models.Message{models.UserMessage("hello")},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	var text strings.Builder
	var done bool
	for chunk := range chunks {
		if chunk.Err != nil {
			t.Fatalf("chunk error: %v", chunk.Err)
		}
		if chunk.Done {
			done = true
			continue
		}
		text.WriteString(chunk.Text)
	}

	if text.String() != "Hello world" {
		t.Errorf("text = %q", text.String())
	}
	if !done {
		t.Error("missing done chunk")
	}
}

func TestStreamAccumulatesToolCall(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"web_search","arguments":"{\"que"}}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ry\":\"go\"}"}}]}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	chunks, err := client.Stream(context.Background(), &Request{
		Messages: []models.Message{models.UserMessage("search go")},
	})
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}

	var call *models.ToolCall
	for chunk := range chunks {
		if chunk.ToolCall != nil {
			call = chunk.ToolCall
		}
	}
	if call == nil {
		t.Fatal("no tool call delivered")
	}
	if call.Name != "web_search" {
		t.Errorf("name = %q", call.Name)
	}
	if string(call.Input) != `{"query":"go"}` {
		t.Errorf("arguments = %s", call.Input)
	}
}

func TestClientWithoutKeyFails(t *testing.T) {
	client := NewClient(config.ModelConfig{Name: "deepseek-chat"}, testLogger())
	if _, err := client.Complete(context.Background(), &Request{}); err == nil {
		t.Error("expected configuration error")
	}
	if _, err := client.Stream(context.Background(), &Request{}); err == nil {
		t.Error("expected configuration error")
	}
}
