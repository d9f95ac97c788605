package sqlgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/quill/internal/llm"
	"github.com/haasonsaas/quill/internal/observability"
)

type fakeCompleter struct {
	content string
	err     error
	request *llm.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error) {
	f.request = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{Content: f.content}, nil
}

type fakeDocs struct{}

func (fakeDocs) Resource(uri string) (string, error) {
	switch uri {
	case "context://db_schema":
		return "TABLE orders (id, amount, ordered_at)", nil
	case "context://business_glossary":
		return "revenue: sum of order amounts", nil
	}
	return "", errors.New("unknown resource " + uri)
}

func (fakeDocs) Prompt(name string) (string, error) {
	return "Generate one SELECT statement.", nil
}

func newTestPipeline(completer *fakeCompleter) *Pipeline {
	logger := observability.NewLogger(observability.LogConfig{Level: "error", Format: "text"})
	return NewPipeline(completer, fakeDocs{}, logger)
}

func TestPipelineAcceptsValidSQL(t *testing.T) {
	completer := &fakeCompleter{content: "SELECT id, amount FROM orders LIMIT 10"}
	pipeline := newTestPipeline(completer)

	res, err := pipeline.Generate(context.Background(), "top ten orders")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.SQL != "SELECT id, amount FROM orders LIMIT 10" {
		t.Errorf("sql = %q", res.SQL)
	}
	if res.NeedsClarification {
		t.Error("unexpected clarification flag")
	}

	// Context assembly pulls the schema and glossary into the system prompt.
	for _, want := range []string{"DATABASE SCHEMA:", "TABLE orders", "BUSINESS GLOSSARY:", "revenue"} {
		if !strings.Contains(completer.request.System, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestPipelineStripsCodeFence(t *testing.T) {
	completer := &fakeCompleter{content: "```sql\nSELECT id FROM orders LIMIT 5\n```"}
	pipeline := newTestPipeline(completer)

	res, err := pipeline.Generate(context.Background(), "five orders")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if res.SQL != "SELECT id FROM orders LIMIT 5" {
		t.Errorf("sql = %q", res.SQL)
	}
}

func TestPipelineRejectsUnsafeCandidate(t *testing.T) {
	completer := &fakeCompleter{content: "DROP TABLE orders"}
	pipeline := newTestPipeline(completer)

	_, err := pipeline.Generate(context.Background(), "remove everything politely")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Reason != ReasonForbiddenKeyword {
		t.Errorf("reason = %s", verr.Reason)
	}
}

func TestPipelinePreScreensQuestion(t *testing.T) {
	completer := &fakeCompleter{content: "SELECT 1 FROM t LIMIT 1"}
	pipeline := newTestPipeline(completer)

	_, err := pipeline.Generate(context.Background(), "drop table orders")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if verr.Reason != ReasonForbiddenKeyword {
		t.Errorf("reason = %s", verr.Reason)
	}
	if completer.request != nil {
		t.Error("model was called for a pre-screened question")
	}
}

func TestPipelineClarificationFlow(t *testing.T) {
	completer := &fakeCompleter{
		content: "-- NEED_CLARIFY: which quarter?\nSELECT id FROM orders WHERE 1=0 LIMIT 0",
	}
	pipeline := newTestPipeline(completer)

	res, err := pipeline.Generate(context.Background(), "revenue for the quarter")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if !res.NeedsClarification {
		t.Error("clarification flag not set")
	}
	if res.Clarification != "which quarter?" {
		t.Errorf("clarification = %q", res.Clarification)
	}
	if !strings.Contains(res.SQL, "WHERE 1=0 LIMIT 0") {
		t.Errorf("sql = %q, want canonical empty-result form", res.SQL)
	}
}

func TestPipelineModelFailure(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("connection refused")}
	pipeline := newTestPipeline(completer)

	_, err := pipeline.Generate(context.Background(), "top orders")
	var merr *ModelError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *ModelError", err)
	}
}
