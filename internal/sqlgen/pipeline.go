package sqlgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/quill/internal/llm"
	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/pkg/models"
)

// Completer is the single-shot model capability the pipeline needs.
type Completer interface {
	Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error)
}

// DocumentSource resolves the static documents used to assemble the
// generation context.
type DocumentSource interface {
	Resource(uri string) (string, error)
	Prompt(name string) (string, error)
}

// ValidationError means a generated candidate failed a static safety rule.
// Surfaced as an error event; never retried.
type ValidationError struct {
	Reason Reason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sql rejected: %s", e.Reason)
}

// ModelError means the generation call itself failed.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("sql generation failed: %v", e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Result is an approved SQL candidate.
type Result struct {
	SQL                string
	NeedsClarification bool
	Clarification      string
}

// sqlTemperature keeps generation near-deterministic.
const sqlTemperature = 0.1

// Pipeline turns a natural-language question into validated SQL with exactly
// one model call. It never calls tools and never loops.
type Pipeline struct {
	provider Completer
	docs     DocumentSource
	logger   *observability.Logger
}

// NewPipeline wires the pipeline.
func NewPipeline(provider Completer, docs DocumentSource, logger *observability.Logger) *Pipeline {
	return &Pipeline{provider: provider, docs: docs, logger: logger}
}

// Generate produces a validated SQL candidate for the question. Failures are
// *ValidationError (static rule) or *ModelError (transport).
func (p *Pipeline) Generate(ctx context.Context, question string) (*Result, error) {
	// A question that itself asks for data modification is rejected before
	// spending a model call.
	if kw, found := ContainsForbiddenKeyword(question); found {
		p.logger.Warn(ctx, "question pre-screen rejected", "keyword", kw)
		observability.SQLRejected.WithLabelValues(string(ReasonForbiddenKeyword)).Inc()
		return nil, &ValidationError{Reason: ReasonForbiddenKeyword}
	}

	system, err := p.buildContext()
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	comp, err := p.provider.Complete(ctx, &llm.Request{
		System:      system,
		Messages:    []models.Message{models.UserMessage(question)},
		Temperature: sqlTemperature,
	})
	if err != nil {
		return nil, &ModelError{Err: err}
	}

	candidate := stripCodeFence(comp.Content)
	verdict := Validate(candidate)
	if !verdict.Accepted {
		p.logger.Warn(ctx, "sql candidate rejected", "reason", string(verdict.Reason))
		observability.SQLRejected.WithLabelValues(string(verdict.Reason)).Inc()
		return nil, &ValidationError{Reason: verdict.Reason}
	}

	return &Result{
		SQL:                candidate,
		NeedsClarification: verdict.NeedsClarification,
		Clarification:      verdict.Clarification,
	}, nil
}

// buildContext assembles the system prompt from the instruction template,
// the schema document, and the business glossary.
func (p *Pipeline) buildContext() (string, error) {
	instruction, err := p.docs.Prompt("sql_generate")
	if err != nil {
		return "", err
	}
	schema, err := p.docs.Resource("context://db_schema")
	if err != nil {
		return "", err
	}
	glossary, err := p.docs.Resource("context://business_glossary")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nDATABASE SCHEMA:\n")
	b.WriteString(schema)
	b.WriteString("\n\nBUSINESS GLOSSARY:\n")
	b.WriteString(glossary)
	return b.String(), nil
}

// stripCodeFence unwraps a ```sql fenced block when the model adds one.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```sql")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
