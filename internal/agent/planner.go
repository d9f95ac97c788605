package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/quill/internal/llm"
	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/pkg/models"
)

// Provider is the model backend consumed by the planner and the loop.
type Provider interface {
	// Complete performs a single-shot call.
	Complete(ctx context.Context, req *llm.Request) (*llm.Completion, error)

	// Stream performs an incremental call.
	Stream(ctx context.Context, req *llm.Request) (<-chan *llm.Chunk, error)
}

// RouteDecision is the planner's verdict on one utterance: which route
// handles it, which tool calls to seed the first round with, and an optional
// rewrite of the user message. Immutable once produced.
type RouteDecision struct {
	Intent           string
	Route            RouteName
	ToolCalls        []models.ToolCall
	RewrittenMessage string
}

// Planner classifies an utterance into a route with exactly one single-shot
// model call. It never executes tools; it only proposes them.
type Planner struct {
	provider   Provider
	routes     *RouteTable
	basePrompt string
	fsRoots    []string
	logger     *observability.Logger
}

// NewPlanner creates a planner. basePrompt is the routing instruction; the
// tool catalog and filesystem roots are appended per call.
func NewPlanner(provider Provider, routes *RouteTable, basePrompt string, fsRoots []string, logger *observability.Logger) *Planner {
	return &Planner{
		provider:   provider,
		routes:     routes,
		basePrompt: basePrompt,
		fsRoots:    fsRoots,
		logger:     logger,
	}
}

// plannerTemperature keeps route classification near-deterministic.
const plannerTemperature = 0.1

// Plan routes the utterance. A malformed or contradictory model response is
// a *RoutingError; a transport failure is a *ModelCallError.
func (p *Planner) Plan(ctx context.Context, utterance string, catalog []llm.ToolSpec) (*RouteDecision, error) {
	comp, err := p.provider.Complete(ctx, &llm.Request{
		System:      p.buildSystemPrompt(catalog),
		Messages:    []models.Message{models.UserMessage(utterance)},
		Temperature: plannerTemperature,
	})
	if err != nil {
		return nil, &ModelCallError{Op: "planning", Err: err}
	}

	decision, err := p.parse(comp.Content)
	if err != nil {
		return nil, err
	}

	p.logger.Info(ctx, "route selected",
		"route", string(decision.Route),
		"intent", decision.Intent,
		"tool_calls", len(decision.ToolCalls))
	observability.RouteDecisions.WithLabelValues(string(decision.Route)).Inc()
	return decision, nil
}

func (p *Planner) buildSystemPrompt(catalog []llm.ToolSpec) string {
	var b strings.Builder
	b.WriteString(p.basePrompt)

	b.WriteString("\n\nAVAILABLE_TOOLS:\n")
	for _, spec := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
	}

	if len(p.fsRoots) > 0 {
		b.WriteString("\nFS_ROOTS:\n")
		for _, root := range p.fsRoots {
			fmt.Fprintf(&b, "- %s\n", root)
		}
	}
	return b.String()
}

// plannerWire is the JSON shape the model is instructed to emit.
type plannerWire struct {
	Intent    string `json:"intent"`
	Route     string `json:"route"`
	ToolCalls []struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"tool_calls"`
	FinalUserMessage string `json:"final_user_message"`
}

// parse turns raw model output into a RouteDecision. The model sometimes
// wraps the object in prose, so a failed direct parse falls back to the
// outermost brace-delimited substring. Anything still unparseable, or an
// intent/route contradiction, is a RoutingError.
func (p *Planner) parse(raw string) (*RouteDecision, error) {
	var wire plannerWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		extracted, ok := extractJSONObject(raw)
		if !ok {
			return nil, &RoutingError{Reason: "planner output is not a JSON object", Raw: raw}
		}
		if err := json.Unmarshal([]byte(extracted), &wire); err != nil {
			return nil, &RoutingError{Reason: "planner output does not match the expected shape", Raw: raw}
		}
	}

	if wire.Intent != "" && wire.Route != "" && wire.Intent != wire.Route {
		return nil, &RoutingError{
			Reason: fmt.Sprintf("planner intent %q contradicts route %q", wire.Intent, wire.Route),
			Raw:    raw,
		}
	}

	name := wire.Route
	if name == "" {
		name = wire.Intent
	}
	route := RouteName(name)
	switch {
	case name == "":
		route = RouteExternalKnowledge
	case !p.routes.Known(route):
		return nil, &RoutingError{Reason: fmt.Sprintf("unknown route %q", name), Raw: raw}
	}

	decision := &RouteDecision{
		Intent:           wire.Intent,
		Route:            route,
		RewrittenMessage: strings.TrimSpace(wire.FinalUserMessage),
	}
	for _, tc := range wire.ToolCalls {
		if tc.Name == "" {
			continue
		}
		decision.ToolCalls = append(decision.ToolCalls, models.ToolCall{
			ID:    "plan_" + uuid.NewString(),
			Name:  tc.Name,
			Input: normalizeArguments(tc.Arguments),
		})
	}
	return decision, nil
}

// normalizeArguments coerces planner-proposed arguments into a JSON object.
// Models occasionally double-encode arguments as a string; that is unwrapped
// when it parses, otherwise the arguments degrade to an empty object.
func normalizeArguments(raw json.RawMessage) json.RawMessage {
	empty := json.RawMessage("{}")
	if len(raw) == 0 {
		return empty
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return raw
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &obj); err == nil {
			return json.RawMessage(s)
		}
	}
	return empty
}

// extractJSONObject returns the substring from the first '{' to the last
// '}', when both exist in order.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
