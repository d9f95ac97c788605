// Package agent implements the request-time orchestration core: the intent
// planner, the per-route tool allow-lists, the tool runner, and the agent
// loop state machine that drives tool rounds and final streaming.
package agent

import (
	"context"

	"github.com/haasonsaas/quill/internal/llm"
	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/pkg/models"
)

// Phase is a state of the agent loop.
type Phase string

const (
	PhasePlanning       Phase = "planning"
	PhaseRouteSelected  Phase = "route_selected"
	PhaseToolRound      Phase = "tool_round"
	PhaseFinalSynthesis Phase = "final_synthesis"
	PhaseStreaming      Phase = "streaming"
	PhaseDone           Phase = "done"
	PhaseError          Phase = "error"
)

// LoopConfig bounds the agent loop.
type LoopConfig struct {
	// MaxToolRounds caps tool rounds per request. When reached the loop
	// forces finalization with whatever context has accumulated instead of
	// failing the request. Default 4.
	MaxToolRounds int

	// MaxTokens limits individual model responses. Zero uses the client
	// default.
	MaxTokens int
}

// DefaultLoopConfig returns the default loop bounds.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{MaxToolRounds: 4}
}

// Loop is the central state machine. One request moves through
// PLANNING, ROUTE_SELECTED, zero or more TOOL_ROUNDs, FINAL_SYNTHESIS, and
// STREAMING to DONE; ERROR is reachable from any state. The conversation
// buffer is per-request and append-only; nothing is shared across requests.
type Loop struct {
	provider Provider
	planner  *Planner
	routes   *RouteTable
	runner   *Runner
	registry *Registry
	config   LoopConfig
	logger   *observability.Logger
}

// NewLoop wires the loop. Zero config fields take defaults.
func NewLoop(provider Provider, planner *Planner, routes *RouteTable, runner *Runner, registry *Registry, config LoopConfig, logger *observability.Logger) *Loop {
	if config.MaxToolRounds <= 0 {
		config.MaxToolRounds = 4
	}
	return &Loop{
		provider: provider,
		planner:  planner,
		routes:   routes,
		runner:   runner,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// state is the per-request loop state. Messages is the conversation buffer;
// it only ever grows.
type state struct {
	phase    Phase
	round    int
	route    RouteName
	messages []models.Message
}

// Run processes one utterance. The returned channel carries token events in
// arrival order, at most one trailing error event, and is closed when the
// request is finished either way. Cancelling ctx stops all work promptly.
func (l *Loop) Run(ctx context.Context, utterance string) <-chan models.Event {
	events := make(chan models.Event)
	go func() {
		defer close(events)
		l.run(ctx, utterance, events)
	}()
	return events
}

func (l *Loop) run(ctx context.Context, utterance string, events chan<- models.Event) {
	st := &state{phase: PhasePlanning}

	decision, err := l.planner.Plan(ctx, utterance, l.registry.Specs())
	if err != nil {
		l.fail(ctx, st, events, err)
		return
	}

	st.phase = PhaseRouteSelected
	st.route = decision.Route
	ctx = observability.AddRoute(ctx, string(decision.Route))
	rc := l.routes.Get(decision.Route)

	st.messages = append(st.messages, models.SystemMessage(rc.SystemPrompt))
	for _, extra := range rc.ExtraSystem {
		st.messages = append(st.messages, models.SystemMessage(extra))
	}
	userText := utterance
	if decision.RewrittenMessage != "" {
		userText = decision.RewrittenMessage
	}
	st.messages = append(st.messages, models.UserMessage(userText))

	if len(decision.ToolCalls) > 0 {
		if !l.runToolRounds(ctx, st, events, rc, decision.ToolCalls) {
			return
		}
	}

	l.streamFinal(ctx, st, events)
}

// runToolRounds drives TOOL_ROUND(n) transitions until the model stops
// requesting tools or the round cap forces finalization. Returns false when
// the request failed and an error event was already emitted.
func (l *Loop) runToolRounds(ctx context.Context, st *state, events chan<- models.Event, rc RouteContext, pending []models.ToolCall) bool {
	// The pending calls always belong to an assistant message so tool
	// results stay causally ordered behind the request that asked for them.
	st.messages = append(st.messages, models.Message{Role: models.RoleAssistant, ToolCalls: pending})

	for {
		st.phase = PhaseToolRound
		l.logger.Debug(ctx, "executing tool round", "round", st.round, "calls", len(pending))

		results := l.runner.Run(ctx, pending, rc.Allowed)
		st.messages = append(st.messages, models.Message{Role: models.RoleTool, ToolResults: results})

		if ctx.Err() != nil {
			l.fail(ctx, st, events, ctx.Err())
			return false
		}

		st.round++
		if st.round >= l.config.MaxToolRounds {
			// At the cap, the non-streaming continuation call is skipped and
			// the final streaming call synthesizes directly from the buffer,
			// which already holds the last round's tool results.
			l.logger.Warn(ctx, "round cap reached, forcing finalization", "rounds", st.round)
			return true
		}

		comp, err := l.provider.Complete(ctx, &llm.Request{
			Messages:  st.messages,
			Tools:     l.allowedSpecs(rc.Allowed),
			MaxTokens: l.config.MaxTokens,
		})
		if err != nil {
			l.fail(ctx, st, events, &ModelCallError{Op: "tool round", Err: err})
			return false
		}

		if len(comp.ToolCalls) == 0 {
			if comp.Content != "" {
				st.messages = append(st.messages, models.Message{Role: models.RoleAssistant, Content: comp.Content})
			}
			return true
		}

		st.messages = append(st.messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   comp.Content,
			ToolCalls: comp.ToolCalls,
		})
		pending = comp.ToolCalls
	}
}

// streamFinal issues the one incremental call and relays fragments. Tool
// calls are not legal during streaming; any that arrive are dropped.
func (l *Loop) streamFinal(ctx context.Context, st *state, events chan<- models.Event) {
	st.phase = PhaseFinalSynthesis

	chunks, err := l.provider.Stream(ctx, &llm.Request{
		Messages:  st.messages,
		MaxTokens: l.config.MaxTokens,
	})
	if err != nil {
		l.fail(ctx, st, events, &ModelCallError{Op: "final synthesis", Err: err})
		return
	}

	st.phase = PhaseStreaming
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			l.fail(ctx, st, events, &ModelCallError{Op: "streaming", Err: chunk.Err})
			return
		case chunk.ToolCall != nil:
			l.logger.Warn(ctx, "tool call during streaming dropped", "tool", chunk.ToolCall.Name)
		case chunk.Text != "":
			select {
			case events <- models.TokenEvent(chunk.Text):
			case <-ctx.Done():
				return
			}
		}
	}

	st.phase = PhaseDone
}

// fail moves the loop to ERROR and emits the single error event. The caller
// returns immediately after, closing the event channel.
func (l *Loop) fail(ctx context.Context, st *state, events chan<- models.Event, err error) {
	loopErr := &LoopError{Phase: st.phase, Err: err}
	st.phase = PhaseError
	l.logger.Error(ctx, "request failed", "error", loopErr, "round", st.round)

	select {
	case events <- models.ErrorEvent(UserMessage(err)):
	case <-ctx.Done():
	}
}

// allowedSpecs returns the catalog restricted to the route's allow-list, so
// the model is never offered a tool it cannot use.
func (l *Loop) allowedSpecs(allowed AllowList) []llm.ToolSpec {
	specs := l.registry.Specs()
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, spec := range specs {
		if allowed.Allows(spec.Name) {
			out = append(out, spec)
		}
	}
	return out
}
