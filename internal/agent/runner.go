package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/pkg/models"
)

// RunnerConfig bounds tool execution within one round.
type RunnerConfig struct {
	// Concurrency is the maximum number of tools running at once. Default 4.
	Concurrency int

	// PerToolTimeout is the timeout for an individual tool call. Default 30s.
	PerToolTimeout time.Duration
}

// DefaultRunnerConfig returns defaults suitable for local tools.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Concurrency:    4,
		PerToolTimeout: 30 * time.Second,
	}
}

// Runner executes the tool calls proposed by the planner or the loop. The
// allow-list gate is a hard security boundary: a call outside the route's
// allow-list is rejected without invocation. Calls within one round run
// concurrently; results come back in input order so they map 1:1 onto
// tool_call_ids.
type Runner struct {
	registry *Registry
	config   RunnerConfig
	logger   *observability.Logger
}

// NewRunner creates a runner over the given registry. Zero config fields
// take defaults.
func NewRunner(registry *Registry, config RunnerConfig, logger *observability.Logger) *Runner {
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PerToolTimeout <= 0 {
		config.PerToolTimeout = 30 * time.Second
	}
	return &Runner{registry: registry, config: config, logger: logger}
}

// Run executes the calls and returns one result per call, in input order.
func (r *Runner) Run(ctx context.Context, calls []models.ToolCall, allowed AllowList) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))

	sem := make(chan struct{}, r.config.Concurrency)
	var wg sync.WaitGroup

	for i, tc := range calls {
		if !allowed.Allows(tc.Name) {
			results[i] = models.ToolResult{
				ToolCallID: tc.ID,
				Content:    fmt.Sprintf("not_allowed: tool %q is not permitted on this route", tc.Name),
				IsError:    true,
			}
			observability.ToolCalls.WithLabelValues(tc.Name, "not_allowed").Inc()
			r.logger.Warn(ctx, "tool call outside allow-list rejected", "tool", tc.Name)
			continue
		}

		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = models.ToolResult{
					ToolCallID: call.ID,
					Content:    "tool execution canceled",
					IsError:    true,
				}
				return
			}

			start := time.Now()
			toolCtx, cancel := context.WithTimeout(ctx, r.config.PerToolTimeout)
			toolCtx = observability.AddToolCallID(toolCtx, call.ID)
			result, timedOut := r.executeWithTimeout(toolCtx, call)
			cancel()

			results[idx] = result

			outcome := "ok"
			switch {
			case timedOut:
				outcome = "timeout"
			case result.IsError:
				outcome = "error"
			}
			observability.ToolCalls.WithLabelValues(call.Name, outcome).Inc()
			r.logger.Debug(ctx, "tool call finished",
				"tool", call.Name,
				"outcome", outcome,
				"duration_ms", time.Since(start).Milliseconds())
		}(i, tc)
	}

	wg.Wait()
	return results
}

// executeWithTimeout runs a single call, folding timeouts and panic-free
// failures into an error-flagged result.
func (r *Runner) executeWithTimeout(ctx context.Context, call models.ToolCall) (models.ToolResult, bool) {
	type execResult struct {
		result *ToolResult
		err    error
	}

	resultChan := make(chan execResult, 1)

	go func() {
		result, err := r.registry.Execute(ctx, call.Name, call.Input)
		select {
		case resultChan <- execResult{result: result, err: err}:
		default:
			// The call already timed out; the late result is discarded.
			r.logger.Warn(ctx, "tool finished after timeout, result discarded", "tool", call.Name)
		}
	}()

	select {
	case <-ctx.Done():
		var content string
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			content = fmt.Sprintf("tool execution timed out after %v", r.config.PerToolTimeout)
		} else {
			content = "tool execution canceled"
		}
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    content,
			IsError:    true,
		}, errors.Is(ctx.Err(), context.DeadlineExceeded)
	case res := <-resultChan:
		if res.err != nil {
			return models.ToolResult{
				ToolCallID: call.ID,
				Content:    res.err.Error(),
				IsError:    true,
			}, false
		}
		return models.ToolResult{
			ToolCallID: call.ID,
			Content:    res.result.Content,
			IsError:    res.result.IsError,
		}, false
	}
}
