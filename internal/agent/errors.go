package agent

import (
	"errors"
	"fmt"
)

// RoutingError means the planner produced unparseable or contradictory
// output. Fatal for the request; never retried.
type RoutingError struct {
	Reason string
	Raw    string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing failed: %s", e.Reason)
}

// ModelCallError means a completion call failed at the transport level.
// Fatal for the current request; no automatic retry beyond what the client
// already did.
type ModelCallError struct {
	Op  string
	Err error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call failed during %s: %v", e.Op, e.Err)
}

func (e *ModelCallError) Unwrap() error {
	return e.Err
}

// LoopError wraps a failure with the phase it occurred in.
type LoopError struct {
	Phase Phase
	Err   error
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("agent loop failed in phase %s: %v", e.Phase, e.Err)
}

func (e *LoopError) Unwrap() error {
	return e.Err
}

// UserMessage renders an error as the human-readable cause carried by an
// error event. Internal detail is kept out of the client-facing text.
func UserMessage(err error) string {
	var routingErr *RoutingError
	if errors.As(err, &routingErr) {
		return "could not determine how to handle the request"
	}
	var modelErr *ModelCallError
	if errors.As(err, &modelErr) {
		return "the model backend is unavailable"
	}
	return err.Error()
}
