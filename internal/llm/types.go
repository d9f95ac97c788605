// Package llm wraps an OpenAI-compatible chat completion endpoint in two
// modes: single-shot (one complete message, possibly with tool calls) and
// incremental (a lazy stream of text fragments with an end marker).
package llm

import (
	"encoding/json"

	"github.com/haasonsaas/quill/pkg/models"
)

// Request contains all parameters for a completion call.
type Request struct {
	// Model overrides the client's default model when non-empty.
	Model string

	// System is prepended as a system message when non-empty. System-role
	// messages inside Messages are passed through as well.
	System string

	// Messages is the conversation so far, in chronological order.
	Messages []models.Message

	// Tools the model may request. Empty disables tool calling.
	Tools []ToolSpec

	// MaxTokens limits the response length. Zero uses the client default.
	MaxTokens int

	// Temperature overrides the client default when non-zero.
	Temperature float32
}

// ToolSpec describes one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Completion is the result of a single-shot call.
type Completion struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Chunk is one element of an incremental response. Exactly one of Text,
// ToolCall, Done, or Err is meaningful per chunk; Done or Err is always the
// last chunk before the channel closes.
type Chunk struct {
	Text     string
	ToolCall *models.ToolCall
	Done     bool
	Err      error
}
