package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/quill/internal/config"
	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/pkg/models"
)

// Client talks to a chat completion endpoint through the OpenAI wire
// protocol. DeepSeek is the default backend; any OpenAI-compatible service
// works.
//
// Client is safe for concurrent use. Each Stream call creates an independent
// stream and goroutine.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	maxRetries  int
	retryDelay  time.Duration
	logger      *observability.Logger
}

// NewClient builds a client from model configuration. An empty API key is
// allowed so the process can start without credentials; calls will fail with
// a configuration error until one is set.
func NewClient(cfg config.ModelConfig, logger *observability.Logger) *Client {
	c := &Client{
		model:       cfg.Name,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  3,
		retryDelay:  time.Second,
		logger:      logger,
	}
	if cfg.APIKey == "" {
		return c
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	c.api = openai.NewClientWithConfig(apiCfg)
	return c
}

// Complete performs a single-shot call and returns the full assistant
// message, including any requested tool calls.
func (c *Client) Complete(ctx context.Context, req *Request) (*Completion, error) {
	if c.api == nil {
		return nil, errors.New("model API key not configured")
	}

	chatReq := c.buildRequest(req, false)

	var resp openai.ChatCompletionResponse
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		resp, lastErr = c.api.CreateChatCompletion(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return nil, fmt.Errorf("completion failed: %w", lastErr)
		}
		c.logger.Warn(ctx, "retrying completion", "attempt", attempt+1, "error", lastErr)
	}
	if lastErr != nil {
		return nil, fmt.Errorf("completion failed after %d attempts: %w", c.maxRetries, lastErr)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	msg := resp.Choices[0].Message
	out := &Completion{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

// Stream performs an incremental call. The returned channel delivers text
// fragments as they arrive; tool calls are accumulated across deltas and
// delivered whole. The channel is closed after a Done or Err chunk.
func (c *Client) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	if c.api == nil {
		return nil, errors.New("model API key not configured")
	}

	chatReq := c.buildRequest(req, true)

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		stream, lastErr = c.api.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return nil, fmt.Errorf("stream start failed: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("stream start failed after %d attempts: %w", c.maxRetries, lastErr)
	}

	chunks := make(chan *Chunk)
	go c.processStream(ctx, stream, chunks)
	return chunks, nil
}

func (c *Client) buildRequest(req *Request, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    convertMessages(req.Messages, req.System),
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stream:      stream,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}
	return chatReq
}

// processStream consumes the wire stream and converts it to chunks. Tool
// call fragments arrive incrementally keyed by index; they are emitted whole
// once the finish reason says all calls are complete, or at end of stream.
func (c *Client) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *Chunk) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*models.ToolCall)
	emitToolCalls := func() {
		for _, tc := range toolCalls {
			if tc.ID != "" && tc.Name != "" {
				chunks <- &Chunk{ToolCall: tc}
			}
		}
		toolCalls = make(map[int]*models.ToolCall)
	}

	for {
		select {
		case <-ctx.Done():
			// Consumer is cancelled; do not block on a final send.
			select {
			case chunks <- &Chunk{Err: ctx.Err()}:
			default:
			}
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				emitToolCalls()
				select {
				case chunks <- &Chunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case chunks <- &Chunk{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			select {
			case chunks <- &Chunk{Text: choice.Delta.Content}:
			case <-ctx.Done():
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[index].Input = append(toolCalls[index].Input, tc.Function.Arguments...)
			}
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			emitToolCalls()
		}
	}
}

// convertMessages maps the internal message format onto the wire format. A
// non-empty system prompt becomes the first message; each tool result
// becomes its own tool-role message linked by call ID.
func convertMessages(messages []models.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleTool:
			for _, tr := range msg.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}

		case models.RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			out = append(out, m)

		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}
	}

	return out
}

func convertTools(tools []ToolSpec) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schema map[string]any
		if err := json.Unmarshal(t.Schema, &schema); err != nil || schema == nil {
			// A bad schema degrades to an empty object so one broken tool
			// does not take down tool calling for the rest.
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

// isRetryable classifies transient failures: rate limits, server errors, and
// timeouts. Auth and validation failures are not retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	msg := err.Error()
	for _, marker := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
