package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/quill/internal/agent"
)

// toolCaller is the slice of Client the bridge needs, kept narrow for tests.
type toolCaller interface {
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResult, error)
}

// BridgedTool adapts an MCP server tool to the agent tool interface. Names
// are prefixed with the server ID so tools from different servers cannot
// collide.
type BridgedTool struct {
	serverID string
	tool     *ServerTool
	caller   toolCaller
}

// NewBridgedTool wraps a server tool for registration with the agent.
func NewBridgedTool(serverID string, tool *ServerTool, client *Client) *BridgedTool {
	return &BridgedTool{serverID: serverID, tool: tool, caller: client}
}

func (b *BridgedTool) Name() string {
	return b.serverID + "_" + b.tool.Name
}

func (b *BridgedTool) Description() string {
	if b.tool.Description != "" {
		return b.tool.Description
	}
	return fmt.Sprintf("Tool %s from MCP server %s", b.tool.Name, b.serverID)
}

func (b *BridgedTool) Schema() json.RawMessage {
	if len(b.tool.InputSchema) > 0 {
		return b.tool.InputSchema
	}
	return json.RawMessage(`{"type":"object"}`)
}

func (b *BridgedTool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	result, err := b.caller.CallTool(ctx, b.tool.Name, input)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("tool call failed: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{
		Content: flattenContent(result),
		IsError: result.IsError,
	}, nil
}

// flattenContent joins the pieces of a tool result into one text block.
// Non-text pieces are represented by a short placeholder instead of raw
// base64.
func flattenContent(result *ToolCallResult) string {
	if len(result.Content) == 0 {
		return "(empty result)"
	}

	parts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		switch c.Type {
		case "text":
			parts = append(parts, c.Text)
		case "image":
			parts = append(parts, fmt.Sprintf("[image: %s, %d bytes base64]", c.MimeType, len(c.Data)))
		default:
			parts = append(parts, fmt.Sprintf("[%s content]", c.Type))
		}
	}
	return strings.Join(parts, "\n")
}
