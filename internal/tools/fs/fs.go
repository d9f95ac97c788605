// Package fs provides the built-in filesystem tools. Every path is resolved
// and checked for containment inside the configured roots before any read.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/quill/internal/agent"
)

const (
	defaultListLimit   = 100
	defaultMaxReadSize = 200_000
)

// Roots is the set of directories the filesystem tools may touch.
type Roots struct {
	dirs []string
}

// NewRoots resolves the configured root directories. Relative paths are made
// absolute against the working directory.
func NewRoots(dirs []string) (*Roots, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("no filesystem roots configured")
	}
	resolved := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", dir, err)
		}
		resolved = append(resolved, filepath.Clean(abs))
	}
	return &Roots{dirs: resolved}, nil
}

// Dirs returns the resolved root directories.
func (r *Roots) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

// Resolve makes the path absolute and verifies it stays inside a root.
func (r *Roots) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	abs = filepath.Clean(abs)

	for _, root := range r.dirs {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("path %q is outside the allowed directories", path)
}

// ListDirectoryTool lists entries of a directory inside the allowed roots.
type ListDirectoryTool struct {
	roots *Roots
}

// NewListDirectoryTool creates the list_directory tool.
func NewListDirectoryTool(roots *Roots) *ListDirectoryTool {
	return &ListDirectoryTool{roots: roots}
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }

func (t *ListDirectoryTool) Description() string {
	return "List entries of a directory inside the allowed roots. Returns name, type, and size per entry."
}

func (t *ListDirectoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory to list"},
			"limit": {"type": "integer", "description": "Maximum entries to return", "minimum": 1}
		},
		"required": ["path"]
	}`)
}

func (t *ListDirectoryTool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var args struct {
		Path  string `json:"path"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if args.Limit <= 0 {
		args.Limit = defaultListLimit
	}

	dir, err := t.roots.Resolve(args.Path)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("read directory: %v", err), IsError: true}, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	count := 0
	for _, entry := range entries {
		if count >= args.Limit {
			fmt.Fprintf(&b, "... truncated at %d entries\n", args.Limit)
			break
		}
		kind := "file"
		size := int64(0)
		if entry.IsDir() {
			kind = "dir"
		} else if info, err := entry.Info(); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(&b, "%s\t%s\t%d\n", entry.Name(), kind, size)
		count++
	}
	if count == 0 {
		b.WriteString("(empty directory)\n")
	}
	return &agent.ToolResult{Content: b.String()}, nil
}

// ReadFileTool reads a file inside the allowed roots, bounded by a byte
// budget.
type ReadFileTool struct {
	roots *Roots
}

// NewReadFileTool creates the read_file tool.
func NewReadFileTool(roots *Roots) *ReadFileTool {
	return &ReadFileTool{roots: roots}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a text file inside the allowed roots, up to max_bytes."
}

func (t *ReadFileTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "File to read"},
			"max_bytes": {"type": "integer", "description": "Byte budget for the read", "minimum": 1}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage) (*agent.ToolResult, error) {
	var args struct {
		Path     string `json:"path"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if args.MaxBytes <= 0 {
		args.MaxBytes = defaultMaxReadSize
	}

	path, err := t.roots.Resolve(args.Path)
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("stat: %v", err), IsError: true}, nil
	}
	if info.IsDir() {
		return &agent.ToolResult{Content: fmt.Sprintf("%q is a directory", args.Path), IsError: true}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("open: %v", err), IsError: true}, nil
	}
	defer f.Close()

	buf := make([]byte, args.MaxBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return &agent.ToolResult{Content: fmt.Sprintf("read: %v", err), IsError: true}, nil
	}

	content := string(buf[:n])
	if info.Size() > int64(n) {
		content += fmt.Sprintf("\n... truncated at %d of %d bytes", n, info.Size())
	}
	return &agent.ToolResult{Content: content}, nil
}
