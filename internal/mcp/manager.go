package mcp

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/quill/internal/agent"
	"github.com/haasonsaas/quill/internal/observability"
)

// Manager owns the set of MCP server connections and registers their tools
// with the agent.
type Manager struct {
	logger  *observability.Logger
	clients map[string]*Client
	mu      sync.Mutex
}

// NewManager creates an empty manager.
func NewManager(logger *observability.Logger) *Manager {
	return &Manager{
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// serversFile is the YAML shape of the server configuration file.
type serversFile struct {
	Servers []*ServerConfig `yaml:"servers"`
}

// LoadServersFile reads MCP server configurations from a YAML file.
// Environment variable references in the file body are expanded before
// parsing, so keys can be kept out of the file itself.
func LoadServersFile(path string) ([]*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var file serversFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("parse servers file: %w", err)
	}

	for _, cfg := range file.Servers {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Servers, nil
}

// Connect starts the configured servers. A server that fails to connect is
// logged and skipped so one broken server cannot take the rest down.
func (m *Manager) Connect(ctx context.Context, configs []*ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cfg := range configs {
		if _, exists := m.clients[cfg.ID]; exists {
			return fmt.Errorf("duplicate MCP server ID %q", cfg.ID)
		}

		client := NewClient(cfg, m.logger)
		if err := client.Connect(ctx); err != nil {
			m.logger.Error(ctx, "MCP server connect failed", "server", cfg.ID, "error", err)
			continue
		}
		m.clients[cfg.ID] = client
	}
	return nil
}

// RegisterTools bridges every connected server's tools into the registry.
func (m *Manager) RegisterTools(ctx context.Context, registry *agent.Registry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.clients {
		for _, tool := range client.Tools() {
			bridged := NewBridgedTool(id, tool, client)
			if err := registry.Register(bridged); err != nil {
				m.logger.Warn(ctx, "skipping MCP tool", "server", id, "tool", tool.Name, "error", err)
				continue
			}
			m.logger.Info(ctx, "registered MCP tool", "server", id, "tool", bridged.Name())
		}
	}
	return nil
}

// Close shuts down all server connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, client := range m.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", id, err)
		}
		delete(m.clients, id)
	}
	return firstErr
}
