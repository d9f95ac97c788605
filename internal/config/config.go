// Package config builds the process-wide configuration value object. It is
// constructed once at startup and passed into component constructors; no
// other package reads the environment directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the server needs. Values come from the
// environment (with .env support) and fall back to defaults suitable for
// local development.
type Config struct {
	Model  ModelConfig
	HTTP   HTTPConfig
	Agent  AgentConfig
	Tools  ToolsConfig
	Log    LogConfig
}

// ModelConfig configures the completion backend. DeepSeek exposes an
// OpenAI-compatible API, so any OpenAI-compatible endpoint works here.
type ModelConfig struct {
	APIKey      string
	BaseURL     string
	Name        string
	Temperature float32
	MaxTokens   int
}

// HTTPConfig configures the gateway listener.
type HTTPConfig struct {
	Host         string
	Port         int
	PingInterval time.Duration
}

// AgentConfig bounds the agent loop.
type AgentConfig struct {
	MaxToolRounds   int
	ToolTimeout     time.Duration
	ToolConcurrency int
}

// ToolsConfig configures the built-in tools and optional external tool
// servers.
type ToolsConfig struct {
	FSRoots       []string
	TavilyAPIKey  string
	LedgerPath    string
	ServersConfig string
	ResourceDir   string

	// RouteTools overrides a route's tool allow-list. Keys are route names;
	// a route absent from the map keeps its default list. An override may
	// name external server tools by their registered, server-prefixed name.
	RouteTools map[string][]string
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	// Ignore a missing .env; it is a development convenience only.
	_ = godotenv.Load()

	cfg := &Config{
		Model: ModelConfig{
			APIKey:      os.Getenv("DEEPSEEK_API_KEY"),
			BaseURL:     getenv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
			Name:        getenv("DEEPSEEK_MODEL", "deepseek-chat"),
			Temperature: float32(getfloat("QUILL_TEMPERATURE", 0.2)),
			MaxTokens:   getint("QUILL_MAX_TOKENS", 2048),
		},
		HTTP: HTTPConfig{
			Host:         getenv("QUILL_HOST", "127.0.0.1"),
			Port:         getint("QUILL_PORT", 8000),
			PingInterval: getduration("QUILL_PING_INTERVAL", 10*time.Second),
		},
		Agent: AgentConfig{
			MaxToolRounds:   getint("QUILL_MAX_TOOL_ROUNDS", 4),
			ToolTimeout:     getduration("QUILL_TOOL_TIMEOUT", 30*time.Second),
			ToolConcurrency: getint("QUILL_TOOL_CONCURRENCY", 4),
		},
		Tools: ToolsConfig{
			FSRoots:       getlist("QUILL_FS_ROOTS"),
			TavilyAPIKey:  os.Getenv("TAVILY_API_KEY"),
			LedgerPath:    getenv("QUILL_LEDGER_DB", "quill-ledger.db"),
			ServersConfig: os.Getenv("QUILL_SERVERS_CONFIG"),
			ResourceDir:   os.Getenv("QUILL_RESOURCE_DIR"),
			RouteTools:    getRouteTools(),
		},
		Log: LogConfig{
			Level:  getenv("QUILL_LOG_LEVEL", "info"),
			Format: getenv("QUILL_LOG_FORMAT", "json"),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail at an awkward time.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.HTTP.Port)
	}
	if c.Agent.MaxToolRounds < 1 {
		return fmt.Errorf("max tool rounds must be at least 1, got %d", c.Agent.MaxToolRounds)
	}
	if c.HTTP.PingInterval < time.Second {
		return fmt.Errorf("ping interval %v is too short", c.HTTP.PingInterval)
	}
	return nil
}

// Addr returns the host:port the gateway binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// routeToolKeys maps route names to the environment variable holding that
// route's allow-list override.
var routeToolKeys = map[string]string{
	"file_list":          "QUILL_ROUTE_TOOLS_FILE_LIST",
	"external_knowledge": "QUILL_ROUTE_TOOLS_EXTERNAL_KNOWLEDGE",
	"ledger":             "QUILL_ROUTE_TOOLS_LEDGER",
	"sql_generate":       "QUILL_ROUTE_TOOLS_SQL_GENERATE",
}

// getRouteTools collects per-route allow-list overrides. A set-but-empty
// variable yields an empty list, which disables all tools on that route.
func getRouteTools() map[string][]string {
	var out map[string][]string
	for route, key := range routeToolKeys {
		if _, ok := os.LookupEnv(key); !ok {
			continue
		}
		if out == nil {
			out = make(map[string][]string)
		}
		names := getlist(key)
		if names == nil {
			names = []string{}
		}
		out[route] = names
	}
	return out
}

func getlist(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
