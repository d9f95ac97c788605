package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/quill/internal/agent"
	"github.com/haasonsaas/quill/internal/config"
	"github.com/haasonsaas/quill/internal/gateway"
	"github.com/haasonsaas/quill/internal/llm"
	"github.com/haasonsaas/quill/internal/mcp"
	"github.com/haasonsaas/quill/internal/observability"
	"github.com/haasonsaas/quill/internal/resources"
	"github.com/haasonsaas/quill/internal/sqlgen"
	"github.com/haasonsaas/quill/internal/tools/fs"
	"github.com/haasonsaas/quill/internal/tools/ledger"
	"github.com/haasonsaas/quill/internal/tools/websearch"
)

// buildServeCmd creates the "serve" command that starts the gateway.
func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the quill gateway server",
		Long: `Start the streaming gateway.

The server will:
1. Load configuration from the environment (.env supported)
2. Register the built-in tools and any configured MCP servers
3. Serve /v1/chat/sse and /v1/sql/sse with health and metrics endpoints

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := llm.NewClient(cfg.Model, logger)

	registry := agent.NewRegistry()
	if err := registerBuiltinTools(ctx, cfg, registry, logger); err != nil {
		return err
	}

	var mcpManager *mcp.Manager
	if cfg.Tools.ServersConfig != "" {
		mcpManager = mcp.NewManager(logger)
		servers, err := mcp.LoadServersFile(cfg.Tools.ServersConfig)
		if err != nil {
			return fmt.Errorf("load MCP servers: %w", err)
		}
		if err := mcpManager.Connect(ctx, servers); err != nil {
			return fmt.Errorf("connect MCP servers: %w", err)
		}
		defer mcpManager.Close()
		if err := mcpManager.RegisterTools(ctx, registry); err != nil {
			return fmt.Errorf("register MCP tools: %w", err)
		}
	}

	docs := resources.NewProvider(cfg.Tools.ResourceDir)
	prompts, err := loadRoutePrompts(docs)
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}
	routes := agent.NewRouteTable(prompts)
	for route, names := range cfg.Tools.RouteTools {
		name := agent.RouteName(route)
		if !routes.Known(name) {
			logger.Warn(ctx, "allow-list override names unknown route", "route", route)
			continue
		}
		routes.SetAllowList(name, agent.NewAllowList(names...))
		logger.Info(ctx, "route allow-list overridden", "route", route, "tools", names)
	}

	plannerPrompt, err := docs.Prompt("chat_planner")
	if err != nil {
		return fmt.Errorf("load planner prompt: %w", err)
	}
	planner := agent.NewPlanner(client, routes, plannerPrompt, cfg.Tools.FSRoots, logger)

	runner := agent.NewRunner(registry, agent.RunnerConfig{
		Concurrency:    cfg.Agent.ToolConcurrency,
		PerToolTimeout: cfg.Agent.ToolTimeout,
	}, logger)

	loop := agent.NewLoop(client, planner, routes, runner, registry, agent.LoopConfig{
		MaxToolRounds: cfg.Agent.MaxToolRounds,
		MaxTokens:     cfg.Model.MaxTokens,
	}, logger)

	pipeline := sqlgen.NewPipeline(client, docs, logger)

	server := gateway.NewServer(cfg, loop, pipeline, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// registerBuiltinTools wires the local tools according to configuration.
// Tools whose configuration is absent stay unregistered; a planner call for
// them then fails the allow-list check instead of failing at startup.
func registerBuiltinTools(ctx context.Context, cfg *config.Config, registry *agent.Registry, logger *observability.Logger) error {
	if len(cfg.Tools.FSRoots) > 0 {
		roots, err := fs.NewRoots(cfg.Tools.FSRoots)
		if err != nil {
			return fmt.Errorf("filesystem roots: %w", err)
		}
		if err := registry.Register(fs.NewListDirectoryTool(roots)); err != nil {
			return err
		}
		if err := registry.Register(fs.NewReadFileTool(roots)); err != nil {
			return err
		}
	} else {
		logger.Warn(ctx, "no filesystem roots configured, file tools disabled")
	}

	if err := registry.Register(websearch.New(cfg.Tools.TavilyAPIKey)); err != nil {
		return err
	}
	if cfg.Tools.TavilyAPIKey == "" {
		logger.Warn(ctx, "TAVILY_API_KEY not set, web_search will report an error when called")
	}

	store, err := ledger.OpenStore(cfg.Tools.LedgerPath)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	if err := registry.Register(ledger.NewUpsertTool(store)); err != nil {
		return err
	}

	return nil
}

// loadRoutePrompts reads the per-route system prompts and the SQL context
// documents from the resource provider.
func loadRoutePrompts(docs *resources.Provider) (agent.RoutePrompts, error) {
	var prompts agent.RoutePrompts
	var err error

	if prompts.FileList, err = docs.Prompt("file_list"); err != nil {
		return prompts, err
	}
	if prompts.ExternalKnowledge, err = docs.Prompt("external_knowledge"); err != nil {
		return prompts, err
	}
	if prompts.Ledger, err = docs.Prompt("ledger"); err != nil {
		return prompts, err
	}
	if prompts.SQLGenerate, err = docs.Prompt("sql_generate"); err != nil {
		return prompts, err
	}

	schema, err := docs.Resource("context://db_schema")
	if err != nil {
		return prompts, err
	}
	glossary, err := docs.Resource("context://business_glossary")
	if err != nil {
		return prompts, err
	}
	prompts.SQLExtras = []string{
		"DATABASE SCHEMA:\n" + schema,
		"BUSINESS GLOSSARY:\n" + glossary,
	}

	return prompts, nil
}
