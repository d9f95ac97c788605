// Package main provides the CLI entry point for the quill request gateway.
//
// Quill routes natural-language requests to an LLM agent with per-route tool
// allow-lists and streams the answer over SSE. A second endpoint turns
// questions into validated, read-only SQL.
//
// # Basic Usage
//
// Start the server:
//
//	quill serve
//
// # Environment Variables
//
//   - DEEPSEEK_API_KEY: API key for the completion backend
//   - DEEPSEEK_BASE_URL: OpenAI-compatible endpoint (default: https://api.deepseek.com)
//   - TAVILY_API_KEY: API key for the web_search tool
//   - QUILL_FS_ROOTS: comma-separated directories the file tools may read
//   - QUILL_SERVERS_CONFIG: YAML file describing external MCP tool servers
//   - QUILL_ROUTE_TOOLS_<ROUTE>: comma-separated allow-list override for a route
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "quill",
		Short: "Quill - streaming LLM request gateway",
		Long: `Quill routes chat messages through an intent planner to tool-backed
agent loops and streams answers over SSE. It also generates validated,
read-only SQL from natural-language questions.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
	)

	return rootCmd
}
