// Memoryd is a locally hosted memory service for developer-AI conversations.
//
// It serves the same storage core over two transports: an MCP stdio server
// for tool integration and an HTTP API for direct clients.
//
// Usage:
//
//	# Serve the HTTP API (and background maintenance)
//	memoryd serve
//
//	# Serve the MCP tool contract on stdin/stdout
//	memoryd serve --stdio
//
//	# Configure via file (~/.config/memoryd/config.yaml) or environment
//	SERVER_HTTP_PORT=8080 memoryd serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	configPath string
	stdioMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "Locally hosted memory service for developer-AI conversations",
	Long: `memoryd stores, indexes, and retrieves developer-AI conversations:
it analyzes what is worth remembering, deduplicates and merges near-identical
memories, serves hybrid (semantic + keyword + recency) search, and learns
from approvals and rejections.`,
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the memory service",
	Long: `Start the memory service with its HTTP API and background maintenance
tasks. With --stdio, serve the MCP tool contract on stdin/stdout instead of
the HTTP API (log output moves to stderr so stdout stays protocol-clean).`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("memoryd %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/memoryd/config.yaml)")
	serveCmd.Flags().BoolVar(&stdioMode, "stdio", false, "serve MCP on stdin/stdout instead of HTTP")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
