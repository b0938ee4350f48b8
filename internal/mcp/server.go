// Package mcp serves the memory core's tool-invocation contract over the
// Model Context Protocol stdio transport, calling internal services
// directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/services"
)

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "memoryd").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "memoryd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// Server exposes the memory service over MCP.
type Server struct {
	mcp     *mcp.Server
	svc     *services.Service
	metrics *Metrics
	logger  *zap.Logger
}

// NewServer creates an MCP server wrapping the memory service.
func NewServer(cfg *Config, svc *services.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if svc == nil {
		return nil, fmt.Errorf("memory service is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		svc:     svc,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// registerTools registers every tool of the contract, split by domain.
func (s *Server) registerTools() {
	s.registerMemoryTools()
	s.registerStorageTools()
	s.registerSessionTools()
	s.registerAdminTools()
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
