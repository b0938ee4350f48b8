package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memoryd/memoryd/internal/integrity"
	"github.com/memoryd/memoryd/internal/services"
)

type statisticsInput struct {
	WindowDays int `json:"window_days,omitempty" jsonschema:"Aggregation window in days (default 30)"`
}

type reloadConfigInput struct{}

type reloadConfigOutput struct {
	Reloaded bool `json:"reloaded" jsonschema:"True when overrides were applied"`
}

type integrityInput struct {
	AutoFix bool `json:"auto_fix,omitempty" jsonschema:"Repair violations as they are found"`
}

type healthInput struct{}

func (s *Server) registerAdminTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_memory_statistics",
		Description: "Counts by category, tool, confidence bucket, and day",
	}, instrument(s, "get_memory_statistics", func(ctx context.Context, args statisticsInput) (*services.Statistics, error) {
		return s.svc.GetMemoryStatistics(ctx, args.WindowDays)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "reload_config",
		Description: "Re-read preference-backed configuration overrides without a restart",
	}, instrument(s, "reload_config", func(ctx context.Context, _ reloadConfigInput) (reloadConfigOutput, error) {
		if err := s.svc.ReloadConfig(ctx); err != nil {
			return reloadConfigOutput{}, err
		}
		return reloadConfigOutput{Reloaded: true}, nil
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_memory_integrity",
		Description: "Scan the durable store for invariant violations, optionally repairing them",
	}, instrument(s, "check_memory_integrity", func(ctx context.Context, args integrityInput) (*integrity.Report, error) {
		return s.svc.CheckIntegrity(ctx, args.AutoFix)
	}))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_health_status",
		Description: "Overall and per-component health",
	}, instrument(s, "get_health_status", func(ctx context.Context, _ healthInput) (*services.Health, error) {
		return s.svc.CheckHealth(ctx), nil
	}))
}
