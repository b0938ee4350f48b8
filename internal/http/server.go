// Package http serves memoryd's REST surface: the same operations as the
// MCP tool contract, exposed under resource paths with a shared error shape.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/internal/services"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Server provides HTTP endpoints for memoryd.
type Server struct {
	echo    *echo.Echo
	svc     *services.Service
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// NewServer creates a new HTTP server over the memory service.
func NewServer(svc *services.Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("memory service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(httpMetrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		metrics: httpMetrics,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.POST("/reload-config", s.handleReloadConfig)

	e.POST("/context", s.handleStoreContext)
	e.POST("/context/search", s.handleSearch)
	e.POST("/context/enhanced", s.handleEnhancedContext)
	e.POST("/context/analyze", s.handleAnalyze)
	e.POST("/context/duplicates", s.handleCheckDuplicates)
	e.POST("/history", s.handleHistory)

	e.GET("/conversations", s.handleBrowseConversations)
	e.GET("/conversations/:id", s.handleGetConversation)
	e.GET("/conversations/:id/related", s.handleRelated)
	e.PATCH("/conversations/:id", s.handleEditConversation)
	e.DELETE("/conversations/:id", s.handleDeleteConversation)

	e.POST("/suggestions", s.handleSuggest)
	e.POST("/suggestions/:id/approve", s.handleApprove)
	e.POST("/suggestions/:id/reject", s.handleReject)

	e.GET("/projects", s.handleListProjects)
	e.POST("/projects", s.handleCreateProject)
	e.GET("/projects/:id", s.handleGetProject)
	e.GET("/projects/:id/context", s.handleProjectContext)
	e.DELETE("/projects/:id", s.handleDeleteProject)

	e.GET("/preferences", s.handleListPreferences)
	e.PUT("/preferences/:key", s.handleSetPreference)
	e.DELETE("/preferences/:key", s.handleDeletePreference)

	e.GET("/statistics", s.handleStatistics)
	e.POST("/integrity", s.handleIntegrity)
}

// Start begins serving; it blocks until Shutdown or failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// writeError maps the shared error taxonomy onto HTTP status codes,
// returning the structured {kind, message, detail} body. Stack traces never
// leak: the body carries only the taxonomy fields.
func writeError(c echo.Context, err error) error {
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) {
		apiErr = apierrors.Internal("internal error", nil)
	}

	status := http.StatusInternalServerError
	switch apiErr.Kind {
	case apierrors.KindInvalidArgument:
		status = http.StatusBadRequest
	case apierrors.KindNotFound:
		status = http.StatusNotFound
	case apierrors.KindConflict, apierrors.KindInvalidTransition:
		status = http.StatusConflict
	case apierrors.KindBackendUnavailable, apierrors.KindServiceDegraded:
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, errorResponse{
		Kind:    string(apiErr.Kind),
		Message: apiErr.Message,
		Detail:  apiErr.Detail,
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	health := s.svc.CheckHealth(c.Request().Context())
	status := http.StatusOK
	if health.OverallStatus == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, health)
}

func (s *Server) handleReloadConfig(c echo.Context) error {
	if err := s.svc.ReloadConfig(c.Request().Context()); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"reloaded": true})
}

func (s *Server) handleStoreContext(c echo.Context) error {
	var req storeContextRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	result, err := s.svc.StoreContext(c.Request().Context(), services.StoreContextRequest{
		Content:   req.Content,
		ToolName:  req.ToolName,
		ProjectID: req.ProjectID,
		Metadata:  req.Metadata,
		Tags:      req.Tags,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	results, err := s.svc.SearchMemory(c.Request().Context(), services.SearchRequest{
		Query:          req.Query,
		Limit:          req.Limit,
		SearchType:     req.SearchType,
		Category:       req.Category,
		AutoStoredOnly: req.AutoStoredOnly,
		MinConfidence:  req.MinConfidence,
		ProjectID:      req.ProjectID,
		ToolName:       req.ToolName,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleEnhancedContext(c echo.Context) error {
	var req struct {
		Query      string   `json:"query"`
		Categories []string `json:"categories,omitempty"`
		ProjectID  string   `json:"project_id,omitempty"`
		Limit      int      `json:"limit,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	out, err := s.svc.GetEnhancedContext(c.Request().Context(), req.Query, req.Categories, req.ProjectID, req.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req struct {
		UserMessage string         `json:"user_message"`
		AIResponse  string         `json:"ai_response"`
		Context     map[string]any `json:"context,omitempty"`
		ToolName    string         `json:"tool_name,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	result, err := s.svc.AnalyzeConversation(c.Request().Context(), req.UserMessage, req.AIResponse, req.Context, req.ToolName)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleCheckDuplicates(c echo.Context) error {
	var req struct {
		Content   string         `json:"content"`
		Metadata  map[string]any `json:"metadata,omitempty"`
		ToolName  string         `json:"tool_name,omitempty"`
		ProjectID string         `json:"project_id,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	candidates, err := s.svc.CheckForDuplicates(c.Request().Context(), req.Content, req.Metadata, req.ToolName, req.ProjectID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"candidates": candidates, "count": len(candidates)})
}

func (s *Server) handleHistory(c echo.Context) error {
	var req historyRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	convs, err := s.svc.GetConversationHistory(c.Request().Context(), req.ToolName, req.Hours, req.Limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
}

func (s *Server) handleBrowseConversations(c echo.Context) error {
	hours, _ := strconv.Atoi(c.QueryParam("hours"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	if category := c.QueryParam("category"); category != "" {
		convs, err := s.svc.BrowseMemoriesByCategory(c.Request().Context(), category, limit)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
	}

	convs, err := s.svc.BrowseRecentMemories(c.Request().Context(), hours, limit, c.QueryParam("tool"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
}

func (s *Server) handleGetConversation(c echo.Context) error {
	conv, err := s.svc.Repository().GetConversation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleRelated(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	results, err := s.svc.FindRelatedContext(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, searchResponse{Results: results, Count: len(results)})
}

func (s *Server) handleEditConversation(c echo.Context) error {
	var req editConversationRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	conv, err := s.svc.EditMemory(c.Request().Context(), services.EditMemoryRequest{
		MemoryID:   c.Param("id"),
		NewContent: req.NewContent,
		AddTags:    req.AddTags,
		RemoveTags: req.RemoveTags,
		Category:   req.Category,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(c echo.Context) error {
	confirm := c.QueryParam("confirm") == "true"
	if err := s.svc.DeleteMemory(c.Request().Context(), c.Param("id"), confirm); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSuggest(c echo.Context) error {
	var req suggestRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	result, err := s.svc.SuggestMemoryStorage(c.Request().Context(), req.UserMessage, req.AIResponse, req.ToolName, req.AutoApprove)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleApprove(c echo.Context) error {
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	convID, err := s.svc.ApproveSuggestion(c.Request().Context(), c.Param("id"), req.ModifiedContent, req.Tags)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"conversation_id": convID, "suggestion_id": c.Param("id")})
}

func (s *Server) handleReject(c echo.Context) error {
	var req rejectRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	if err := s.svc.RejectSuggestion(c.Request().Context(), c.Param("id"), req.Reason); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"rejected": true, "suggestion_id": c.Param("id")})
}

func (s *Server) handleListProjects(c echo.Context) error {
	projects, err := s.svc.Repository().ListProjects(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": projects, "count": len(projects)})
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	project := &model.Project{Name: req.Name, Path: req.Path, Description: req.Description}
	if err := s.svc.Repository().CreateProject(c.Request().Context(), project); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, project)
}

func (s *Server) handleGetProject(c echo.Context) error {
	project, err := s.svc.Repository().GetProject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, project)
}

func (s *Server) handleProjectContext(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	convs, err := s.svc.Repository().ByProject(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": convs, "count": len(convs)})
}

func (s *Server) handleDeleteProject(c echo.Context) error {
	if err := s.svc.Repository().DeleteProject(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListPreferences(c echo.Context) error {
	category := c.QueryParam("category")
	if category == "" {
		category = "general"
	}
	prefs, err := s.svc.Repository().ListPreferencesByCategory(c.Request().Context(), category)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"preferences": prefs, "count": len(prefs)})
}

func (s *Server) handleSetPreference(c echo.Context) error {
	var req setPreferenceRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid request body"))
	}
	category := req.Category
	if category == "" {
		category = "general"
	}
	if err := s.svc.Repository().SetPreference(c.Request().Context(), c.Param("key"), category, req.Value); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"key": c.Param("key"), "category": category})
}

func (s *Server) handleDeletePreference(c echo.Context) error {
	if err := s.svc.Repository().DeletePreference(c.Request().Context(), c.Param("key")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleStatistics(c echo.Context) error {
	windowDays, _ := strconv.Atoi(c.QueryParam("window_days"))
	stats, err := s.svc.GetMemoryStatistics(c.Request().Context(), windowDays)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleIntegrity(c echo.Context) error {
	autoFix := c.QueryParam("auto_fix") == "true"
	report, err := s.svc.CheckIntegrity(c.Request().Context(), autoFix)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
