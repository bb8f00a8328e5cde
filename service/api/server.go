// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/viant/remediator/model/execution"
	"github.com/viant/remediator/service/approval"
	"github.com/viant/remediator/service/compiler"
	"github.com/viant/remediator/service/orchestrator"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
)

// Engine is the subset of the orchestrator served over HTTP.
type Engine interface {
	Start(ctx context.Context, request *orchestrator.StartRequest) (*execution.Execution, error)
	Status(ctx context.Context, executionID, organizationID string) (*execution.Execution, error)
	List(ctx context.Context, query *orchestrator.Query) (*orchestrator.Page, error)
	Cancel(ctx context.Context, executionID, actorID, reason string) (*execution.Execution, error)
	ProcessApproval(ctx context.Context, request *approval.Request) (*approval.Outcome, error)
}

// CancelRequest is the cancel body.
type CancelRequest struct {
	ActorID string `json:"actorId"`
	Reason  string `json:"reason"`
}

// Server holds the API dependencies.
type Server struct {
	engine      Engine
	metrics     http.Handler
	serviceName string
	logger      *zap.Logger
}

// Option customises the server
type Option func(s *Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics serves handler on /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) { s.metrics = handler }
}

// WithServiceName sets the name used on HTTP spans.
func WithServiceName(name string) Option {
	return func(s *Server) { s.serviceName = name }
}

// NewServer creates a server.
func NewServer(engine Engine, options ...Option) *Server {
	ret := &Server{engine: engine, serviceName: "remediator", logger: zap.NewNop()}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Echo returns an echo instance with middleware and routes installed.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware(s.serviceName))
	s.Routes(e)
	return e
}

// Routes registers API routes on e.
func (s *Server) Routes(e *echo.Echo) {
	group := e.Group("/api/v1")
	group.POST("/orgs/:org/executions", s.StartExecution)
	group.GET("/orgs/:org/executions", s.ListExecutions)
	group.GET("/orgs/:org/executions/:id", s.GetExecution)
	group.POST("/orgs/:org/executions/:id/cancel", s.CancelExecution)
	group.POST("/approvals/:handle", s.ProcessApproval)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// StartExecution triggers a workflow
// (POST /api/v1/orgs/:org/executions)
func (s *Server) StartExecution(c echo.Context) error {
	request := &orchestrator.StartRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	request.OrganizationID = c.Param("org")
	if request.WorkflowID == "" && request.Definition == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "workflowId is required")
	}
	anExecution, err := s.engine.Start(c.Request().Context(), request)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusAccepted, anExecution)
}

// ListExecutions returns a page of executions
// (GET /api/v1/orgs/:org/executions?page=&limit=&status=&workflowId=)
func (s *Server) ListExecutions(c echo.Context) error {
	query := &orchestrator.Query{
		OrganizationID: c.Param("org"),
		Status:         execution.Status(c.QueryParam("status")),
		WorkflowID:     c.QueryParam("workflowId"),
	}
	var err error
	if query.Page, err = intParam(c, "page"); err != nil {
		return err
	}
	if query.Limit, err = intParam(c, "limit"); err != nil {
		return err
	}
	page, err := s.engine.List(c.Request().Context(), query)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

// GetExecution returns execution status
// (GET /api/v1/orgs/:org/executions/:id)
func (s *Server) GetExecution(c echo.Context) error {
	anExecution, err := s.engine.Status(c.Request().Context(), c.Param("id"), c.Param("org"))
	if err != nil {
		return s.httpError(err)
	}
	if anExecution == nil {
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	}
	return c.JSON(http.StatusOK, anExecution)
}

// CancelExecution cancels an active execution
// (POST /api/v1/orgs/:org/executions/:id/cancel)
func (s *Server) CancelExecution(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	current, err := s.engine.Status(ctx, id, c.Param("org"))
	if err != nil {
		return s.httpError(err)
	}
	if current == nil {
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	}
	request := &CancelRequest{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	anExecution, err := s.engine.Cancel(ctx, id, request.ActorID, request.Reason)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, anExecution)
}

// ProcessApproval records an approver decision
// (POST /api/v1/approvals/:handle)
func (s *Server) ProcessApproval(c echo.Context) error {
	request := &approval.Request{}
	if err := c.Bind(request); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	request.Handle = c.Param("handle")
	if request.ApproverID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "approverId is required")
	}
	outcome, err := s.engine.ProcessApproval(c.Request().Context(), request)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (s *Server) httpError(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrTerminalExecution):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrExecutionNotFound),
		errors.Is(err, compiler.ErrDefinitionNotFound),
		errors.Is(err, approval.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, compiler.ErrInvalidDefinition):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	s.logger.Error("request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func intParam(c echo.Context, name string) (int, error) {
	value := c.QueryParam(name)
	if value == "" {
		return 0, nil
	}
	ret, err := strconv.Atoi(value)
	if err != nil || ret < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return ret, nil
}
