// Package api is the HTTP surface of the daemon: the decision webhook and
// widget, the monitoring dashboard JSON API, auth and admin endpoints,
// health probes and the Prometheus scrape target.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
)

// DecisionApplier is the decision use-case consumed by the webhook, the
// widget submit and nothing else; satisfied by *services.DecisionService.
type DecisionApplier interface {
	ApplyDecision(ctx context.Context, req services.DecisionRequest) (*models.Case, error)
}

// MonitoringReader serves the dashboard views.
type MonitoringReader interface {
	ListCases(ctx context.Context, filters models.CaseListFilters) (*models.CaseListPage, error)
	GetCaseDetail(ctx context.Context, caseID uuid.UUID) (*models.CaseDetail, error)
}

// Authenticator issues and resolves bearer tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string, ip, userAgent *string) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// AdminSurface covers prompt and user management.
type AdminSurface interface {
	ListPromptVersions(ctx context.Context) ([]models.PromptVersionInfo, error)
	GetPromptVersion(ctx context.Context, name string, version int) (*models.PromptTemplate, error)
	ActivatePromptVersion(ctx context.Context, name string, version int, actor *models.User) (*models.PromptTemplate, error)
	CreatePromptVersion(ctx context.Context, name string, sourceVersion int, content string, actor *models.User) (*models.PromptTemplate, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, email, password string, role models.Role, actor *models.User) (*models.User, error)
	BlockUser(ctx context.Context, targetID uuid.UUID, actor *models.User) (*models.User, error)
	ActivateUser(ctx context.Context, targetID uuid.UUID, actor *models.User) (*models.User, error)
	RemoveUser(ctx context.Context, targetID uuid.UUID, actor *models.User) (*models.User, error)
	ListDeadJobs(ctx context.Context, limit int) ([]models.Job, error)
}

// WidgetReader loads the Room-2 widget snapshot for the bootstrap call.
type WidgetReader interface {
	WidgetSnapshot(ctx context.Context, caseID uuid.UUID) (*models.Room2WidgetSnapshot, error)
}

// Pinger is the readiness probe dependency; satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles everything the server serves.
type Deps struct {
	Decisions  DecisionApplier
	Monitoring MonitoringReader
	Auth       Authenticator
	Admin      AdminSurface
	Widget     WidgetReader
	DB         Pinger

	// Gatherer backs GET /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer

	HmacSecret string
	ListenAddr string
}

// Server is the configured HTTP server.
type Server struct {
	deps   Deps
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds the router. Panics when a required dependency is missing.
func NewServer(deps Deps) *Server {
	if deps.Decisions == nil || deps.Monitoring == nil || deps.Auth == nil ||
		deps.Admin == nil || deps.Widget == nil || deps.DB == nil {
		panic("api.NewServer: all dependencies must be non-nil")
	}
	if deps.HmacSecret == "" {
		panic("api.NewServer: HmacSecret must not be empty")
	}

	s := &Server{
		deps:   deps,
		logger: slog.With("component", "api"),
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(s.requestLogger(), s.recovery())
	s.registerRoutes(engine)
	s.engine = engine
	s.http = &http.Server{
		Addr:              deps.ListenAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(engine *gin.Engine) {
	engine.GET("/healthz", s.healthz)
	engine.GET("/readyz", s.readyz)
	if s.deps.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer,
			promhttp.HandlerOpts{})))
	}

	engine.POST("/auth/login", s.login)
	engine.POST("/callbacks/triage-decision", s.decisionWebhook)

	widget := engine.Group("/widget/room2")
	widget.GET("", s.widgetShell)
	widget.POST("/bootstrap", s.requireRole(models.RoleAdmin), s.widgetBootstrap)
	widget.POST("/submit", s.requireRole(models.RoleAdmin), s.widgetSubmit)

	cases := engine.Group("/api/cases", s.requireRole(models.RoleReader, models.RoleAdmin))
	cases.GET("", s.listCases)
	cases.GET("/:id", s.getCaseDetail)

	admin := engine.Group("/api/admin", s.requireRole(models.RoleAdmin))
	admin.GET("/prompts", s.listPrompts)
	admin.GET("/prompts/:name/:version", s.getPromptVersion)
	admin.POST("/prompts/:name/activate", s.activatePrompt)
	admin.POST("/prompts/:name", s.createPromptVersion)
	admin.GET("/users", s.listUsers)
	admin.POST("/users", s.createUser)
	admin.POST("/users/:id/block", s.blockUser)
	admin.POST("/users/:id/activate", s.activateUser)
	admin.POST("/users/:id/remove", s.removeUser)
	admin.GET("/jobs/dead", s.listDeadJobs)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
