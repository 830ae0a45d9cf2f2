// Package api exposes the runtime over HTTP. Routing and error mapping
// live here; all domain behavior stays in the service packages.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/backoffice-suite/boar/pkg/agent"
	"github.com/backoffice-suite/boar/pkg/analysis"
	"github.com/backoffice-suite/boar/pkg/config"
	"github.com/backoffice-suite/boar/pkg/erp"
	"github.com/backoffice-suite/boar/pkg/llm"
	"github.com/backoffice-suite/boar/pkg/notify"
	"github.com/backoffice-suite/boar/pkg/otp"
	"github.com/backoffice-suite/boar/pkg/scheduler"
)

// Deps are the wired singletons the HTTP surface serves.
type Deps struct {
	Config    *config.Config
	ERP       *erp.Client
	LLM       *llm.Client
	Surface   *agent.Surface
	Analysis  *analysis.Service
	Scheduler *scheduler.Scheduler
	Auth      *otp.Authenticator
	Notifier  *notify.Notifier
}

// Server is the HTTP front of the runtime.
type Server struct {
	deps   Deps
	engine *gin.Engine
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds the router. Call Start to serve.
func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(deps.Config.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = deps.Config.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-API-Key")
	engine.Use(cors.New(corsCfg))

	s := &Server{
		deps:   deps,
		engine: engine,
		logger: slog.Default().With("component", "api-server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleRoot)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/health", s.handleHealth)

	authed := v1.Group("", apiKeyAuth(s.deps.Config.APIKey))
	{
		authed.POST("/agent/chat", s.handleChat)

		authed.POST("/analysis/overdue", s.handleAnalysisOverdue)
		authed.POST("/analysis/workload", s.handleAnalysisWorkload)
		authed.POST("/analysis/bottlenecks", s.handleAnalysisBottlenecks)
		authed.POST("/analysis/compliance", s.handleAnalysisCompliance)
		authed.POST("/analysis/contracts", s.handleAnalysisContracts)

		authed.GET("/reports", s.handleReportList)
		authed.GET("/reports/:id", s.handleReportGet)
		authed.POST("/reports/daily", s.handleReportDaily)
		authed.POST("/reports/weekly", s.handleReportWeekly)

		authed.GET("/scheduler/jobs", s.handleJobList)
		authed.POST("/scheduler/jobs/:id/trigger", s.handleJobTrigger)
		authed.POST("/scheduler/jobs/:id/pause", s.handleJobPause)
		authed.POST("/scheduler/jobs/:id/resume", s.handleJobResume)

		authed.POST("/auth/link", s.handleAuthLink)
		authed.POST("/auth/verify", s.handleAuthVerify)
		authed.POST("/auth/unlink", s.handleAuthUnlink)
		authed.GET("/auth/resolve/:external_id", s.handleAuthResolve)

		authed.POST("/tasks/:id/assign", s.handleTaskAssign)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.deps.Config.Host, s.deps.Config.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("HTTP server listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
