package server

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/chronoverse/chronoverse-api/internal/config"
	"github.com/chronoverse/chronoverse-api/internal/poem"
	"github.com/chronoverse/chronoverse-api/internal/ratelimit"
	"github.com/chronoverse/chronoverse-api/internal/store"
)

type Server struct {
	router  *gin.Engine
	config  *config.Config
	logger  *zap.Logger
	service *poem.Service
	repo    store.Repository
	limiter *ratelimit.Limiter
}

func New(cfg *config.Config, logger *zap.Logger, service *poem.Service,
	repo store.Repository, limiter *ratelimit.Limiter) *Server {

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(otelgin.Middleware("chronoverse-api"))

	s := &Server{
		router:  engine,
		config:  cfg,
		logger:  logger,
		service: service,
		repo:    repo,
		limiter: limiter,
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
