package server

import (
	"github.com/chronoverse/chronoverse-api/internal/server/middleware"
	v1 "github.com/chronoverse/chronoverse-api/internal/server/v1"
	"github.com/chronoverse/chronoverse-api/internal/server/validator"
)

func (s *Server) SetupRoutes() {
	// 1. Global Middleware
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.ErrorHandler(s.logger))

	globalLimiter := middleware.NewRateLimiter(
		s.config.RateLimit.RequestsPerSecond,
		s.config.RateLimit.Burst,
		s.logger,
	)
	s.router.Use(globalLimiter.Middleware())

	// 2. Health Check (Public)
	healthHandler := v1.NewHealthHandler()
	s.router.GET("/health", healthHandler.Health)

	// 3. API V1 Group
	api := s.router.Group("/api/v1")
	api.Use(middleware.Identity())
	api.Use(middleware.PerIdentity(s.limiter))
	{
		poemHandler := v1.NewPoemHandler(
			s.service,
			s.repo.Usage(),
			validator.New(),
			s.config.Metering.FreeMinutesPerMonth,
			s.logger,
		)
		api.POST("/poem", poemHandler.Generate)

		tonesHandler := v1.NewTonesHandler()
		api.GET("/tones", tonesHandler.List)
	}
}
