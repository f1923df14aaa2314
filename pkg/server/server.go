// Package server assembles the HTTP API around a Generator.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/clover/pkg/generator"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/routes/dataset"
	"github.com/Ramsey-B/clover/pkg/routes/generation"
	"github.com/Ramsey-B/clover/pkg/routes/health"
)

type Config struct {
	ServiceName       string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	MaxHeaderBytes    int
	AllowOrigins      []string
	AllowMethods      []string
}

// Catalog is what the API needs from the generation catalog.
type Catalog interface {
	dataset.Generations
	generation.Catalog
}

type Dependencies struct {
	Generator *generator.Generator
	Catalog   Catalog // optional
	Health    *health.Checker
	Logger    ectologger.Logger
}

// NewRouter builds the echo instance with middleware and every route.
func NewRouter(cfg Config, deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(deps.Logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.ServiceName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(deps.Logger))

	deps.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")

	var generations dataset.Generations
	if deps.Catalog != nil {
		generations = deps.Catalog
		generation.NewHandler(deps.Catalog).Register(api.Group("/generations"))
	}
	dataset.NewHandler(deps.Generator, generations).Register(api.Group("/datasets"))

	return e
}

// Server runs the API as a startup dependency.
type Server struct {
	cfg    Config
	echo   *echo.Echo
	health *health.Checker
	logger ectologger.Logger
	errs   chan error
}

func NewServer(cfg Config, deps Dependencies) *Server {
	return &Server{
		cfg:    cfg,
		echo:   NewRouter(cfg, deps),
		health: deps.Health,
		logger: deps.Logger,
		errs:   make(chan error, 1),
	}
}

func (s *Server) GetName() string {
	return "http"
}

func (s *Server) DependsOn() []string {
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start begins serving in the background and marks the service ready.
func (s *Server) Start(ctx context.Context) error {
	s.echo.Server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	go func() {
		s.logger.WithContext(ctx).WithField("port", s.cfg.Port).Info("Starting HTTP server")
		if err := s.echo.StartServer(s.echo.Server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
	}()

	s.health.SetReady(true)
	return nil
}

// Errors reports a server that stopped on its own.
func (s *Server) Errors() <-chan error {
	return s.errs
}

func (s *Server) Stop(ctx context.Context) error {
	s.health.SetReady(false)
	return s.echo.Shutdown(ctx)
}
