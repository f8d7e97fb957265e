package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apihttp "github.com/GriffinCanCode/EmbedOS/host/internal/api/http"
	"github.com/GriffinCanCode/EmbedOS/host/internal/api/middleware"
	"github.com/GriffinCanCode/EmbedOS/host/internal/content"
	"github.com/GriffinCanCode/EmbedOS/host/internal/content/web"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/attach"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/events"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/guest"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/permission"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/resize"
	"github.com/GriffinCanCode/EmbedOS/host/internal/domain/zoom"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/config"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/logging"
	"github.com/GriffinCanCode/EmbedOS/host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/EmbedOS/host/internal/ws"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server assembles the host: content engine, guest registry, attachment
// coordinator, permission broker, and the HTTP/WebSocket control plane.
type Server struct {
	cfg        *config.Config
	log        *logging.Logger
	router     *gin.Engine
	httpServer *http.Server

	engine     *web.Engine
	coord      *attach.Coordinator
	broker     *permission.Broker
	metrics    *monitoring.Metrics
	stopTicker func()
}

// NewServer builds a fully wired server from configuration. profiles may be
// nil for a default-deny permission policy with no partition grants.
func NewServer(cfg *config.Config, profiles *config.Profiles, log *logging.Logger) (*Server, error) {
	if log == nil {
		log = logging.NewDefault()
	}
	if profiles == nil {
		profiles = &config.Profiles{}
	}

	metrics := monitoring.NewMetrics()

	engineCfg := web.DefaultConfig()
	if cfg.Engine.UserAgent != "" {
		engineCfg.UserAgent = cfg.Engine.UserAgent
	}
	engineCfg.FetchTimeout = time.Duration(cfg.Engine.FetchTimeoutSec) * time.Second
	engineCfg.ScriptTimeout = time.Duration(cfg.Engine.ScriptTimeoutSec) * time.Second
	engineCfg.PoolSize = cfg.Engine.ScriptPoolSize
	engineCfg.FetchRatePerSec = cfg.Engine.FetchRatePerSec

	engine, err := web.NewEngine(engineCfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create content engine: %w", err)
	}

	registry := guest.NewRegistry(engine, log).WithMetrics(metrics)
	zoomCoord := zoom.NewCoordinator()
	router := events.NewRouter(zoomCoord, log).WithMetrics(metrics)
	negotiator := resize.NewNegotiator().WithMetrics(metrics)
	coord := attach.NewCoordinator(registry, router, zoomCoord, negotiator, log).WithMetrics(metrics)

	broker := permission.NewBroker(log).WithMetrics(metrics)
	installProfiles(broker, profiles, log)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	}
	r.Use(metrics.Middleware())

	handlers := apihttp.NewHandlers(coord, broker, metrics, log)
	handlers.Register(r)

	wsHandler := ws.NewHandler(coord, metrics, log)
	r.GET("/stream", wsHandler.HandleConnection)

	return &Server{
		cfg:     cfg,
		log:     log.Named("server"),
		router:  r,
		engine:  engine,
		coord:   coord,
		broker:  broker,
		metrics: metrics,
	}, nil
}

// installProfiles registers a broker handler per profiled partition that
// grants exactly the kinds the profile lists. Partitions without a profile
// keep the broker's default-deny.
func installProfiles(broker *permission.Broker, profiles *config.Profiles, log *logging.Logger) {
	for _, name := range profiles.PartitionNames() {
		partition := name
		broker.SetHandler(partition, func(_ content.Handle, kind permission.Kind, respond permission.Responder) {
			respond(profiles.Allowed(partition, string(kind)))
		})
		log.Info("permission profile installed", zap.String("partition", partition))
	}
}

// Coordinator exposes the attachment coordinator, mainly for tests.
func (s *Server) Coordinator() *attach.Coordinator { return s.coord }

// Run starts the lifecycle ticker and serves HTTP until the context is
// canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.stopTicker = s.coord.StartTicker(time.Duration(s.cfg.Lifecycle.TickMillis) * time.Millisecond)

	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("host listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown error", zap.Error(err))
	}
	s.Close()
	return nil
}

// Close tears down the ticker, coordinator, and content engine.
func (s *Server) Close() {
	if s.stopTicker != nil {
		s.stopTicker()
		s.stopTicker = nil
	}
	s.coord.Close()
	s.engine.Close()
	s.log.Info("host stopped")
}
