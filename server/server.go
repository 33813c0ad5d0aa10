package server

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/liveview/errors"
	"github.com/kbukum/liveview/logger"
	"github.com/kbukum/liveview/resilience"
	"github.com/kbukum/liveview/server/middleware"
)

// Server is the HTTP front of a liveview service: a Gin engine served over
// HTTP/1.1 and h2c so event streams multiplex on one connection.
type Server struct {
	httpServer *http.Server
	h2         *http2.Server
	engine     *gin.Engine
	config     Config
	log        *logger.Logger
	listener   net.Listener
	serving    atomic.Bool
}

// New creates a Server with the standard middleware stack applied.
func New(cfg Config, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("server")

	engine := gin.New()
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Telemetry(),
		middleware.BodySizeLimit(cfg.MaxBodyBytes),
		middleware.RequestLogger(log),
	)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          cfg.IdleTimeout,
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      h2c.NewHandler(engine, h2s),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		h2:     h2s,
		engine: engine,
		config: cfg,
		log:    log,
	}
}

// Engine returns the Gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ControlLimiter builds the limiter guarding state-changing routes.
func (s *Server) ControlLimiter() gin.HandlerFunc {
	return middleware.RateLimit(resilience.NewRateLimiter(resilience.RateLimiterConfig{
		Name: "control",
		Rate: s.config.ControlRate,
	}))
}

// StreamLimiter builds the bulkhead guarding long-lived stream routes.
func (s *Server) StreamLimiter() gin.HandlerFunc {
	return middleware.Bulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
		Name:          "streams",
		MaxConcurrent: s.config.MaxStreams,
	}))
}

// Start binds the port and serves in a goroutine. It returns once the
// listener is bound.
func (s *Server) Start(ctx context.Context) error {
	tlsCfg, err := s.config.TLS.Build()
	if err != nil {
		return errors.Validation("server tls").WithCause(err)
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return errors.Unavailable("listener "+s.httpServer.Addr).WithCause(err)
	}
	if tlsCfg != nil {
		s.httpServer.TLSConfig = tlsCfg
		// advertises h2 over ALPN
		if err := http2.ConfigureServer(s.httpServer, s.h2); err != nil {
			_ = listener.Close()
			return errors.Internal(err)
		}
		listener = tls.NewListener(listener, s.httpServer.TLSConfig)
	}
	s.listener = listener
	s.serving.Store(true)

	go func() {
		defer s.serving.Store(false)
		if err := s.httpServer.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", logger.ErrorFields("serve", err))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", listener.Addr().String(), "tls", tlsCfg != nil))
	return nil
}

// Stop gracefully shuts the server down. Open event streams end when their
// request contexts are canceled.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown error", logger.ErrorFields("shutdown", err))
		return errors.Timeout("server shutdown").WithCause(err)
	}
	s.log.Info("HTTP server shut down")
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Serving reports whether the listener is accepting connections.
func (s *Server) Serving() bool {
	return s.serving.Load()
}
