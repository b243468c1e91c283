package hub

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/rf2bridge/internal/bridge"
	"github.com/tphakala/rf2bridge/internal/buildinfo"
	"github.com/tphakala/rf2bridge/internal/logger"
	"github.com/tphakala/rf2bridge/internal/publish"
)

const shutdownTimeout = 5 * time.Second

// StatusReporter is implemented by bridge.Supervisor.
type StatusReporter interface {
	Status() bridge.Status
}

// Config holds the server wiring. Metrics may be nil to leave /metrics out.
type Config struct {
	Listen  string
	Metrics http.Handler
}

// Server is the echo application behind the hub.
type Server struct {
	echo   *echo.Echo
	config Config
	hub    *Hub
	latest *publish.LatestCache
	status StatusReporter
}

type statusResponse struct {
	bridge.Status
	Clients int    `json:"clients"`
	Version string `json:"version"`
}

// NewServer builds the routes:
//
//	GET /ws               websocket feed of every message
//	GET /api/v1/snapshot  latest message, 204 when none is fresh
//	GET /api/v1/status    supervisor state and session
//	GET /healthz
//	GET /metrics          when cfg.Metrics is set
func NewServer(cfg Config, hub *Hub, latest *publish.LatestCache, status StatusReporter) *Server {
	s := &Server{
		echo:   echo.New(),
		config: cfg,
		hub:    hub,
		latest: latest,
		status: status,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			getLogger().Debug("http request",
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency))
			return nil
		},
	}))

	s.echo.GET("/ws", hub.HandleWebSocket)
	api := s.echo.Group("/api/v1")
	api.GET("/snapshot", s.handleSnapshot)
	api.GET("/status", s.handleStatus)
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if cfg.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) handleSnapshot(c echo.Context) error {
	msg, ok := s.latest.Latest()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := statusResponse{
		Clients: s.hub.Clients(),
		Version: buildinfo.Current().GetVersion(),
	}
	if s.status != nil {
		resp.Status = s.status.Status()
	}
	return c.JSON(http.StatusOK, resp)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down the server
// and disconnects all websocket subscribers.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	errCh := make(chan error, 1)
	go func() {
		getLogger().Info("web server starting", logger.String("address", ln.Addr().String()))
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	getLogger().Info("stopping web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.echo.Shutdown(shutdownCtx)
	s.hub.Close()
	<-errCh
	return err
}
