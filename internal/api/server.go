// Package api exposes the facade over HTTP: server and library
// management, path mappings, sync control and a websocket event feed.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/app"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/websocket"
)

// Server handles HTTP requests for the driftsync API.
type Server struct {
	echo   *echo.Echo
	app    *app.App
	hub    *websocket.Hub
	cfg    *config.Config
	logger zerolog.Logger
}

// NewServer creates a new API server instance.
func NewServer(a *app.App, hub *websocket.Hub, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		app:    a,
		hub:    hub,
		cfg:    cfg,
		logger: logger.With().Str("component", "api").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/ws", s.hub.HandleWebSocket)

	v1 := s.echo.Group("/api/v1")

	v1.GET("/servers", s.handleListServers)
	v1.POST("/servers", s.handleAddServer)
	v1.DELETE("/servers/:id", s.handleDeleteServer)
	v1.POST("/servers/:id/default", s.handleSetDefaultServer)
	v1.POST("/servers/:id/test", s.handleTestServer)

	v1.GET("/libraries", s.handleListLibraries)
	v1.POST("/servers/:id/libraries/discover", s.handleDiscoverLibraries)
	v1.PUT("/libraries/:id/sync", s.handleSetLibrarySync)

	v1.GET("/mappings", s.handleListMappings)
	v1.POST("/mappings", s.handleAddMapping)
	v1.DELETE("/mappings/:id", s.handleDeleteMapping)

	v1.POST("/sync", s.handleSync)
	v1.GET("/faults", s.handleFaults)
}

// Start begins listening on the given address and blocks.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("api server starting")
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
