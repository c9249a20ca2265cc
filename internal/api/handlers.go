package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/driftsync/driftsync/internal/app"
	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/health"
	"github.com/driftsync/driftsync/internal/ingest"
)

type errorResponse struct {
	Error string `json:"error"`
}

func httpError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, catalog.ErrValidation):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func pathID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}

func (s *Server) handleHealth(c echo.Context) error {
	rep := s.app.Health().Report(c.Request().Context())
	code := http.StatusOK
	if rep.Status == health.StatusFailing {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, rep)
}

func (s *Server) handleListServers(c echo.Context) error {
	servers, err := s.app.ListServers(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, servers)
}

type addServerRequest struct {
	Name    string `json:"name"`
	BaseURL string `json:"baseUrl"`
	Token   string `json:"token"`
	Default bool   `json:"default"`
}

func (s *Server) handleAddServer(c echo.Context) error {
	var req addServerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	srv, err := s.app.AddServer(c.Request().Context(), req.Name, req.BaseURL, req.Token, req.Default)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, srv)
}

func (s *Server) handleDeleteServer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid server id"})
	}
	if err := s.app.DeleteServer(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSetDefaultServer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid server id"})
	}
	if err := s.app.SetDefaultServer(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleTestServer(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid server id"})
	}
	if err := s.app.TestServer(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListLibraries(c echo.Context) error {
	var serverID *int64
	if raw := c.QueryParam("serverId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid serverId"})
		}
		serverID = &id
	}

	libs, err := s.app.ListLibraries(c.Request().Context(), serverID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, libs)
}

func (s *Server) handleDiscoverLibraries(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid server id"})
	}
	libs, err := s.app.DiscoverLibraries(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, libs)
}

type setLibrarySyncRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetLibrarySync(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid library id"})
	}
	var req setLibrarySyncRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := s.app.SetLibrarySyncEnabled(c.Request().Context(), id, req.Enabled); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListMappings(c echo.Context) error {
	serverID, err := strconv.ParseInt(c.QueryParam("serverId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid serverId"})
	}
	libraryID, err := strconv.ParseInt(c.QueryParam("libraryId"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid libraryId"})
	}

	mappings, err := s.app.ListPathMappings(c.Request().Context(), serverID, libraryID)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, mappings)
}

type addMappingRequest struct {
	ServerID  int64  `json:"serverId"`
	LibraryID int64  `json:"libraryId"`
	PlexPath  string `json:"plexPath"`
	LocalPath string `json:"localPath"`
}

func (s *Server) handleAddMapping(c echo.Context) error {
	var req addMappingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	id, err := s.app.AddPathMapping(c.Request().Context(), req.ServerID, req.LibraryID, req.PlexPath, req.LocalPath)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleDeleteMapping(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid mapping id"})
	}
	if err := s.app.DeletePathMapping(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type syncRequest struct {
	ServerID    int64    `json:"serverId"`
	LibraryKeys []string `json:"libraryKeys"`
	Kinds       []string `json:"kinds"`
	Mode        string   `json:"mode"`
	Limit       int      `json:"limit"`
	DryRun      bool     `json:"dryRun"`
}

// handleSync starts a sync pass in the background. Progress flows to the
// websocket hub as sync:event messages; the response only acknowledges
// the start.
func (s *Server) handleSync(c echo.Context) error {
	var req syncRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	kinds := make([]catalog.ItemKind, 0, len(req.Kinds))
	for _, k := range req.Kinds {
		kinds = append(kinds, catalog.ItemKind(k))
	}

	// Detached from the request context so the pass survives the response.
	events, err := s.app.SyncContent(context.Background(), app.SyncRequest{
		ServerID:    req.ServerID,
		LibraryKeys: req.LibraryKeys,
		Kinds:       kinds,
		Mode:        ingest.Mode(req.Mode),
		Limit:       req.Limit,
		DryRun:      req.DryRun,
	})
	if err != nil {
		return httpError(c, err)
	}

	go func() {
		for e := range events {
			if err := s.hub.Broadcast("sync:event", e); err != nil {
				s.logger.Warn().Err(err).Msg("cannot broadcast sync event")
			}
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleFaults(c echo.Context) error {
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid since timestamp"})
		}
		since = parsed
	}
	return c.JSON(http.StatusOK, s.app.FaultSummary(since))
}
