package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftsync/driftsync/internal/app"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/testutil"
	"github.com/driftsync/driftsync/internal/websocket"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	cfg := &config.Config{}
	a, err := app.New(tdb.Conn, cfg, tdb.Logger)
	require.NoError(t, err)

	hub := websocket.NewHub()
	go hub.Run()

	return NewServer(a, hub, cfg, testutil.NopLogger())
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"checks"`)
	assert.Contains(t, rec.Body.String(), `"database"`)
}

func TestListServers_Empty(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/servers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestAddServer_Unreachable(t *testing.T) {
	s := newTestServer(t)

	// A host with a space fails at request construction, before any retry.
	rec := doRequest(s, http.MethodPost, "/api/v1/servers",
		`{"name":"dead","baseUrl":"http://bad host","token":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

func TestAddMapping_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/mappings",
		`{"serverId":1,"libraryId":1,"plexPath":"","localPath":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMapping_NotFound(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodDelete, "/api/v1/mappings/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSync_UnknownServer(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodPost, "/api/v1/sync", `{"serverId":42}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFaults_EmptySummary(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/v1/faults", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)

	rec = doRequest(s, http.MethodGet, "/api/v1/faults?since=not-a-time", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
