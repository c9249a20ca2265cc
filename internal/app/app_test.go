package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/config"
	"github.com/driftsync/driftsync/internal/ingest"
	"github.com/driftsync/driftsync/internal/testutil"
)

// newTestApp stands up the full composition over a migrated database and
// a fake remote answering the given handler.
func newTestApp(t *testing.T, handler http.HandlerFunc) (*App, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tdb := testutil.NewTestDB(t)
	a, err := New(tdb.Conn, &config.Config{}, tdb.Logger)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, srv.URL
}

func TestSyncContent_NoLibrariesCompletesEmpty(t *testing.T) {
	a, baseURL := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status/sessions":
			fmt.Fprint(w, `{"MediaContainer":{"size":0}}`)
		case "/library/sections":
			fmt.Fprint(w, `{"MediaContainer":{"size":0}}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	srv, err := a.AddServer(ctx, "empty", baseURL, "tok", false)
	if err != nil {
		t.Fatalf("AddServer() error = %v", err)
	}

	events, err := a.SyncContent(ctx, SyncRequest{ServerID: srv.ID})
	if err != nil {
		t.Fatalf("SyncContent() error = %v, want complete event with count 0", err)
	}

	var got []ingest.Event
	for e := range events {
		got = append(got, e)
	}
	if len(got) != 1 {
		t.Fatalf("events = %+v, want a single complete event", got)
	}
	if got[0].Stage != ingest.StageComplete {
		t.Errorf("stage = %s, want complete", got[0].Stage)
	}
	if got[0].Stats == nil || got[0].Stats.Scanned != 0 || got[0].Stats.Errors != 0 {
		t.Errorf("stats = %+v, want all zero", got[0].Stats)
	}
}

func TestSyncContent_NoMatchingKindCompletesEmpty(t *testing.T) {
	a, baseURL := newTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status/sessions":
			fmt.Fprint(w, `{"MediaContainer":{"size":0}}`)
		case "/library/sections":
			fmt.Fprint(w, `{"MediaContainer":{"size":1,"Directory":[{"key":"1","title":"Movies","type":"movie"}]}}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	srv, err := a.AddServer(ctx, "movies-only", baseURL, "tok", false)
	if err != nil {
		t.Fatalf("AddServer() error = %v", err)
	}

	// Asking for episodes on a movie-only server filters every pass out.
	events, err := a.SyncContent(ctx, SyncRequest{
		ServerID:    srv.ID,
		LibraryKeys: []string{"1"},
		Kinds:       []catalog.ItemKind{catalog.ItemKindEpisode},
	})
	if err != nil {
		t.Fatalf("SyncContent() error = %v", err)
	}

	var last ingest.Event
	var count int
	for e := range events {
		last = e
		count++
	}
	if count != 1 || last.Stage != ingest.StageComplete {
		t.Errorf("events = %d ending in %s, want one complete event", count, last.Stage)
	}
}
