package importer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/plex"
)

func TestBuild_UnknownProtocol(t *testing.T) {
	_, err := Build("emby", "http://localhost", "tok", zerolog.Nop(), nil)
	if err == nil || !strings.Contains(err.Error(), "unknown protocol") {
		t.Fatalf("Build() error = %v, want unknown protocol", err)
	}
}

func TestNames_IncludesPlex(t *testing.T) {
	names := Names()
	for _, n := range names {
		if n == "plex" {
			return
		}
	}
	t.Errorf("Names() = %v, want plex registered", names)
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Register() of a duplicate name did not panic")
		}
	}()
	Register("plex", func(string, string, zerolog.Logger, plex.RetryPolicy) Importer {
		return nil
	})
}

func TestBuild_PlexServesImporterSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/status/sessions":
			fmt.Fprint(w, `{"MediaContainer":{"size":0}}`)
		case r.URL.Path == "/library/sections":
			fmt.Fprint(w, `{"MediaContainer":{"size":1,"Directory":[{"key":"1","title":"Movies","type":"movie"}]}}`)
		case strings.HasSuffix(r.URL.Path, "/all"):
			fmt.Fprint(w, `{"MediaContainer":{"size":1,"totalSize":1,"Metadata":[{"ratingKey":"100","type":"movie","title":"Alien"}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	imp, err := Build("plex", srv.URL, "tok", zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	ctx := context.Background()

	if err := imp.TestConnection(ctx); err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}

	dirs, err := imp.Discover(ctx)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(dirs) != 1 || dirs[0].Key != "1" {
		t.Fatalf("Discover() = %+v, want one movie section", dirs)
	}

	it := imp.Iterate("1", plex.TypeMovie, plex.ItemOptions{})
	if !it.Next(ctx) {
		t.Fatalf("Next() = false, err = %v", it.Err())
	}
	if got := it.Item().Title; got != "Alien" {
		t.Errorf("Item().Title = %q, want Alien", got)
	}
	if it.Next(ctx) {
		t.Error("Next() = true after the only item")
	}
	if err := it.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}
