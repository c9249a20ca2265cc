package pathmap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/testutil"
)

// fakeSource serves mappings from memory and counts loads.
type fakeSource struct {
	mappings []catalog.PathMapping
	loads    int
}

func (f *fakeSource) GetPathMappings(ctx context.Context, serverID, libraryID int64) ([]catalog.PathMapping, error) {
	f.loads++
	return f.mappings, nil
}

func newTestMapper(mappings ...catalog.PathMapping) (*Mapper, *fakeSource) {
	src := &fakeSource{mappings: mappings}
	m := New(src, testutil.NopLogger())
	return m, src
}

func TestResolve_SingleMapping(t *testing.T) {
	m, _ := newTestMapper(catalog.PathMapping{
		ServerID: 1, LibraryID: 1, PlexPath: "/mnt/media/movies", LocalPath: "D:/Movies",
	})

	got, ok, err := m.Resolve(context.Background(), 1, 1, "/mnt/media/movies/Alien (1979)/Alien.mkv")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !ok {
		t.Fatal("Resolve() ok = false, want match")
	}
	want := filepath.Join("D:/Movies", "Alien (1979)", "Alien.mkv")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	m, _ := newTestMapper(
		catalog.PathMapping{ServerID: 1, LibraryID: 1, PlexPath: "/mnt/media", LocalPath: "D:/Media"},
		catalog.PathMapping{ServerID: 1, LibraryID: 1, PlexPath: "/mnt/media/movies", LocalPath: "D:/Movies"},
	)

	got, ok, err := m.Resolve(context.Background(), 1, 1, "/mnt/media/movies/a.mkv")
	if err != nil || !ok {
		t.Fatalf("Resolve() = %v, %v, want match", ok, err)
	}
	want := filepath.Join("D:/Movies", "a.mkv")
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolve_TieFirstLoadedWins(t *testing.T) {
	m, _ := newTestMapper(
		catalog.PathMapping{ServerID: 1, LibraryID: 1, PlexPath: "/mnt/aaa", LocalPath: "/first"},
		catalog.PathMapping{ServerID: 1, LibraryID: 1, PlexPath: "/mnt/bbb", LocalPath: "/second"},
	)

	got, ok, err := m.Resolve(context.Background(), 1, 1, "/mnt/aaa/x.mkv")
	if err != nil || !ok {
		t.Fatalf("Resolve() = %v, %v, want match", ok, err)
	}
	if got != filepath.Join("/first", "x.mkv") {
		t.Errorf("Resolve() = %q, want first-loaded mapping", got)
	}
}

func TestResolve_SegmentBoundary(t *testing.T) {
	m, _ := newTestMapper(catalog.PathMapping{
		ServerID: 1, LibraryID: 1, PlexPath: "/mnt/media", LocalPath: "/local",
	})

	_, ok, err := m.Resolve(context.Background(), 1, 1, "/mnt/mediafiles/x.mkv")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ok {
		t.Error("Resolve() matched across a path segment boundary")
	}
}

func TestResolve_ExactPrefix(t *testing.T) {
	m, _ := newTestMapper(catalog.PathMapping{
		ServerID: 1, LibraryID: 1, PlexPath: "/mnt/media/", LocalPath: "/local",
	})

	got, ok, err := m.Resolve(context.Background(), 1, 1, "/mnt/media")
	if err != nil || !ok {
		t.Fatalf("Resolve() = %v, %v, want match", ok, err)
	}
	if got != "/local" {
		t.Errorf("Resolve() = %q, want bare local prefix", got)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	m, _ := newTestMapper(catalog.PathMapping{
		ServerID: 1, LibraryID: 1, PlexPath: "/mnt/media", LocalPath: "/local",
	})

	_, ok, err := m.Resolve(context.Background(), 1, 1, "/srv/other/x.mkv")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ok {
		t.Error("Resolve() ok = true, want no match")
	}
}

func TestResolve_WindowsStylePrefixes(t *testing.T) {
	m, _ := newTestMapper(catalog.PathMapping{
		ServerID: 1, LibraryID: 1, PlexPath: `\\nas\Media\Movies`, LocalPath: "/mnt/movies",
	})
	m.SetCaseInsensitive(true)

	got, ok, err := m.Resolve(context.Background(), 1, 1, `\\NAS\media\movies\a.mkv`)
	if err != nil || !ok {
		t.Fatalf("Resolve() = %v, %v, want case-insensitive match", ok, err)
	}
	if got != filepath.Join("/mnt/movies", "a.mkv") {
		t.Errorf("Resolve() = %q, want %q", got, filepath.Join("/mnt/movies", "a.mkv"))
	}
}

func TestResolve_CaseInsensitiveMultibytePrefix(t *testing.T) {
	// U+0130 lowercases to a shorter byte sequence, so the suffix cut
	// must track the matched runes, not the configured prefix length.
	m, _ := newTestMapper(catalog.PathMapping{
		ServerID: 1, LibraryID: 1, PlexPath: "/mnt/i", LocalPath: "/local",
	})
	m.SetCaseInsensitive(true)

	got, ok, err := m.Resolve(context.Background(), 1, 1, "/mnt/İ/x.mkv")
	if err != nil || !ok {
		t.Fatalf("Resolve() = %v, %v, want folded match", ok, err)
	}
	if want := filepath.Join("/local", "x.mkv"); got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestResolve_CachesUntilInvalidated(t *testing.T) {
	m, src := newTestMapper(catalog.PathMapping{
		ServerID: 1, LibraryID: 1, PlexPath: "/mnt/media", LocalPath: "/local",
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := m.Resolve(ctx, 1, 1, "/mnt/media/x.mkv"); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if src.loads != 1 {
		t.Errorf("source loads = %d, want 1 (cached)", src.loads)
	}

	m.Invalidate(1, 1)
	if _, _, err := m.Resolve(ctx, 1, 1, "/mnt/media/x.mkv"); err != nil {
		t.Fatalf("Resolve() after invalidate error = %v", err)
	}
	if src.loads != 2 {
		t.Errorf("source loads = %d, want 2 (reloaded)", src.loads)
	}
}
