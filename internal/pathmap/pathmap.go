// Package pathmap resolves server-visible media paths to local paths via
// longest-prefix mappings. Remote paths are POSIX; local paths are
// platform-native. All normalization lives here.
package pathmap

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/catalog"
)

// MappingSource supplies the mappings for a server/library pair. The
// catalog store satisfies it.
type MappingSource interface {
	GetPathMappings(ctx context.Context, serverID, libraryID int64) ([]catalog.PathMapping, error)
}

type cacheKey struct {
	serverID  int64
	libraryID int64
}

// mapping is a normalized, resolution-ready prefix pair.
type mapping struct {
	remotePrefix string
	localPrefix  string
}

// Mapper converts remote paths to local paths with a read-through cache.
type Mapper struct {
	source          MappingSource
	logger          zerolog.Logger
	caseInsensitive bool

	mu    sync.RWMutex
	cache map[cacheKey][]mapping
}

// New creates a Mapper. Prefix comparison is case-insensitive on hosts
// whose filesystems are, i.e. Windows.
func New(source MappingSource, logger zerolog.Logger) *Mapper {
	return &Mapper{
		source:          source,
		logger:          logger.With().Str("component", "pathmap").Logger(),
		caseInsensitive: runtime.GOOS == "windows",
		cache:           make(map[cacheKey][]mapping),
	}
}

// SetCaseInsensitive overrides the host-derived comparison mode.
func (m *Mapper) SetCaseInsensitive(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caseInsensitive = v
}

// Resolve maps a remote path to a local one. The second return is false
// when no prefix matches; callers treat that as a validation failure, not
// a mapper error.
func (m *Mapper) Resolve(ctx context.Context, serverID, libraryID int64, remotePath string) (string, bool, error) {
	mappings, err := m.load(ctx, serverID, libraryID)
	if err != nil {
		return "", false, err
	}

	remote := normalize(remotePath)

	for _, mp := range mappings {
		suffix, ok := trimPrefix(remote, mp.remotePrefix, m.caseInsensitive)
		if !ok {
			continue
		}
		// Only match on a path-segment boundary.
		if suffix != "" && !strings.HasPrefix(suffix, "/") {
			continue
		}
		suffix = strings.TrimPrefix(suffix, "/")
		if suffix == "" {
			return mp.localPrefix, true, nil
		}
		return filepath.Join(mp.localPrefix, filepath.FromSlash(suffix)), true, nil
	}

	return "", false, nil
}

// Invalidate drops the cached mappings for a server/library pair. Callers
// invoke it after inserting or removing a mapping.
func (m *Mapper) Invalidate(serverID, libraryID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, cacheKey{serverID, libraryID})
}

// InvalidateAll drops the whole cache.
func (m *Mapper) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[cacheKey][]mapping)
}

// load returns the sorted mappings for a pair, consulting the cache first.
func (m *Mapper) load(ctx context.Context, serverID, libraryID int64) ([]mapping, error) {
	key := cacheKey{serverID, libraryID}

	m.mu.RLock()
	cached, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	rows, err := m.source.GetPathMappings(ctx, serverID, libraryID)
	if err != nil {
		return nil, err
	}

	mappings := make([]mapping, 0, len(rows))
	for _, r := range rows {
		mappings = append(mappings, mapping{
			remotePrefix: normalize(r.PlexPath),
			localPrefix:  r.LocalPath,
		})
	}

	// Longest prefix wins; the stable sort keeps insertion order on ties
	// so the first mapping loaded wins deterministically.
	sort.SliceStable(mappings, func(i, j int) bool {
		return len(mappings[i].remotePrefix) > len(mappings[j].remotePrefix)
	})

	m.mu.Lock()
	m.cache[key] = mappings
	m.mu.Unlock()

	m.logger.Debug().
		Int64("serverId", serverID).
		Int64("libraryId", libraryID).
		Int("mappings", len(mappings)).
		Msg("path mappings loaded")

	return mappings, nil
}

// trimPrefix removes prefix from s and reports whether it matched. The
// fold-insensitive mode compares rune by rune, so the suffix is cut at
// the right byte even when lowercasing changes a rune's encoded length.
func trimPrefix(s, prefix string, fold bool) (string, bool) {
	if !fold {
		if !strings.HasPrefix(s, prefix) {
			return "", false
		}
		return s[len(prefix):], true
	}
	for len(prefix) > 0 {
		pr, psz := utf8.DecodeRuneInString(prefix)
		sr, ssz := utf8.DecodeRuneInString(s)
		if ssz == 0 {
			return "", false
		}
		if sr != pr && unicode.ToLower(sr) != unicode.ToLower(pr) {
			return "", false
		}
		prefix = prefix[psz:]
		s = s[ssz:]
	}
	return s, true
}

// normalize converts backslashes to forward slashes and strips trailing
// slashes.
func normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
