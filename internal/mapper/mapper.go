// Package mapper translates remote item metadata into catalog records.
// Mapping is pure: no I/O, no database, no clock.
package mapper

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/plex"
)

// ShowRef identifies the show an episode belongs to, so the orchestrator
// can resolve or create the show row before upserting the item.
type ShowRef struct {
	ExternalRatingKey string
	Title             string
	ArtworkURL        string
	SeasonRatingKey   string
	SeasonNumber      int
	GUIDs             []catalog.GUID
}

// Result is everything the catalog needs to persist one remote item.
type Result struct {
	Item      catalog.ContentItem
	Files     []catalog.MediaFile
	Editorial catalog.Editorial
	Tags      []catalog.Tag
	GUIDs     []catalog.GUID

	// Show is set only for episodes.
	Show *ShowRef
}

// kidsRatings are the content ratings considered safe for children.
var kidsRatings = map[string]bool{
	"G":     true,
	"TV-Y":  true,
	"TV-Y7": true,
	"TV-G":  true,
}

// mpaaCodes are the recognized MPAA letter ratings.
var mpaaCodes = map[string]bool{
	"G":     true,
	"PG":    true,
	"PG-13": true,
	"R":     true,
	"NC-17": true,
}

// MapItem converts one remote metadata record into catalog records scoped
// to the given server and library.
func MapItem(md *plex.Metadata, serverID, libraryID int64) (*Result, error) {
	if md.RatingKey == "" {
		return nil, fmt.Errorf("item %q has no rating key", md.Title)
	}

	kind := inferKind(md)
	if kind != catalog.ItemKindMovie && kind != catalog.ItemKindEpisode {
		return nil, fmt.Errorf("item %s: unmappable kind %q", md.RatingKey, md.Type)
	}

	system, code := NormalizeRating(md.ContentRating)
	remoteAt := remoteEpoch(md)

	res := &Result{
		Item: catalog.ContentItem{
			ServerID:          serverID,
			LibraryID:         libraryID,
			ExternalRatingKey: md.RatingKey,
			Kind:              kind,
			Title:             md.Title,
			Synopsis:          md.Summary,
			RatingSystem:      system,
			RatingCode:        code,
			IsKidsFriendly:    kidsRatings[strings.ToUpper(strings.TrimSpace(md.ContentRating))],
			MetadataUpdatedAt: remoteAt,
		},
	}
	if md.Duration > 0 {
		d := md.Duration
		res.Item.DurationMs = &d
	}

	if kind == catalog.ItemKindEpisode {
		if md.Index > 0 {
			n := md.Index
			res.Item.EpisodeNumber = &n
		}
		if md.ParentIndex > 0 {
			n := md.ParentIndex
			res.Item.SeasonNumber = &n
		}
		res.Show = showRef(md)
	}

	res.Files = mapFiles(md, serverID, libraryID, remoteAt)
	res.Editorial = mapEditorial(md)
	res.Tags = mapTags(md, system, code, res.Item.IsKidsFriendly)
	res.GUIDs = ParseGUIDs(md)

	return res, nil
}

// inferKind honors an explicit type, then falls back to structure: an item
// with a parent and an index is an episode, anything else a movie.
func inferKind(md *plex.Metadata) catalog.ItemKind {
	switch md.Type {
	case "movie":
		return catalog.ItemKindMovie
	case "episode":
		return catalog.ItemKindEpisode
	case "show", "season":
		return catalog.ItemKind(md.Type)
	}
	if md.ParentRatingKey != "" && md.Index > 0 {
		return catalog.ItemKindEpisode
	}
	return catalog.ItemKindMovie
}

func showRef(md *plex.Metadata) *ShowRef {
	ref := &ShowRef{
		ExternalRatingKey: md.GrandparentRatingKey,
		Title:             md.GrandparentTitle,
		ArtworkURL:        md.GrandparentThumb,
		SeasonRatingKey:   md.ParentRatingKey,
		SeasonNumber:      md.ParentIndex,
	}
	// Some servers omit the grandparent on episodes fetched directly; the
	// parent key is the best remaining anchor.
	if ref.ExternalRatingKey == "" {
		ref.ExternalRatingKey = md.ParentRatingKey
	}
	if ref.Title == "" {
		ref.Title = md.ParentTitle
	}
	if provider, id, ok := splitGUID(md.GrandparentGUID); ok {
		ref.GUIDs = []catalog.GUID{{Provider: provider, ExternalID: id, IsPrimary: true}}
	}
	return ref
}

// NormalizeRating splits a raw content rating into a (system, code) pair.
// TV-prefixed ratings keep their full code under the TV system, MPAA
// letters map to MPAA, and the various unrated spellings collapse to NR.
func NormalizeRating(raw string) (system, code string) {
	r := strings.ToUpper(strings.TrimSpace(raw))
	if r == "" {
		return "", ""
	}
	if strings.HasPrefix(r, "TV-") {
		return "TV", r
	}
	switch r {
	case "NR", "NOT RATED", "UNRATED":
		return "MPAA", "NR"
	}
	if mpaaCodes[r] {
		return "MPAA", r
	}
	return "", raw
}

func mapFiles(md *plex.Metadata, serverID, libraryID int64, remoteAt *int64) []catalog.MediaFile {
	var files []catalog.MediaFile
	for _, m := range md.Media {
		for _, p := range m.Parts {
			if p.File == "" {
				continue
			}
			f := catalog.MediaFile{
				ServerID:          serverID,
				LibraryID:         libraryID,
				ExternalRatingKey: md.RatingKey,
				FilePath:          p.File,
				SizeBytes:         p.Size,
				Container:         p.Container,
				VideoCodec:        m.VideoCodec,
				AudioCodec:        m.AudioCodec,
				UpdatedAtRemote:   remoteAt,
			}
			if f.Container == "" {
				f.Container = m.Container
			}
			if m.Width > 0 {
				w := m.Width
				f.Width = &w
			}
			if m.Height > 0 {
				h := m.Height
				f.Height = &h
			}
			if m.Bitrate > 0 {
				b := m.Bitrate
				f.Bitrate = &b
			}
			if m.FrameRate > 0 {
				fr := m.FrameRate
				f.FrameRate = &fr
			}
			if m.AudioChannels > 0 {
				c := m.AudioChannels
				f.AudioChannels = &c
			}
			files = append(files, f)
		}
	}
	return files
}

func mapEditorial(md *plex.Metadata) catalog.Editorial {
	ed := catalog.Editorial{
		OriginalTitle:    md.Title,
		OriginalSynopsis: md.Summary,
	}
	if payload, err := json.Marshal(md); err == nil {
		ed.SourcePayloadJSON = string(payload)
	}
	return ed
}

func mapTags(md *plex.Metadata, system, code string, kids bool) []catalog.Tag {
	var tags []catalog.Tag
	if system != "" {
		tags = append(tags, catalog.Tag{Namespace: "rating", Key: "system", Value: system})
	}
	if code != "" {
		tags = append(tags, catalog.Tag{Namespace: "rating", Key: "code", Value: code})
	}
	if kids {
		tags = append(tags, catalog.Tag{Namespace: "audience", Key: "kids", Value: "1"})
	}
	if len(md.Genres) > 0 {
		tags = append(tags, catalog.Tag{Namespace: "genre", Key: "primary", Value: md.Genres[0].Tag})
	}
	if md.Studio != "" {
		tags = append(tags, catalog.Tag{Namespace: "studio", Key: "primary", Value: md.Studio})
	}
	return tags
}

// guidPriority orders providers for primary selection; lower is better.
var guidPriority = map[catalog.GUIDProvider]int{
	catalog.ProviderTVDB: 0,
	catalog.ProviderTMDB: 1,
	catalog.ProviderIMDB: 2,
	catalog.ProviderPlex: 3,
}

// ParseGUIDs merges the item's GUID list with its native guid, earliest
// entry winning per provider, and marks the primary by provider
// preference.
func ParseGUIDs(md *plex.Metadata) []catalog.GUID {
	var out []catalog.GUID
	seen := make(map[catalog.GUIDProvider]bool)

	add := func(raw string) {
		provider, id, ok := splitGUID(raw)
		if !ok || seen[provider] {
			return
		}
		seen[provider] = true
		out = append(out, catalog.GUID{Provider: provider, ExternalID: id})
	}

	for _, g := range md.Guids {
		add(g.ID)
	}
	add(md.GUID)

	if len(out) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(out); i++ {
		if guidPriority[out[i].Provider] < guidPriority[out[best].Provider] {
			best = i
		}
	}
	out[best].IsPrimary = true
	return out
}

func splitGUID(raw string) (catalog.GUIDProvider, string, bool) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok || rest == "" {
		return "", "", false
	}
	switch scheme {
	case "imdb":
		return catalog.ProviderIMDB, rest, true
	case "tmdb":
		return catalog.ProviderTMDB, rest, true
	case "tvdb":
		return catalog.ProviderTVDB, rest, true
	case "plex":
		return catalog.ProviderPlex, rest, true
	}
	return "", "", false
}

func remoteEpoch(md *plex.Metadata) *int64 {
	switch {
	case md.UpdatedAt > 0:
		v := md.UpdatedAt
		return &v
	case md.AddedAt > 0:
		v := md.AddedAt
		return &v
	}
	return nil
}
