package mapper

import (
	"encoding/json"
	"testing"

	"github.com/driftsync/driftsync/internal/catalog"
	"github.com/driftsync/driftsync/internal/plex"
)

func TestMapItem_Episode(t *testing.T) {
	md := &plex.Metadata{
		RatingKey:            "2005",
		Type:                 "episode",
		Title:                "Out of Gas",
		ParentIndex:          2,
		Index:                5,
		ParentRatingKey:      "2000",
		GrandparentRatingKey: "1999",
		GrandparentGUID:      "tvdb://78874",
		GrandparentTitle:     "Firefly",
		ContentRating:        "TV-14",
		Duration:             2520000,
		UpdatedAt:            1700000000,
		Media: []plex.Media{{
			VideoCodec: "h264",
			AudioCodec: "aac",
			Parts:      []plex.Part{{File: "/mnt/tv/firefly/s02e05.mkv", Size: 1 << 30}},
		}},
	}

	res, err := MapItem(md, 1, 2)
	if err != nil {
		t.Fatalf("MapItem() error = %v", err)
	}

	item := res.Item
	if item.Kind != catalog.ItemKindEpisode {
		t.Errorf("Kind = %v, want episode", item.Kind)
	}
	if item.SeasonNumber == nil || *item.SeasonNumber != 2 {
		t.Errorf("SeasonNumber = %v, want 2", item.SeasonNumber)
	}
	if item.EpisodeNumber == nil || *item.EpisodeNumber != 5 {
		t.Errorf("EpisodeNumber = %v, want 5", item.EpisodeNumber)
	}
	if item.RatingSystem != "TV" || item.RatingCode != "TV-14" {
		t.Errorf("rating = (%q, %q), want (TV, TV-14)", item.RatingSystem, item.RatingCode)
	}
	if item.IsKidsFriendly {
		t.Error("IsKidsFriendly = true, want false for TV-14")
	}
	if item.DurationMs == nil || *item.DurationMs != 2520000 {
		t.Errorf("DurationMs = %v, want 2520000", item.DurationMs)
	}

	if len(res.Files) != 1 {
		t.Fatalf("Files = %d, want 1", len(res.Files))
	}
	if res.Files[0].FilePath != "/mnt/tv/firefly/s02e05.mkv" {
		t.Errorf("FilePath = %q", res.Files[0].FilePath)
	}

	if res.Show == nil {
		t.Fatal("Show = nil, want show ref for episode")
	}
	if res.Show.ExternalRatingKey != "1999" || res.Show.Title != "Firefly" {
		t.Errorf("Show = %+v, want grandparent", res.Show)
	}
	if len(res.Show.GUIDs) != 1 || res.Show.GUIDs[0].Provider != catalog.ProviderTVDB ||
		res.Show.GUIDs[0].ExternalID != "78874" || !res.Show.GUIDs[0].IsPrimary {
		t.Errorf("Show.GUIDs = %+v, want primary tvdb/78874", res.Show.GUIDs)
	}

	wantTags := map[string]string{"rating/system": "TV", "rating/code": "TV-14"}
	for _, tag := range res.Tags {
		delete(wantTags, tag.Namespace+"/"+tag.Key)
	}
	if len(wantTags) != 0 {
		t.Errorf("missing tags: %v", wantTags)
	}

	// Editorial payload round-trips the source metadata.
	var payload plex.Metadata
	if err := json.Unmarshal([]byte(res.Editorial.SourcePayloadJSON), &payload); err != nil {
		t.Fatalf("SourcePayloadJSON unmarshal error = %v", err)
	}
	if payload.Title != "Out of Gas" {
		t.Errorf("payload title = %q, want preserved source", payload.Title)
	}
}

func TestMapItem_KindInference(t *testing.T) {
	cases := []struct {
		name string
		md   plex.Metadata
		want catalog.ItemKind
	}{
		{"explicit movie", plex.Metadata{RatingKey: "1", Type: "movie"}, catalog.ItemKindMovie},
		{"explicit episode", plex.Metadata{RatingKey: "1", Type: "episode"}, catalog.ItemKindEpisode},
		{"parent and index imply episode", plex.Metadata{RatingKey: "1", ParentRatingKey: "9", Index: 3}, catalog.ItemKindEpisode},
		{"bare item defaults to movie", plex.Metadata{RatingKey: "1"}, catalog.ItemKindMovie},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := MapItem(&tc.md, 1, 1)
			if err != nil {
				t.Fatalf("MapItem() error = %v", err)
			}
			if res.Item.Kind != tc.want {
				t.Errorf("Kind = %v, want %v", res.Item.Kind, tc.want)
			}
		})
	}
}

func TestMapItem_RejectsContainers(t *testing.T) {
	if _, err := MapItem(&plex.Metadata{RatingKey: "1", Type: "show"}, 1, 1); err == nil {
		t.Error("MapItem(show) error = nil, want unmappable kind")
	}
	if _, err := MapItem(&plex.Metadata{Title: "no key"}, 1, 1); err == nil {
		t.Error("MapItem() without rating key error = nil, want error")
	}
}

func TestNormalizeRating(t *testing.T) {
	cases := []struct {
		in, system, code string
	}{
		{"TV-PG", "TV", "TV-PG"},
		{"tv-14", "TV", "TV-14"},
		{"PG-13", "MPAA", "PG-13"},
		{"G", "MPAA", "G"},
		{"NR", "MPAA", "NR"},
		{"Not Rated", "MPAA", "NR"},
		{"Unrated", "MPAA", "NR"},
		{"", "", ""},
		{"12A", "", "12A"},
	}

	for _, tc := range cases {
		system, code := NormalizeRating(tc.in)
		if system != tc.system || code != tc.code {
			t.Errorf("NormalizeRating(%q) = (%q, %q), want (%q, %q)", tc.in, system, code, tc.system, tc.code)
		}
	}
}

func TestMapItem_KidsFriendly(t *testing.T) {
	for _, rating := range []string{"G", "TV-Y", "TV-Y7", "TV-G"} {
		res, err := MapItem(&plex.Metadata{RatingKey: "1", Type: "movie", ContentRating: rating}, 1, 1)
		if err != nil {
			t.Fatalf("MapItem() error = %v", err)
		}
		if !res.Item.IsKidsFriendly {
			t.Errorf("IsKidsFriendly(%q) = false, want true", rating)
		}
		found := false
		for _, tag := range res.Tags {
			if tag.Namespace == "audience" && tag.Key == "kids" && tag.Value == "1" {
				found = true
			}
		}
		if !found {
			t.Errorf("audience.kids tag missing for %q", rating)
		}
	}

	res, _ := MapItem(&plex.Metadata{RatingKey: "1", Type: "movie", ContentRating: "PG"}, 1, 1)
	if res.Item.IsKidsFriendly {
		t.Error("IsKidsFriendly(PG) = true, want false")
	}
}

func TestMapItem_SkipsPartsWithoutFile(t *testing.T) {
	md := &plex.Metadata{
		RatingKey: "1",
		Type:      "movie",
		Title:     "Alien",
		Media: []plex.Media{{
			Parts: []plex.Part{
				{File: "", Size: 10},
				{File: "/mnt/movies/alien.mkv", Size: 20},
			},
		}},
	}

	res, err := MapItem(md, 1, 1)
	if err != nil {
		t.Fatalf("MapItem() error = %v", err)
	}
	if len(res.Files) != 1 {
		t.Fatalf("Files = %d, want 1 (fileless part dropped)", len(res.Files))
	}
	if res.Files[0].FilePath != "/mnt/movies/alien.mkv" {
		t.Errorf("FilePath = %q", res.Files[0].FilePath)
	}
}

func TestParseGUIDs_PrimaryPreference(t *testing.T) {
	md := &plex.Metadata{
		RatingKey: "1",
		Guids: []plex.GuidRef{
			{ID: "imdb://tt0303461"},
			{ID: "tvdb://78874"},
			{ID: "plex://show/abc"},
		},
	}

	guids := ParseGUIDs(md)
	if len(guids) != 3 {
		t.Fatalf("ParseGUIDs() = %d guids, want 3", len(guids))
	}

	var primary *catalog.GUID
	for i := range guids {
		if guids[i].IsPrimary {
			if primary != nil {
				t.Fatal("multiple primary guids")
			}
			primary = &guids[i]
		}
	}
	if primary == nil {
		t.Fatal("no primary guid")
	}
	if primary.Provider != catalog.ProviderTVDB || primary.ExternalID != "78874" {
		t.Errorf("primary = %s://%s, want tvdb://78874", primary.Provider, primary.ExternalID)
	}
}

func TestParseGUIDs_EarliestWinsPerProvider(t *testing.T) {
	md := &plex.Metadata{
		RatingKey: "1",
		GUID:      "plex://movie/zzz",
		Guids: []plex.GuidRef{
			{ID: "tmdb://100"},
			{ID: "tmdb://200"},
		},
	}

	guids := ParseGUIDs(md)
	if len(guids) != 2 {
		t.Fatalf("ParseGUIDs() = %d guids, want 2 (tmdb deduped, native kept)", len(guids))
	}
	if guids[0].Provider != catalog.ProviderTMDB || guids[0].ExternalID != "100" {
		t.Errorf("tmdb guid = %s, want earliest (100)", guids[0].ExternalID)
	}
}

func TestParseGUIDs_IgnoresUnknownSchemes(t *testing.T) {
	md := &plex.Metadata{
		RatingKey: "1",
		Guids: []plex.GuidRef{
			{ID: "com.plexapp.agents.imdb://tt1"},
			{ID: "not-a-guid"},
		},
	}
	if guids := ParseGUIDs(md); guids != nil {
		t.Errorf("ParseGUIDs() = %v, want nil for unknown schemes", guids)
	}
}

func TestMapItem_TimestampFallback(t *testing.T) {
	res, err := MapItem(&plex.Metadata{RatingKey: "1", Type: "movie", AddedAt: 1650000000}, 1, 1)
	if err != nil {
		t.Fatalf("MapItem() error = %v", err)
	}
	if res.Item.MetadataUpdatedAt == nil || *res.Item.MetadataUpdatedAt != 1650000000 {
		t.Errorf("MetadataUpdatedAt = %v, want addedAt fallback", res.Item.MetadataUpdatedAt)
	}

	res, _ = MapItem(&plex.Metadata{RatingKey: "2", Type: "movie"}, 1, 1)
	if res.Item.MetadataUpdatedAt != nil {
		t.Errorf("MetadataUpdatedAt = %v, want nil when neither timestamp set", res.Item.MetadataUpdatedAt)
	}
}
