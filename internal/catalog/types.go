package catalog

import "time"

// LibraryKind is the content kind a library holds.
type LibraryKind string

const (
	LibraryKindMovie LibraryKind = "movie"
	LibraryKindShow  LibraryKind = "show"
)

// ItemKind is the kind of a content item.
type ItemKind string

const (
	ItemKindMovie        ItemKind = "movie"
	ItemKindEpisode      ItemKind = "episode"
	ItemKindInterstitial ItemKind = "interstitial"
)

// GUIDProvider identifies an external identifier provider.
type GUIDProvider string

const (
	ProviderIMDB GUIDProvider = "imdb"
	ProviderTMDB GUIDProvider = "tmdb"
	ProviderTVDB GUIDProvider = "tvdb"
	ProviderPlex GUIDProvider = "plex"
)

// Server is a remote media source.
type Server struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"baseUrl"`
	Token     string    `json:"-"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Library is a collection inside a server.
type Library struct {
	ID                   int64       `json:"id"`
	ServerID             int64       `json:"serverId"`
	ExternalKey          string      `json:"externalKey"`
	Title                string      `json:"title"`
	Kind                 LibraryKind `json:"kind"`
	SyncEnabled          bool        `json:"syncEnabled"`
	LastFullSyncEpoch    *int64      `json:"lastFullSyncEpoch,omitempty"`
	LastIncrementalEpoch *int64      `json:"lastIncrementalSyncEpoch,omitempty"`
}

// Show is the top-level container for episodic content.
type Show struct {
	ID                int64  `json:"id"`
	ServerID          int64  `json:"serverId"`
	LibraryID         int64  `json:"libraryId"`
	ExternalRatingKey string `json:"externalRatingKey"`
	Title             string `json:"title"`
	Year              *int   `json:"year,omitempty"`
	ArtworkURL        string `json:"artworkUrl,omitempty"`
}

// Season groups episodes within a show.
type Season struct {
	ID                int64  `json:"id"`
	ShowID            int64  `json:"showId"`
	SeasonNumber      int    `json:"seasonNumber"`
	ExternalRatingKey string `json:"externalRatingKey,omitempty"`
	Title             string `json:"title,omitempty"`
}

// ContentItem is the polymorphic content record.
type ContentItem struct {
	ID                int64    `json:"id"`
	ServerID          int64    `json:"serverId"`
	LibraryID         int64    `json:"libraryId"`
	ExternalRatingKey string   `json:"externalRatingKey"`
	Kind              ItemKind `json:"kind"`
	Title             string   `json:"title"`
	Synopsis          string   `json:"synopsis,omitempty"`
	DurationMs        *int64   `json:"durationMs,omitempty"`
	RatingSystem      string   `json:"ratingSystem,omitempty"`
	RatingCode        string   `json:"ratingCode,omitempty"`
	IsKidsFriendly    bool     `json:"isKidsFriendly"`
	ShowID            *int64   `json:"showId,omitempty"`
	SeasonID          *int64   `json:"seasonId,omitempty"`
	SeasonNumber      *int     `json:"seasonNumber,omitempty"`
	EpisodeNumber     *int     `json:"episodeNumber,omitempty"`
	MetadataUpdatedAt *int64   `json:"metadataUpdatedAt,omitempty"`
}

// MediaFile is a concrete file backing a content item.
type MediaFile struct {
	ID                int64    `json:"id"`
	ServerID          int64    `json:"serverId"`
	LibraryID         int64    `json:"libraryId"`
	ContentItemID     int64    `json:"contentItemId"`
	ExternalRatingKey string   `json:"externalRatingKey"`
	FilePath          string   `json:"filePath"`
	SizeBytes         int64    `json:"sizeBytes"`
	Container         string   `json:"container,omitempty"`
	VideoCodec        string   `json:"videoCodec,omitempty"`
	AudioCodec        string   `json:"audioCodec,omitempty"`
	Width             *int     `json:"width,omitempty"`
	Height            *int     `json:"height,omitempty"`
	Bitrate           *int64   `json:"bitrate,omitempty"`
	FrameRate         *float64 `json:"frameRate,omitempty"`
	AudioChannels     *int     `json:"audioChannels,omitempty"`
	UpdatedAtRemote   *int64   `json:"updatedAtRemote,omitempty"`
	FirstSeenAt       int64    `json:"firstSeenAt"`
	LastSeenAt        int64    `json:"lastSeenAt"`
}

// Editorial holds the original metadata snapshot and optional human overrides.
type Editorial struct {
	ContentItemID     int64  `json:"contentItemId"`
	OriginalTitle     string `json:"originalTitle,omitempty"`
	OriginalSynopsis  string `json:"originalSynopsis,omitempty"`
	SourcePayloadJSON string `json:"sourcePayloadJson,omitempty"`
	OverrideTitle     string `json:"overrideTitle,omitempty"`
	OverrideSynopsis  string `json:"overrideSynopsis,omitempty"`
	OverrideUpdatedAt *int64 `json:"overrideUpdatedAt,omitempty"`
}

// Tag is a namespaced key/value facet on a content item.
type Tag struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// GUID is a provider-qualified external identifier.
type GUID struct {
	Provider   GUIDProvider `json:"provider"`
	ExternalID string       `json:"externalId"`
	IsPrimary  bool         `json:"isPrimary"`
}

// PathMapping rewrites a remote path prefix to a local one.
type PathMapping struct {
	ID        int64  `json:"id"`
	ServerID  int64  `json:"serverId"`
	LibraryID int64  `json:"libraryId"`
	PlexPath  string `json:"plexPath"`
	LocalPath string `json:"localPath"`
}

// UpsertOutcome reports what an upsert did to its row.
type UpsertOutcome int

const (
	OutcomeUnchanged UpsertOutcome = iota
	OutcomeInserted
	OutcomeUpdated
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}
