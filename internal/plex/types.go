package plex

import "encoding/xml"

// ItemType is the Plex numeric type filter used on section listings.
type ItemType string

const (
	TypeMovie   ItemType = "1"
	TypeShow    ItemType = "2"
	TypeSeason  ItemType = "3"
	TypeEpisode ItemType = "4"
)

// MediaContainer is the envelope every Plex endpoint answers with.
type MediaContainer struct {
	Size        int         `json:"size"`
	TotalSize   int         `json:"totalSize"`
	Directories []Directory `json:"Directory"`
	Metadata    []Metadata  `json:"Metadata"`
}

// Directory describes a library section.
type Directory struct {
	Key       string     `json:"key"`
	Title     string     `json:"title"`
	Type      string     `json:"type"`
	Locations []Location `json:"Location"`
}

// Location is a filesystem root of a library section, as the server sees it.
type Location struct {
	Path string `json:"path"`
}

// Metadata is one item (movie, show, season or episode) as returned by
// the section and metadata endpoints.
type Metadata struct {
	RatingKey            string    `json:"ratingKey"`
	Key                  string    `json:"key"`
	GUID                 string    `json:"guid"`
	Type                 string    `json:"type"`
	Title                string    `json:"title"`
	Summary              string    `json:"summary"`
	Year                 int       `json:"year"`
	Index                int       `json:"index"`
	ParentIndex          int       `json:"parentIndex"`
	ParentRatingKey      string    `json:"parentRatingKey"`
	ParentTitle          string    `json:"parentTitle"`
	GrandparentRatingKey string    `json:"grandparentRatingKey"`
	GrandparentGUID      string    `json:"grandparentGuid"`
	GrandparentTitle     string    `json:"grandparentTitle"`
	GrandparentThumb     string    `json:"grandparentThumb"`
	ContentRating        string    `json:"contentRating"`
	Studio               string    `json:"studio"`
	Duration             int64     `json:"duration"`
	AddedAt              int64     `json:"addedAt"`
	UpdatedAt            int64     `json:"updatedAt"`
	Thumb                string    `json:"thumb"`
	Art                  string    `json:"art"`
	Guids                []GuidRef `json:"Guid"`
	Genres               []TagRef  `json:"Genre"`
	Media                []Media   `json:"Media"`
}

// GuidRef is one provider-qualified external identifier, e.g.
// "imdb://tt0303461".
type GuidRef struct {
	ID string `json:"id"`
}

// TagRef is a tag-valued attribute such as a genre.
type TagRef struct {
	Tag string `json:"tag"`
}

// Media is one encoding of an item.
type Media struct {
	ID              int64   `json:"id"`
	Container       string  `json:"container"`
	VideoCodec      string  `json:"videoCodec"`
	AudioCodec      string  `json:"audioCodec"`
	VideoResolution string  `json:"videoResolution"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Bitrate         int64   `json:"bitrate"`
	FrameRate       float64 `json:"frameRate"`
	AudioChannels   int     `json:"audioChannels"`
	Parts           []Part  `json:"Part"`
}

// Part is one file of a media encoding.
type Part struct {
	ID        int64  `json:"id"`
	File      string `json:"file"`
	Size      int64  `json:"size"`
	Container string `json:"container"`
	Duration  int64  `json:"duration"`
}

// The XML shapes mirror the JSON ones; older servers and misconfigured
// proxies answer XML regardless of the Accept header.

type xmlContainer struct {
	XMLName     xml.Name       `xml:"MediaContainer"`
	Size        int            `xml:"size,attr"`
	TotalSize   int            `xml:"totalSize,attr"`
	Directories []xmlDirectory `xml:"Directory"`
	Videos      []xmlMetadata  `xml:"Video"`
}

type xmlDirectory struct {
	Key       string        `xml:"key,attr"`
	Title     string        `xml:"title,attr"`
	Type      string        `xml:"type,attr"`
	RatingKey string        `xml:"ratingKey,attr"`
	GUID      string        `xml:"guid,attr"`
	Summary   string        `xml:"summary,attr"`
	Year      int           `xml:"year,attr"`
	Index     int           `xml:"index,attr"`
	ParentKey string        `xml:"parentRatingKey,attr"`
	AddedAt   int64         `xml:"addedAt,attr"`
	UpdatedAt int64         `xml:"updatedAt,attr"`
	Thumb     string        `xml:"thumb,attr"`
	Locations []xmlLocation `xml:"Location"`
	Guids     []xmlGuid     `xml:"Guid"`
}

type xmlLocation struct {
	Path string `xml:"path,attr"`
}

type xmlMetadata struct {
	RatingKey            string     `xml:"ratingKey,attr"`
	Key                  string     `xml:"key,attr"`
	GUID                 string     `xml:"guid,attr"`
	Type                 string     `xml:"type,attr"`
	Title                string     `xml:"title,attr"`
	Summary              string     `xml:"summary,attr"`
	Year                 int        `xml:"year,attr"`
	Index                int        `xml:"index,attr"`
	ParentIndex          int        `xml:"parentIndex,attr"`
	ParentRatingKey      string     `xml:"parentRatingKey,attr"`
	ParentTitle          string     `xml:"parentTitle,attr"`
	GrandparentRatingKey string     `xml:"grandparentRatingKey,attr"`
	GrandparentGUID      string     `xml:"grandparentGuid,attr"`
	GrandparentTitle     string     `xml:"grandparentTitle,attr"`
	ContentRating        string     `xml:"contentRating,attr"`
	Studio               string     `xml:"studio,attr"`
	Duration             int64      `xml:"duration,attr"`
	AddedAt              int64      `xml:"addedAt,attr"`
	UpdatedAt            int64      `xml:"updatedAt,attr"`
	Thumb                string     `xml:"thumb,attr"`
	Art                  string     `xml:"art,attr"`
	Guids                []xmlGuid  `xml:"Guid"`
	Genres               []xmlTag   `xml:"Genre"`
	Media                []xmlMedia `xml:"Media"`
}

type xmlGuid struct {
	ID string `xml:"id,attr"`
}

type xmlTag struct {
	Tag string `xml:"tag,attr"`
}

type xmlMedia struct {
	ID              int64     `xml:"id,attr"`
	Container       string    `xml:"container,attr"`
	VideoCodec      string    `xml:"videoCodec,attr"`
	AudioCodec      string    `xml:"audioCodec,attr"`
	VideoResolution string    `xml:"videoResolution,attr"`
	Width           int       `xml:"width,attr"`
	Height          int       `xml:"height,attr"`
	Bitrate         int64     `xml:"bitrate,attr"`
	FrameRate       float64   `xml:"frameRate,attr"`
	AudioChannels   int       `xml:"audioChannels,attr"`
	Parts           []xmlPart `xml:"Part"`
}

type xmlPart struct {
	ID        int64  `xml:"id,attr"`
	File      string `xml:"file,attr"`
	Size      int64  `xml:"size,attr"`
	Container string `xml:"container,attr"`
	Duration  int64  `xml:"duration,attr"`
}

// fromXML lifts the attribute-based XML shape into the JSON shape so the
// rest of the package only sees one representation.
func (x *xmlContainer) toContainer() *MediaContainer {
	mc := &MediaContainer{
		Size:      x.Size,
		TotalSize: x.TotalSize,
	}

	for _, d := range x.Directories {
		if d.RatingKey != "" {
			// Shows and seasons come back as Directory elements.
			mc.Metadata = append(mc.Metadata, Metadata{
				RatingKey:       d.RatingKey,
				Key:             d.Key,
				GUID:            d.GUID,
				Type:            d.Type,
				Title:           d.Title,
				Summary:         d.Summary,
				Year:            d.Year,
				Index:           d.Index,
				ParentRatingKey: d.ParentKey,
				AddedAt:         d.AddedAt,
				UpdatedAt:       d.UpdatedAt,
				Thumb:           d.Thumb,
				Guids:           convertGuids(d.Guids),
			})
			continue
		}
		dir := Directory{
			Key:   d.Key,
			Title: d.Title,
			Type:  d.Type,
		}
		for _, loc := range d.Locations {
			dir.Locations = append(dir.Locations, Location{Path: loc.Path})
		}
		mc.Directories = append(mc.Directories, dir)
	}

	for _, v := range x.Videos {
		md := Metadata{
			RatingKey:            v.RatingKey,
			Key:                  v.Key,
			GUID:                 v.GUID,
			Type:                 v.Type,
			Title:                v.Title,
			Summary:              v.Summary,
			Year:                 v.Year,
			Index:                v.Index,
			ParentIndex:          v.ParentIndex,
			ParentRatingKey:      v.ParentRatingKey,
			ParentTitle:          v.ParentTitle,
			GrandparentRatingKey: v.GrandparentRatingKey,
			GrandparentGUID:      v.GrandparentGUID,
			GrandparentTitle:     v.GrandparentTitle,
			ContentRating:        v.ContentRating,
			Studio:               v.Studio,
			Duration:             v.Duration,
			AddedAt:              v.AddedAt,
			UpdatedAt:            v.UpdatedAt,
			Thumb:                v.Thumb,
			Art:                  v.Art,
			Guids:                convertGuids(v.Guids),
		}
		for _, g := range v.Genres {
			md.Genres = append(md.Genres, TagRef{Tag: g.Tag})
		}
		for _, m := range v.Media {
			media := Media{
				ID:              m.ID,
				Container:       m.Container,
				VideoCodec:      m.VideoCodec,
				AudioCodec:      m.AudioCodec,
				VideoResolution: m.VideoResolution,
				Width:           m.Width,
				Height:          m.Height,
				Bitrate:         m.Bitrate,
				FrameRate:       m.FrameRate,
				AudioChannels:   m.AudioChannels,
			}
			for _, p := range m.Parts {
				media.Parts = append(media.Parts, Part{
					ID:        p.ID,
					File:      p.File,
					Size:      p.Size,
					Container: p.Container,
					Duration:  p.Duration,
				})
			}
			md.Media = append(md.Media, media)
		}
		mc.Metadata = append(mc.Metadata, md)
	}

	return mc
}

func convertGuids(in []xmlGuid) []GuidRef {
	out := make([]GuidRef, 0, len(in))
	for _, g := range in {
		out = append(out, GuidRef{ID: g.ID})
	}
	return out
}
