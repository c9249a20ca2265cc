// Package validate decides whether a media file is acceptable before it
// is written to the catalog: path resolution, filesystem checks, a media
// probe, codec allowlists and a duration sanity check, in that order.
package validate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/driftsync/driftsync/internal/mediaprobe"
	"github.com/driftsync/driftsync/internal/pathmap"
)

// Status is the outcome of validating one file.
type Status string

const (
	StatusValid             Status = "VALID"
	StatusPathMappingFailed Status = "PATH_MAPPING_FAILED"
	StatusFileNotFound      Status = "FILE_NOT_FOUND"
	StatusFileNotAccessible Status = "FILE_NOT_ACCESSIBLE"
	StatusInvalidMetadata   Status = "INVALID_METADATA"
	StatusInvalidCodec      Status = "INVALID_CODEC"
)

// Input is one file to validate, with the remote-reported attributes used
// as fallbacks when no probe binary is installed.
type Input struct {
	ServerID   int64
	LibraryID  int64
	RemotePath string
	VideoCodec string
	AudioCodec string
	DurationMs int64
}

// Result carries the validated attributes back so later stages never
// re-probe the file.
type Result struct {
	Status     Status
	Message    string
	LocalPath  string
	SizeBytes  int64
	DurationMs int64
	VideoCodec string
	AudioCodec string
	Width      int
	Height     int
	Container  string
}

// Valid reports whether the file passed every stage.
func (r *Result) Valid() bool {
	return r.Status == StatusValid
}

var videoCodecs = map[string]bool{
	"h264": true, "h265": true, "hevc": true, "avc1": true,
	"x264": true, "x265": true, "mpeg2video": true, "mpeg4": true,
	"vp8": true, "vp9": true, "av1": true,
}

var audioCodecs = map[string]bool{
	"aac": true, "mp3": true, "ac3": true, "eac3": true,
	"dts": true, "flac": true, "pcm": true, "opus": true,
	"vorbis": true, "mp2": true, "wma": true,
}

// Prober is the probe surface the validator needs.
type Prober interface {
	Available() bool
	Probe(ctx context.Context, path string) (*mediaprobe.Info, error)
}

// Validator checks files against the pipeline's acceptance rules.
type Validator struct {
	paths  *pathmap.Mapper
	prober Prober
	logger zerolog.Logger

	// stat is swapped out in tests.
	stat func(name string) (os.FileInfo, error)
}

// New creates a Validator. A nil prober disables the probe stage; codec
// and duration checks then run against the remote-reported values.
func New(paths *pathmap.Mapper, prober Prober, logger zerolog.Logger) *Validator {
	return &Validator{
		paths:  paths,
		prober: prober,
		logger: logger.With().Str("component", "validate").Logger(),
		stat:   os.Stat,
	}
}

// ValidateFile runs one file through every stage. A non-nil error means
// the validator itself failed (mapping lookup); rejections come back as a
// Result with a non-valid status.
func (v *Validator) ValidateFile(ctx context.Context, in Input) (*Result, error) {
	local, ok, err := v.paths.Resolve(ctx, in.ServerID, in.LibraryID, in.RemotePath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", in.RemotePath, err)
	}
	if !ok {
		return &Result{
			Status:  StatusPathMappingFailed,
			Message: fmt.Sprintf("no path mapping matches %s", in.RemotePath),
		}, nil
	}

	res := &Result{LocalPath: local}

	fi, err := v.stat(local)
	switch {
	case os.IsNotExist(err):
		res.Status = StatusFileNotFound
		res.Message = fmt.Sprintf("file does not exist: %s", local)
		return res, nil
	case err != nil:
		res.Status = StatusFileNotAccessible
		res.Message = fmt.Sprintf("cannot access %s: %v", local, err)
		return res, nil
	case !fi.Mode().IsRegular():
		res.Status = StatusFileNotAccessible
		res.Message = fmt.Sprintf("not a regular file: %s", local)
		return res, nil
	case fi.Size() == 0:
		res.Status = StatusFileNotAccessible
		res.Message = fmt.Sprintf("file is empty: %s", local)
		return res, nil
	}
	res.SizeBytes = fi.Size()

	res.VideoCodec = in.VideoCodec
	res.AudioCodec = in.AudioCodec
	res.DurationMs = in.DurationMs

	if v.prober != nil && v.prober.Available() {
		info, err := v.prober.Probe(ctx, local)
		if err != nil {
			res.Status = StatusInvalidMetadata
			res.Message = fmt.Sprintf("probe failed for %s: %v", local, err)
			return res, nil
		}
		res.DurationMs = info.DurationMs
		res.VideoCodec = info.VideoCodec
		res.AudioCodec = info.AudioCodec
		res.Width = info.Width
		res.Height = info.Height
		res.Container = info.Container
	}

	if vc := strings.ToLower(res.VideoCodec); vc != "" && !videoCodecs[vc] {
		res.Status = StatusInvalidCodec
		res.Message = fmt.Sprintf("video codec %q not allowed", res.VideoCodec)
		return res, nil
	}
	if ac := strings.ToLower(res.AudioCodec); ac != "" && !audioCodecs[ac] {
		res.Status = StatusInvalidCodec
		res.Message = fmt.Sprintf("audio codec %q not allowed", res.AudioCodec)
		return res, nil
	}

	if res.DurationMs <= 0 {
		res.Status = StatusInvalidMetadata
		res.Message = fmt.Sprintf("no usable duration for %s", local)
		return res, nil
	}

	res.Status = StatusValid
	return res, nil
}

// ValidateBatch validates each input, keeping input order.
func (v *Validator) ValidateBatch(ctx context.Context, inputs []Input) ([]*Result, error) {
	results := make([]*Result, 0, len(inputs))
	for _, in := range inputs {
		res, err := v.ValidateFile(ctx, in)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Summarize counts results by status.
func Summarize(results []*Result) map[Status]int {
	counts := make(map[Status]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return counts
}
