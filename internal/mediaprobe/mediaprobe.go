// Package mediaprobe wraps the ffprobe CLI to extract duration, codecs
// and resolution from a media file on disk.
package mediaprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"time"
)

const probeTimeout = 30 * time.Second

// Info is the subset of probe output the ingest pipeline cares about.
type Info struct {
	DurationMs int64
	VideoCodec string
	AudioCodec string
	Width      int
	Height     int
	Container  string
	SizeBytes  int64
}

// Prober runs ffprobe against local files.
type Prober struct {
	binary string

	// runner is swapped out in tests.
	runner func(ctx context.Context, binary, path string) ([]byte, error)
}

// New creates a Prober. An empty explicitPath falls back to PATH lookup
// and the platform's usual install locations.
func New(explicitPath string) *Prober {
	return &Prober{
		binary: findFFprobe(explicitPath),
		runner: runFFprobe,
	}
}

// Available reports whether an ffprobe binary was located.
func (p *Prober) Available() bool {
	return p.binary != ""
}

// Probe inspects one file. The probe is bounded by a 30-second timeout;
// hitting it surfaces as a context deadline error.
func (p *Prober) Probe(ctx context.Context, path string) (*Info, error) {
	if p.binary == "" {
		return nil, fmt.Errorf("ffprobe not found")
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := p.runner(ctx, p.binary, path)
	if err != nil {
		return nil, err
	}
	return parseOutput(out)
}

func runFFprobe(ctx context.Context, binary, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func parseOutput(data []byte) (*Info, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{Container: output.Format.FormatName}
	if output.Format.Duration != "" {
		if f, err := strconv.ParseFloat(output.Format.Duration, 64); err == nil {
			info.DurationMs = int64(f * 1000)
		}
	}
	if output.Format.Size != "" {
		if size, err := strconv.ParseInt(output.Format.Size, 10, 64); err == nil {
			info.SizeBytes = size
		}
	}

	var firstVideo, firstAudio bool
	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			if firstVideo {
				continue
			}
			firstVideo = true
			info.VideoCodec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
		case "audio":
			if firstAudio {
				continue
			}
			firstAudio = true
			info.AudioCodec = stream.CodecName
		}
	}

	return info, nil
}

// findFFprobe finds the ffprobe binary by explicit path, PATH lookup, or
// the platform's common install locations.
func findFFprobe(explicitPath string) string {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return explicitPath
		}
	}

	if path, err := exec.LookPath("ffprobe"); err == nil {
		return path
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "darwin":
		commonPaths = []string{
			"/usr/local/bin/ffprobe",
			"/opt/homebrew/bin/ffprobe",
		}
	case "linux":
		commonPaths = []string{
			"/usr/bin/ffprobe",
			"/usr/local/bin/ffprobe",
		}
	case "windows":
		commonPaths = []string{
			`C:\Program Files\ffmpeg\bin\ffprobe.exe`,
			`C:\ffmpeg\bin\ffprobe.exe`,
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
