package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/heyjunin/HLSdrop/pkg/errors"
)

// MediaInfo holds what ffprobe reports about a staged input.
type MediaInfo struct {
	Width      int
	Height     int
	Duration   time.Duration
	VideoCodec string
	AudioCodec string
}

// ffprobeOutput mirrors the subset of `ffprobe -print_format json` we read.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width,omitempty"`
		Height    int    `json:"height,omitempty"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe runs ffprobe on name in working storage.
func (f *FFmpeg) Probe(ctx context.Context, name string) (*MediaInfo, error) {
	path, err := f.storagePath(name)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	probePath := f.probePath
	f.mu.Unlock()
	if probePath == "" {
		return nil, errors.New(errors.EngineError, "ffprobe is not available", "", errors.ErrEngineNotFound)
	}

	cmd := exec.CommandContext(ctx, probePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("run ffprobe: %w", err)
	}
	return ParseProbeOutput(output)
}

// ParseProbeOutput decodes ffprobe JSON output.
func ParseProbeOutput(output []byte) (*MediaInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info MediaInfo
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = stream.CodecName
				info.Width = stream.Width
				info.Height = stream.Height
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
			}
		}
	}

	if probe.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}

	if info.VideoCodec == "" && info.AudioCodec == "" {
		return nil, fmt.Errorf("no audio or video stream found")
	}
	return &info, nil
}

var timeRegex = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// ParseProgressTime extracts the media position from an ffmpeg stats line.
func ParseProgressTime(line string) (time.Duration, bool) {
	matches := timeRegex.FindStringSubmatch(line)
	if len(matches) < 4 {
		return 0, false
	}
	hours, _ := strconv.Atoi(matches[1])
	minutes, _ := strconv.Atoi(matches[2])
	seconds, _ := strconv.ParseFloat(matches[3], 64)

	total := float64(hours*3600+minutes*60) + seconds
	return time.Duration(total * float64(time.Second)), true
}
