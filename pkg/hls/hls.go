package hls

import (
	"fmt"
	"strconv"
)

// Default names inside engine working storage.
const (
	DefaultInputName    = "input.mp4"
	DefaultPlaylistName = "output.m3u8"
)

// Options contains settings for the single-rendition HLS job handed to the engine.
type Options struct {
	InputName       string   `yaml:"-"`
	PlaylistName    string   `yaml:"-"`
	SegmentDuration int      `yaml:"segment_duration"`
	ListSize        int      `yaml:"list_size"`
	VideoCodec      string   `yaml:"video_codec"`
	Preset          string   `yaml:"preset"`
	AudioCodec      string   `yaml:"audio_codec"`
	Threads         int      `yaml:"threads"`
	ExtraParams     []string `yaml:"extra_params"`
}

// DefaultOptions returns the standard job: 10s segments, unbounded
// playlist, libx264 ultrafast, AAC, 4 engine threads.
func DefaultOptions() Options {
	return Options{
		InputName:       DefaultInputName,
		PlaylistName:    DefaultPlaylistName,
		SegmentDuration: 10,
		ListSize:        0,
		VideoCodec:      "libx264",
		Preset:          "ultrafast",
		AudioCodec:      "aac",
		Threads:         4,
	}
}

// withDefaults fills zero values from DefaultOptions. ListSize 0 is meaningful and kept.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.InputName == "" {
		o.InputName = def.InputName
	}
	if o.PlaylistName == "" {
		o.PlaylistName = def.PlaylistName
	}
	if o.SegmentDuration == 0 {
		o.SegmentDuration = def.SegmentDuration
	}
	if o.VideoCodec == "" {
		o.VideoCodec = def.VideoCodec
	}
	if o.Preset == "" {
		o.Preset = def.Preset
	}
	if o.AudioCodec == "" {
		o.AudioCodec = def.AudioCodec
	}
	if o.Threads == 0 {
		o.Threads = def.Threads
	}
	return o
}

// Validate rejects settings the engine cannot run.
func (o Options) Validate() error {
	o = o.withDefaults()
	if o.SegmentDuration < 0 {
		return fmt.Errorf("segment duration must not be negative, got %d", o.SegmentDuration)
	}
	if o.ListSize < 0 {
		return fmt.Errorf("playlist size must be zero (unbounded) or positive, got %d", o.ListSize)
	}
	if o.Threads < 0 {
		return fmt.Errorf("thread count must not be negative, got %d", o.Threads)
	}
	if _, err := NewSegmentMatcher(o.PlaylistName); err != nil {
		return err
	}
	return nil
}

// BuildArgs constructs the engine argv. Extra params go right before the output name.
func (o Options) BuildArgs() []string {
	o = o.withDefaults()

	args := []string{
		"-i", o.InputName,
		"-hls_time", strconv.Itoa(o.SegmentDuration),
		"-hls_list_size", strconv.Itoa(o.ListSize),
		"-c:v", o.VideoCodec,
		"-preset", o.Preset,
		"-c:a", o.AudioCodec,
		"-f", "hls",
		"-threads", strconv.Itoa(o.Threads),
	}

	args = append(args, o.ExtraParams...)

	return append(args, o.PlaylistName)
}

// Resolved returns o with defaults applied.
func (o Options) Resolved() Options {
	return o.withDefaults()
}
