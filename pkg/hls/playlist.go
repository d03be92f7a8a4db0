package hls

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/grafov/m3u8"
)

// SegmentMatcher discovers and rewrites segment names the engine derives from
// the playlist name: "output.m3u8" yields "output0.ts", "output1.ts", ...
type SegmentMatcher struct {
	re *regexp.Regexp
}

// NewSegmentMatcher builds a matcher for the segments of playlistName.
func NewSegmentMatcher(playlistName string) (*SegmentMatcher, error) {
	if playlistName == "" || strings.ContainsAny(playlistName, `/\`) {
		return nil, fmt.Errorf("invalid playlist name %q", playlistName)
	}
	prefix := strings.TrimSuffix(playlistName, path.Ext(playlistName))
	if prefix == "" {
		return nil, fmt.Errorf("invalid playlist name %q", playlistName)
	}
	// Word boundaries keep output1.ts from matching inside xoutput1.ts or output1.tsx.
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(prefix) + `\d+\.ts\b`)
	if err != nil {
		return nil, err
	}
	return &SegmentMatcher{re: re}, nil
}

var defaultMatcher, _ = NewSegmentMatcher(DefaultPlaylistName)

// DiscoverSegments returns the default-named segments referenced by text.
func DiscoverSegments(text string) []string {
	return defaultMatcher.Discover(text)
}

// Rewrite substitutes default-named segments in text with their hosted URLs.
func Rewrite(text string, urls map[string]string) string {
	return defaultMatcher.Rewrite(text, urls)
}

// Discover returns every segment name in order of first appearance, without duplicates.
func (m *SegmentMatcher) Discover(text string) []string {
	matches := m.re.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, name := range matches {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// Rewrite replaces every occurrence of each name in urls with its URL in one
// pass over text. Substituted URLs are never re-scanned. Names missing from
// urls are left as they are.
func (m *SegmentMatcher) Rewrite(text string, urls map[string]string) string {
	return m.re.ReplaceAllStringFunc(text, func(name string) string {
		if u, ok := urls[name]; ok {
			return u
		}
		return name
	})
}

// Info summarizes a media playlist.
type Info struct {
	Segments       int
	TargetDuration time.Duration
	TotalDuration  time.Duration
	Closed         bool
}

// Inspect decodes text as a media playlist.
func Inspect(text string) (Info, error) {
	p, listType, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return Info{}, fmt.Errorf("decode playlist: %w", err)
	}
	if listType != m3u8.MEDIA {
		return Info{}, fmt.Errorf("expected a media playlist")
	}
	media, ok := p.(*m3u8.MediaPlaylist)
	if !ok {
		return Info{}, fmt.Errorf("expected a media playlist")
	}

	info := Info{
		TargetDuration: seconds(media.TargetDuration),
		Closed:         media.Closed,
	}
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		info.Segments++
		info.TotalDuration += seconds(seg.Duration)
	}
	return info, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
