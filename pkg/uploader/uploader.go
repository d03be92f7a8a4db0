// Package uploader sends conversion artifacts to a hosting service and
// returns the URL each one is reachable at.
package uploader

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/heyjunin/HLSdrop/pkg/metrics"
)

// Kind tells a host what an artifact is, which decides its hosted file name.
type Kind string

const (
	KindSegment  Kind = "segment"
	KindPlaylist Kind = "playlist"
)

// Content types sent with each kind.
const (
	SegmentContentType  = "video/MP2T"
	PlaylistContentType = "application/x-mpegURL"
)

// ContentType returns the MIME type used for k.
func (k Kind) ContentType() string {
	if k == KindPlaylist {
		return PlaylistContentType
	}
	return SegmentContentType
}

// HostedName is the trailing path segment a host serves k under.
func (k Kind) HostedName() string {
	if k == KindPlaylist {
		return "playlist.m3u8"
	}
	return "file.ts"
}

// Artifact is one file to upload.
type Artifact struct {
	// Name is the file name sent to the host, e.g. output3.ts or playlist.m3u8.
	Name string
	Kind Kind
	Body io.Reader
	// Size is the body length in bytes if known, otherwise -1.
	Size int64
}

// Host uploads artifacts. Implementations make one attempt per call.
type Host interface {
	// Name identifies the host in logs ("AnonDrop", "S3").
	Name() string
	// Upload stores a and returns the URL it can be fetched from.
	Upload(ctx context.Context, a Artifact) (string, error)
}

// LogFunc receives human-readable upload events.
type LogFunc func(message string)

// Uploader wraps a Host with the log lines and metrics every upload gets.
type Uploader struct {
	host Host
	log  LogFunc
}

// New wraps host. log may be nil.
func New(host Host, log LogFunc) *Uploader {
	if log == nil {
		log = func(string) {}
	}
	return &Uploader{host: host, log: log}
}

// RunScoped is implemented by hosts that namespace uploads per conversion.
type RunScoped interface {
	ForRun(id string) Host
}

// ForRun returns an Uploader bound to a per-conversion host when the host supports it.
func (u *Uploader) ForRun(id string) *Uploader {
	if rs, ok := u.host.(RunScoped); ok {
		return &Uploader{host: rs.ForRun(id), log: u.log}
	}
	return u
}

// Upload makes exactly one attempt to store art and returns its hosted URL.
func (u *Uploader) Upload(ctx context.Context, art Artifact) (string, error) {
	hostName := u.host.Name()
	kind := string(art.Kind)

	u.log(fmt.Sprintf("Uploading %s to %s...", art.Name, hostName))

	start := time.Now()
	url, err := u.host.Upload(ctx, art)
	metrics.UploadDuration.WithLabelValues(hostName, kind).Observe(time.Since(start).Seconds())
	metrics.UploadsTotal.WithLabelValues(hostName, kind, metrics.StatusLabel(err)).Inc()

	if err != nil {
		u.log(fmt.Sprintf("Failed to upload %s", art.Name))
		return "", err
	}
	if art.Size > 0 {
		metrics.UploadBytes.WithLabelValues(hostName, kind).Add(float64(art.Size))
	}

	u.log(fmt.Sprintf("Successfully uploaded %s", art.Name))
	return url, nil
}
