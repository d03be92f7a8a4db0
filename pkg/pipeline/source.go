package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/heyjunin/HLSdrop/pkg/downloader"
	"github.com/heyjunin/HLSdrop/pkg/errors"
)

// Source is the user-selected video. Its content is read exactly once.
type Source struct {
	// Name is the display name used in log lines.
	Name string
	// Open returns the content. The pipeline closes it after staging.
	Open func() (io.ReadCloser, error)
}

// FileSource reads a local file.
func FileSource(path string) Source {
	return Source{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, errors.Wrap(err, errors.StagingError, errors.GetErrorMessage(errors.ErrSourceUnreadable), errors.ErrSourceUnreadable)
			}
			return f, nil
		},
	}
}

// ReaderSource wraps an already open reader, such as a multipart file part.
func ReaderSource(name string, r io.Reader) Source {
	return Source{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			if rc, ok := r.(io.ReadCloser); ok {
				return rc, nil
			}
			return io.NopCloser(r), nil
		},
	}
}

// RemoteSource downloads rawURL into dir and returns it as a FileSource.
func RemoteSource(ctx context.Context, rawURL, dir string, progress downloader.ProgressFunc) (Source, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Source{}, errors.New(errors.ValidationError, "Invalid input URL", rawURL, errors.ErrInvalidOption)
	}

	name := filepath.Base(parsed.Path)
	if name == "" || name == "." || name == "/" {
		name = fmt.Sprintf("download_%d.mp4", time.Now().Unix())
	}

	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Source{}, errors.Wrap(err, errors.SystemError, "Failed to create download directory", errors.ErrFileSystem)
	}

	path, err := downloader.New(downloader.Options{
		URL:           rawURL,
		OutputPath:    filepath.Join(dir, name),
		Progress:      progress,
		AllowOverride: true,
	}).Download(ctx)
	if err != nil {
		return Source{}, errors.Wrap(err, errors.StagingError, errors.GetErrorMessage(errors.ErrSourceUnreadable), errors.ErrSourceUnreadable)
	}
	return FileSource(path), nil
}
