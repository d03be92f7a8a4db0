package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/logger"
)

// ProgressFunc receives the number of bytes read so far and the expected total
// (-1 when the server did not send a Content-Length).
type ProgressFunc func(read, total int64)

// Options represents configuration options for the Downloader.
type Options struct {
	// URL is the web address of the artifact to fetch.
	URL string
	// OutputPath is where the artifact is stored.
	OutputPath string
	// Timeout sets the maximum time allowed for the HTTP download.
	// Defaults to 10 minutes if not specified.
	Timeout time.Duration
	// Progress is optional and called after every read.
	Progress ProgressFunc
	// AllowOverride, if true, re-downloads even when OutputPath already exists.
	AllowOverride bool
	// Mode is applied to the finished file. Defaults to 0644.
	Mode os.FileMode
	// Client replaces the default HTTP client.
	Client *http.Client
}

// Downloader fetches a single artifact to disk.
// The file only appears at OutputPath once it is complete.
type Downloader struct {
	client  *http.Client
	options Options
}

// New creates a new Downloader instance configured with the provided options.
func New(options Options) *Downloader {
	if options.Timeout == 0 {
		options.Timeout = 10 * time.Minute
	}
	if options.Mode == 0 {
		options.Mode = 0644
	}

	client := options.Client
	if client == nil {
		client = &http.Client{Timeout: options.Timeout}
	}

	return &Downloader{
		client:  client,
		options: options,
	}
}

// Download fetches the URL into OutputPath and returns the path.
// If the file exists and AllowOverride is false, the download is skipped.
func (d *Downloader) Download(ctx context.Context) (string, error) {
	outputDir := filepath.Dir(d.options.OutputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create output directory", errors.ErrFileSystem)
	}

	if _, err := os.Stat(d.options.OutputPath); err == nil && !d.options.AllowOverride {
		logger.Info("File already exists, skipping download", "downloader", map[string]interface{}{
			"path": d.options.OutputPath,
		})
		return d.options.OutputPath, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.options.URL, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.EngineError, "Failed to create HTTP request", errors.ErrEngineFetchFailed)
	}

	logger.Info("Starting download", "downloader", map[string]interface{}{
		"url":  d.options.URL,
		"path": d.options.OutputPath,
	})

	resp, err := d.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.EngineError, "Failed to download file", errors.ErrEngineFetchFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New(errors.EngineError, "HTTP request failed", fmt.Sprintf("Status: %s", resp.Status), errors.ErrEngineFetchFailed)
	}

	tmp, err := os.CreateTemp(outputDir, "."+filepath.Base(d.options.OutputPath)+".*.part")
	if err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to create output file", errors.ErrFileSystem)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	var reader io.Reader = resp.Body
	if d.options.Progress != nil {
		reader = &progressReader{
			reader:   resp.Body,
			progress: d.options.Progress,
			size:     resp.ContentLength,
		}
	}

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, errors.EngineError, "Failed to write file", errors.ErrEngineFetchFailed)
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to write file", errors.ErrFileSystem)
	}
	if err := os.Chmod(tmpPath, d.options.Mode); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to set file mode", errors.ErrFileSystem)
	}
	if err := os.Rename(tmpPath, d.options.OutputPath); err != nil {
		return "", errors.Wrap(err, errors.SystemError, "Failed to move downloaded file", errors.ErrFileSystem)
	}

	logger.Info("Download completed", "downloader", map[string]interface{}{
		"path": d.options.OutputPath,
	})

	return d.options.OutputPath, nil
}

// progressReader reports bytes read through a ProgressFunc.
type progressReader struct {
	reader   io.Reader
	progress ProgressFunc
	size     int64
	read     int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.progress(pr.read, pr.size)
	}
	return n, err
}
