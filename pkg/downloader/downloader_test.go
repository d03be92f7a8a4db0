package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDownloader(t *testing.T) {
	d := New(Options{})
	if d == nil {
		t.Fatal("New() returned nil")
	}
	if d.client.Timeout != 10*time.Minute {
		t.Errorf("Expected default timeout 10m, got %v", d.client.Timeout)
	}
	assert.Equal(t, os.FileMode(0644), d.options.Mode)

	dWithTimeout := New(Options{Timeout: 5 * time.Minute})
	if dWithTimeout.client.Timeout != 5*time.Minute {
		t.Errorf("Expected timeout 5m, got %v", dWithTimeout.client.Timeout)
	}
}

func TestDownloader_Download_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "12")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "test content")
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "bin", "ffmpeg")

	var lastRead, lastTotal int64
	d := New(Options{
		URL:        server.URL,
		OutputPath: outputPath,
		Mode:       0755,
		Progress: func(read, total int64) {
			lastRead, lastTotal = read, total
		},
	})

	downloadedPath, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outputPath, downloadedPath)

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "test content", string(content))

	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	assert.Equal(t, int64(12), lastRead)
	assert.Equal(t, int64(12), lastTotal)

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(outputPath), ".*.part"))
	assert.Empty(t, leftovers, "temporary file should be renamed away")
}

func TestDownloader_Download_SkipExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("Server should not be called when file exists and override is false")
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "existing_file")
	require.NoError(t, os.WriteFile(outputPath, []byte("existing data"), 0644))

	d := New(Options{URL: server.URL, OutputPath: outputPath})
	downloadedPath, err := d.Download(context.Background())
	require.NoError(t, err)
	assert.Equal(t, outputPath, downloadedPath)

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "existing data", string(content))
}

func TestDownloader_Download_OverwriteExisting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "new content")
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "overwrite_me")
	require.NoError(t, os.WriteFile(outputPath, []byte("old data"), 0644))

	d := New(Options{URL: server.URL, OutputPath: outputPath, AllowOverride: true})
	_, err := d.Download(context.Background())
	require.NoError(t, err)

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(content))
}

func TestDownloader_Download_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "not_found")
	d := New(Options{URL: server.URL, OutputPath: outputPath})

	_, err := d.Download(context.Background())
	require.Error(t, err)

	se, ok := errors.As(err)
	require.True(t, ok, "expected a StructuredError, got %T", err)
	assert.Equal(t, errors.EngineError, se.Type)
	assert.Equal(t, errors.ErrEngineFetchFailed, se.Code)

	_, statErr := os.Stat(outputPath)
	assert.True(t, os.IsNotExist(statErr), "no file should be left behind")
}

func TestDownloader_Download_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, "content")
	}))
	defer server.Close()

	outputPath := filepath.Join(t.TempDir(), "cancelled")
	d := New(Options{URL: server.URL, OutputPath: outputPath})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Download(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
