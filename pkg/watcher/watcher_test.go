package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/HLSdrop/pkg/logger"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	calls chan string
}

func newRecorder() *recorder {
	return &recorder{calls: make(chan string, 16)}
}

func (r *recorder) handle(_ context.Context, path string) (string, error) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	r.calls <- path
	if filepath.Base(path) == "broken.mp4" {
		return "", fmt.Errorf("engine exploded")
	}
	return "https://host.test/" + filepath.Base(path) + "/playlist.m3u8", nil
}

func (r *recorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func startWatcher(t *testing.T, dir string, rec *recorder) {
	t.Helper()
	w, err := New(Options{Dir: dir, Debounce: 50 * time.Millisecond}, rec.handle, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// let the watch register
	time.Sleep(50 * time.Millisecond)
}

func waitCall(t *testing.T, rec *recorder) string {
	t.Helper()
	select {
	case p := <-rec.calls:
		return p
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for conversion")
		return ""
	}
}

func TestNewValidatesDir(t *testing.T) {
	_, err := New(Options{}, nil, logger.Nop())
	assert.Error(t, err)

	_, err = New(Options{Dir: filepath.Join(t.TempDir(), "missing")}, nil, logger.Nop())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = New(Options{Dir: file}, nil, logger.Nop())
	assert.Error(t, err)
}

func TestMatches(t *testing.T) {
	w, err := New(Options{Dir: t.TempDir(), Extension: "mp4"}, nil, logger.Nop())
	require.NoError(t, err)

	assert.True(t, w.matches("/in/clip.mp4"))
	assert.True(t, w.matches("/in/CLIP.MP4"))
	assert.False(t, w.matches("/in/clip.mov"))
	assert.False(t, w.matches("/in/.clip.mp4"))
	assert.False(t, w.matches("/in/clip.mp4.part"))
}

func TestConvertsNewFileOnce(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec)

	path := filepath.Join(dir, "clip.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	assert.Equal(t, path, waitCall(t, rec))

	// later writes do not convert again
	require.NoError(t, os.WriteFile(path, []byte("more"), 0644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, []string{path}, rec.Paths())
}

func TestIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".partial.mp4"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.mp4"), []byte("x"), 0644))

	assert.Equal(t, filepath.Join(dir, "real.mp4"), waitCall(t, rec))
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, rec.Paths(), 1)
}

func TestContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	startWatcher(t, dir, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.mp4"), []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "broken.mp4"), waitCall(t, rec))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.mp4"), []byte("x"), 0644))
	assert.Equal(t, filepath.Join(dir, "good.mp4"), waitCall(t, rec))
}
