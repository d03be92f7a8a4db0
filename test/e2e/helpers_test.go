package e2e

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func checkFFmpegInstalled() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// makeTestVideo renders a short synthetic clip with ffmpeg's lavfi sources.
func makeTestVideo(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test_video.mp4")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-y",
		"-f", "lavfi", "-i", fmt.Sprintf("testsrc=duration=%d:size=320x240:rate=25", seconds),
		"-f", "lavfi", "-i", fmt.Sprintf("sine=frequency=440:duration=%d", seconds),
		"-c:v", "libx264", "-preset", "ultrafast", "-c:a", "aac", "-shortest",
		path,
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

// fakeAnonDrop mimics the hosting endpoint: it stores each upload and answers
// with an HTML snippet linking to it. Stored files are served back under
// /f/<n>/<hosted name>.
type fakeAnonDrop struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	names []string
}

func newFakeAnonDrop(t *testing.T) *fakeAnonDrop {
	t.Helper()
	f := &fakeAnonDrop{files: map[string][]byte{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		file, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		f.mu.Lock()
		f.names = append(f.names, hdr.Filename)
		id := len(f.names)
		hosted := "file.ts"
		if hdr.Filename == "playlist.m3u8" {
			hosted = "playlist.m3u8"
		}
		f.files[fmt.Sprintf("/f/%d/%s", id, hosted)] = data
		f.mu.Unlock()

		fmt.Fprintf(w, "<div><a href='%s/f/%d'>%s</a></div>", f.URL, id, hdr.Filename)
	})
	mux.HandleFunc("/f/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		data, ok := f.files[r.URL.Path]
		f.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAnonDrop) Endpoint() string {
	return f.URL + "/upload"
}

func (f *fakeAnonDrop) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func fetch(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
