package e2e

import (
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Build with: go build -o hlsdrop ./cmd/hlsdrop
const binaryPath = "../../hlsdrop"

func requireBinary(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(binaryPath)
	require.NoError(t, err)
	if !fileExists(path) {
		t.Skip("Binary not found at " + binaryPath + ", skipping test")
	}
	return path
}

func TestCLIHelp(t *testing.T) {
	bin := requireBinary(t)

	out, err := exec.Command(bin, "--help").CombinedOutput()
	require.NoError(t, err)

	for _, expected := range []string{"hlsdrop", "convert", "serve", "watch", "version"} {
		assert.Contains(t, strings.ToLower(string(out)), expected)
	}
}

func TestCLIVersion(t *testing.T) {
	bin := requireBinary(t)

	out, err := exec.Command(bin, "version").CombinedOutput()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "hlsdrop "))
}

func TestCLIConvertPrintsPlaylistURL(t *testing.T) {
	bin := requireBinary(t)
	if !checkFFmpegInstalled() {
		t.Skip("FFmpeg not found, skipping test")
	}

	input := makeTestVideo(t, 5)
	host := newFakeAnonDrop(t)

	cmd := exec.Command(bin, "convert", "-q",
		"-i", input,
		"--endpoint", host.Endpoint(),
		"--segment-duration", "2",
		"--env-file", "",
	)
	done := make(chan struct{})
	var out []byte
	var err error
	go func() {
		out, err = cmd.Output()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Minute):
		_ = cmd.Process.Kill()
		t.Fatal("convert did not finish")
	}
	require.NoError(t, err)

	url := strings.TrimSpace(string(out))
	assert.True(t, strings.HasPrefix(url, host.URL+"/f/"))
	assert.True(t, strings.HasSuffix(url, "/playlist.m3u8"))
	assert.Contains(t, fetch(t, url), host.URL+"/f/1/file.ts")
}

func TestCLIConvertMissingInputFails(t *testing.T) {
	bin := requireBinary(t)

	cmd := exec.Command(bin, "convert", "-i", filepath.Join(t.TempDir(), "missing.mp4"), "--env-file", "")
	out, err := cmd.CombinedOutput()
	require.Error(t, err)
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, string(out), "input file not found")
}
