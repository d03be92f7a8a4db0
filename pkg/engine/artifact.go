package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/heyjunin/HLSdrop/pkg/downloader"
	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/logger"
)

// resolveArtifact finds an executable for binary. Lookup order: explicit path,
// $PATH, a previously fetched copy in the cache, then a fresh fetch from url.
func resolveArtifact(ctx context.Context, binary, url string, opts Options) (string, error) {
	if strings.ContainsAny(binary, `/\`) {
		if isExecutable(binary) {
			return binary, nil
		}
	} else if path, err := exec.LookPath(binary); err == nil {
		return path, nil
	}

	if url == "" {
		return "", errors.New(errors.EngineError, errors.GetErrorMessage(errors.ErrEngineNotFound), binary, errors.ErrEngineNotFound)
	}

	cached := filepath.Join(opts.CacheDir, filepath.Base(binary))
	if isExecutable(cached) {
		return cached, nil
	}

	logger.Info("Fetching engine artifact", "engine", map[string]interface{}{
		"url":  url,
		"path": cached,
	})

	dl := downloader.New(downloader.Options{
		URL:           url,
		OutputPath:    cached,
		Timeout:       opts.FetchTimeout,
		AllowOverride: true,
		Mode:          0755,
	})
	path, err := dl.Download(ctx)
	if err != nil {
		return "", err
	}
	return path, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}
