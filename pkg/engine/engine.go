// Package engine wraps the external transcoding engine (ffmpeg) behind the
// narrow boundary the pipeline needs: load once, write a file into working
// storage, execute a command, read files back, and stream diagnostics.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/logger"
)

// LogFunc receives one diagnostic line emitted by the engine.
type LogFunc func(message string)

// Engine is the transcoding engine boundary.
type Engine interface {
	Load(ctx context.Context) error
	Loaded() bool
	OnLog(fn LogFunc)
	Reset() error
	WriteFile(name string, r io.Reader) error
	Exec(ctx context.Context, args []string) error
	ReadFile(name string) ([]byte, error)
	Probe(ctx context.Context, name string) (*MediaInfo, error)
	Close() error
}

// Options configures where the engine binaries come from and where it works.
type Options struct {
	// CoreBinary is the ffmpeg executable name or path.
	CoreBinary string `yaml:"core_binary"`
	// ProbeBinary is the ffprobe executable name or path.
	ProbeBinary string `yaml:"probe_binary"`
	// CoreURL is fetched into CacheDir when CoreBinary cannot be found.
	CoreURL string `yaml:"core_url"`
	// ProbeURL is fetched into CacheDir when ProbeBinary cannot be found.
	ProbeURL string `yaml:"probe_url"`
	// CacheDir stores fetched binaries between runs.
	CacheDir string `yaml:"cache_dir"`
	// WorkDir is the parent of the per-engine working storage. Defaults to os.TempDir().
	WorkDir string `yaml:"work_dir"`
	// FetchTimeout bounds each artifact download.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// FailFast makes a failed Load abort the conversion.
	FailFast bool `yaml:"fail_fast"`
}

// DefaultOptions returns options that use ffmpeg and ffprobe from $PATH.
func DefaultOptions() Options {
	return Options{
		CoreBinary:   "ffmpeg",
		ProbeBinary:  "ffprobe",
		CacheDir:     filepath.Join(os.TempDir(), "hlsdrop-engine"),
		FetchTimeout: 10 * time.Minute,
		FailFast:     true,
	}
}

// FFmpeg runs ffmpeg as a subprocess inside a private working directory.
type FFmpeg struct {
	options Options
	logger  logger.Logger

	mu        sync.Mutex
	loaded    bool
	corePath  string
	probePath string
	workDir   string
	logFuncs  []LogFunc
}

// New creates an unloaded FFmpeg engine.
func New(options Options, log logger.Logger) *FFmpeg {
	def := DefaultOptions()
	if options.CoreBinary == "" {
		options.CoreBinary = def.CoreBinary
	}
	if options.ProbeBinary == "" {
		options.ProbeBinary = def.ProbeBinary
	}
	if options.CacheDir == "" {
		options.CacheDir = def.CacheDir
	}
	if options.FetchTimeout == 0 {
		options.FetchTimeout = def.FetchTimeout
	}
	if log == nil {
		log = logger.NewLogger()
	}
	return &FFmpeg{options: options, logger: log}
}

// Load resolves the engine binaries, verifies ffmpeg and creates working storage.
// It does nothing once it has succeeded; after a failure it may be called again.
func (f *FFmpeg) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loaded {
		return nil
	}

	corePath, err := resolveArtifact(ctx, f.options.CoreBinary, f.options.CoreURL, f.options)
	if err != nil {
		return err
	}

	verify := exec.CommandContext(ctx, corePath, "-hide_banner", "-version")
	if out, err := verify.Output(); err != nil {
		return errors.Wrap(err, errors.EngineError, errors.GetErrorMessage(errors.ErrEngineVerifyFailed), errors.ErrEngineVerifyFailed)
	} else if first, _, _ := strings.Cut(string(out), "\n"); first != "" {
		f.logger.Info("Transcoding engine verified", "engine", map[string]interface{}{
			"path":    corePath,
			"version": first,
		})
	}

	probePath, err := resolveArtifact(ctx, f.options.ProbeBinary, f.options.ProbeURL, f.options)
	if err != nil {
		f.logger.Warn("ffprobe unavailable, input probing disabled", "engine", map[string]interface{}{
			"error": err.Error(),
		})
		probePath = ""
	}

	if f.options.WorkDir != "" {
		if err := os.MkdirAll(f.options.WorkDir, 0755); err != nil {
			return errors.Wrap(err, errors.EngineError, errors.GetErrorMessage(errors.ErrEngineWorkdirFailed), errors.ErrEngineWorkdirFailed)
		}
	}
	workDir, err := os.MkdirTemp(f.options.WorkDir, "hlsdrop-*")
	if err != nil {
		return errors.Wrap(err, errors.EngineError, errors.GetErrorMessage(errors.ErrEngineWorkdirFailed), errors.ErrEngineWorkdirFailed)
	}

	f.corePath = corePath
	f.probePath = probePath
	f.workDir = workDir
	f.loaded = true
	return nil
}

// Loaded reports whether Load has succeeded.
func (f *FFmpeg) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loaded
}

// OnLog registers fn to receive every diagnostic line from Exec.
func (f *FFmpeg) OnLog(fn LogFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logFuncs = append(f.logFuncs, fn)
}

// WorkDir returns the working storage directory, empty before Load.
func (f *FFmpeg) WorkDir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workDir
}

// Reset removes every file from working storage.
func (f *FFmpeg) Reset() error {
	dir, err := f.requireLoaded()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to list working storage", errors.ErrFileSystem)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return errors.Wrap(err, errors.SystemError, "Failed to clear working storage", errors.ErrFileSystem)
		}
	}
	return nil
}

// WriteFile copies r into working storage under name.
func (f *FFmpeg) WriteFile(name string, r io.Reader) error {
	path, err := f.storagePath(name)
	if err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.StagingError, errors.GetErrorMessage(errors.ErrStagingWriteFailed), errors.ErrStagingWriteFailed)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errors.Wrap(err, errors.StagingError, errors.GetErrorMessage(errors.ErrStagingWriteFailed), errors.ErrStagingWriteFailed)
	}
	if err := out.Close(); err != nil {
		return errors.Wrap(err, errors.StagingError, errors.GetErrorMessage(errors.ErrStagingWriteFailed), errors.ErrStagingWriteFailed)
	}
	return nil
}

// ReadFile returns the contents of name from working storage.
func (f *FFmpeg) ReadFile(name string) ([]byte, error) {
	path, err := f.storagePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.SystemError, "Failed to read from working storage", errors.ErrFileSystem)
	}
	return data, nil
}

// Exec runs ffmpeg with args inside working storage and blocks until it exits.
// Every stderr line is forwarded to the registered log callbacks.
func (f *FFmpeg) Exec(ctx context.Context, args []string) error {
	dir, err := f.requireLoaded()
	if err != nil {
		return err
	}

	f.mu.Lock()
	corePath := f.corePath
	callbacks := append([]LogFunc(nil), f.logFuncs...)
	f.mu.Unlock()

	fullArgs := append([]string{"-hide_banner", "-nostdin", "-y"}, args...)
	f.logger.Debug("Executing FFmpeg command", "ffmpeg", map[string]interface{}{
		"command": corePath + " " + strings.Join(fullArgs, " "),
		"dir":     dir,
	})

	cmd := exec.CommandContext(ctx, corePath, fullArgs...)
	cmd.Dir = dir

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, errors.TranscodingError, errors.GetErrorMessage(errors.ErrTranscodeStartFailed), errors.ErrTranscodeStartFailed)
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.TranscodingError, errors.GetErrorMessage(errors.ErrTranscodeStartFailed), errors.ErrTranscodeStartFailed)
	}

	var lastLine string
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		scanner.Split(ScanEngineLines)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			lastLine = line
			f.logger.Debug(line, "ffmpeg", nil)
			for _, fn := range callbacks {
				fn(line)
			}
		}
	}()

	<-done
	err = cmd.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), errors.TranscodingError, errors.GetErrorMessage(errors.ErrTranscodeCanceled), errors.ErrTranscodeCanceled)
		}
		details := err.Error()
		if lastLine != "" {
			details += ": " + lastLine
		}
		se := errors.Wrap(err, errors.TranscodingError, errors.GetErrorMessage(errors.ErrTranscodeFailed), errors.ErrTranscodeFailed)
		se.Details = details
		return se
	}
	return nil
}

// Close removes working storage. The engine must be loaded again before reuse.
func (f *FFmpeg) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		return nil
	}
	f.loaded = false
	dir := f.workDir
	f.workDir = ""
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, errors.SystemError, "Failed to remove working storage", errors.ErrFileSystem)
	}
	return nil
}

func (f *FFmpeg) requireLoaded() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		return "", errors.New(errors.EngineError, errors.GetErrorMessage(errors.ErrEngineNotLoaded), "", errors.ErrEngineNotLoaded)
	}
	return f.workDir, nil
}

func (f *FFmpeg) storagePath(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir, err := f.requireLoaded()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ValidateName accepts only plain file names for working storage.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrInvalidFileName), name, errors.ErrInvalidFileName)
	}
	return nil
}

// ScanEngineLines is a bufio.SplitFunc that treats both '\n' and '\r' as line
// ends; ffmpeg redraws its stats line with carriage returns.
func ScanEngineLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
