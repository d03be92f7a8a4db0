// Package pipeline runs one conversion end to end: load the engine, stage the
// source, transcode to HLS, upload every segment, rewrite the playlist with the
// hosted URLs and upload it.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/heyjunin/HLSdrop/pkg/engine"
	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/hls"
	"github.com/heyjunin/HLSdrop/pkg/logger"
	"github.com/heyjunin/HLSdrop/pkg/metrics"
	"github.com/heyjunin/HLSdrop/pkg/progress"
	"github.com/heyjunin/HLSdrop/pkg/uploader"
)

// Progress checkpoints.
const (
	percentStarted     = 10
	percentStaged      = 20
	percentTranscoded  = 50
	percentSegmentPool = 40
)

// SegmentUpload pairs a generated segment with its hosted URL.
type SegmentUpload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Result describes a finished conversion.
type Result struct {
	ConversionID string          `json:"conversion_id"`
	PlaylistURL  string          `json:"playlist_url"`
	Segments     []SegmentUpload `json:"segments"`
	Duration     time.Duration   `json:"duration"`
}

// Converter drives conversions one at a time over a shared engine.
type Converter struct {
	engine   engine.Engine
	uploader *uploader.Uploader
	reporter progress.Reporter
	logger   logger.Logger
	options  Options
	matcher  *hls.SegmentMatcher
	newID    func() string

	running sync.Mutex

	// transcode interpolation, fed by engine log lines
	mu          sync.Mutex
	transcoding bool
	mediaLength time.Duration
}

// New creates a Converter with the global logger.
func New(eng engine.Engine, host uploader.Host, reporter progress.Reporter, options Options) (*Converter, error) {
	return NewWithDeps(eng, host, reporter, options, logger.NewLogger())
}

// NewWithDeps creates a Converter with a custom logger.
func NewWithDeps(eng engine.Engine, host uploader.Host, reporter progress.Reporter, options Options, log logger.Logger) (*Converter, error) {
	if eng == nil {
		return nil, errors.New(errors.ValidationError, "Engine is required", "", errors.ErrInvalidOption)
	}
	if host == nil {
		return nil, errors.New(errors.ValidationError, "Upload host is required", "", errors.ErrInvalidOption)
	}
	if reporter == nil {
		reporter = progress.NewReporter()
	}
	if options.UploadConcurrency == 0 {
		options.UploadConcurrency = 1
	}
	options.Transcode = options.Transcode.Resolved()
	if err := ValidateOptions(options); err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, errors.GetErrorMessage(errors.ErrInvalidOption), errors.ErrInvalidOption)
	}
	matcher, err := hls.NewSegmentMatcher(options.Transcode.PlaylistName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ValidationError, errors.GetErrorMessage(errors.ErrInvalidOption), errors.ErrInvalidOption)
	}

	c := &Converter{
		engine:   eng,
		reporter: reporter,
		logger:   log,
		options:  options,
		matcher:  matcher,
		newID:    uuid.NewString,
	}
	c.uploader = uploader.New(host, reporter.Log)
	eng.OnLog(c.onEngineLog)
	return c, nil
}

// Reporter returns the reporter the converter writes to.
func (c *Converter) Reporter() progress.Reporter {
	return c.reporter
}

// Busy reports whether a conversion is in flight.
func (c *Converter) Busy() bool {
	if c.running.TryLock() {
		c.running.Unlock()
		return false
	}
	return true
}

// Outcome is delivered once a conversion started with Start finishes.
type Outcome struct {
	Result Result
	Err    error
}

// Convert runs a full conversion of src. It returns ErrBusy without touching
// the reporter when another conversion is running. Every other failure is
// recorded on the reporter as a single failed state and one "Error:" log line.
func (c *Converter) Convert(ctx context.Context, src Source) (Result, error) {
	if !c.running.TryLock() {
		return Result{}, busyError()
	}
	defer c.running.Unlock()

	id := c.newID()
	c.reporter.Reset(id)
	return c.convert(ctx, id, src)
}

// Start accepts a conversion and runs it in the background. It returns the
// conversion ID and a channel receiving exactly one Outcome, or ErrBusy.
func (c *Converter) Start(ctx context.Context, src Source) (string, <-chan Outcome, error) {
	if !c.running.TryLock() {
		return "", nil, busyError()
	}

	id := c.newID()
	c.reporter.Reset(id)

	done := make(chan Outcome, 1)
	go func() {
		defer close(done)
		defer c.running.Unlock()
		res, err := c.convert(ctx, id, src)
		done <- Outcome{Result: res, Err: err}
	}()
	return id, done, nil
}

func busyError() error {
	return errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrBusy), "", errors.ErrBusy)
}

// convert requires c.running to be held and the reporter reset for id.
func (c *Converter) convert(ctx context.Context, id string, src Source) (Result, error) {
	metrics.ConversionsInFlight.Inc()
	defer metrics.ConversionsInFlight.Dec()

	c.logger.Info("Conversion started", "pipeline", map[string]interface{}{
		"id":     id,
		"source": src.Name,
	})

	start := time.Now()
	result, err := c.run(ctx, id, src)
	result.ConversionID = id
	result.Duration = time.Since(start)

	metrics.ConversionDuration.Observe(result.Duration.Seconds())
	metrics.ConversionsTotal.WithLabelValues(metrics.StatusLabel(err)).Inc()

	if err != nil {
		se := errors.Normalize(err)
		message := errors.Describe(se)
		c.reporter.Fail(message)
		c.reporter.Log("Error: " + message)
		c.logger.Error("Conversion failed", "pipeline", map[string]interface{}{
			"id":    id,
			"type":  se.Type,
			"code":  se.Code,
			"error": se.Error(),
		})
		return result, se
	}

	c.logger.Info("Conversion complete", "pipeline", map[string]interface{}{
		"id":       id,
		"url":      result.PlaylistURL,
		"segments": len(result.Segments),
		"duration": result.Duration.String(),
	})
	return result, nil
}

func (c *Converter) run(ctx context.Context, id string, src Source) (Result, error) {
	var result Result

	if src.Open == nil {
		return result, errors.New(errors.ValidationError, "Source is required", "", errors.ErrInvalidOption)
	}

	if err := c.loadEngine(ctx); err != nil {
		return result, err
	}

	c.reporter.Log(fmt.Sprintf("Starting conversion of %s", src.Name))
	c.reporter.Update(percentStarted, progress.StageStaging, "Starting conversion...")

	if err := c.stage(src); err != nil {
		return result, err
	}
	c.reporter.Update(percentStaged, progress.StageStaging, "")

	if err := c.transcode(ctx); err != nil {
		return result, err
	}
	c.reporter.Update(percentTranscoded, progress.StageTranscoding, "")

	c.reporter.Log("Reading generated m3u8 file")
	data, err := c.engine.ReadFile(c.options.Transcode.PlaylistName)
	if err != nil {
		return result, errors.Wrap(err, errors.PlaylistError, errors.GetErrorMessage(errors.ErrPlaylistUnreadable), errors.ErrPlaylistUnreadable)
	}
	playlist := string(data)

	segments := c.matcher.Discover(playlist)
	if len(segments) == 0 {
		return result, errors.New(errors.PlaylistError, errors.GetErrorMessage(errors.ErrNoSegments), c.options.Transcode.PlaylistName, errors.ErrNoSegments)
	}
	metrics.SegmentsPerConversion.Observe(float64(len(segments)))
	c.crossCheck(playlist, len(segments))

	up := c.uploader.ForRun(id)

	uploads, err := c.uploadSegments(ctx, up, segments)
	if err != nil {
		return result, err
	}
	result.Segments = uploads

	uploaded := percentTranscoded + len(segments)*(percentSegmentPool/len(segments))

	stageStart := time.Now()
	c.reporter.Update(uploaded, progress.StageRewriting, "")
	c.reporter.Log("Updating m3u8 with uploaded segment URLs")
	urls := make(map[string]string, len(uploads))
	for _, u := range uploads {
		urls[u.Name] = u.URL
	}
	rewritten := c.matcher.Rewrite(playlist, urls)
	observeStage(progress.StageRewriting, stageStart)

	stageStart = time.Now()
	c.reporter.Update(uploaded, progress.StageUploadingPlaylist, "Uploading playlist...")
	playlistURL, err := up.Upload(ctx, uploader.Artifact{
		Name: uploader.KindPlaylist.HostedName(),
		Kind: uploader.KindPlaylist,
		Body: bytes.NewReader([]byte(rewritten)),
		Size: int64(len(rewritten)),
	})
	observeStage(progress.StageUploadingPlaylist, stageStart)
	if err != nil {
		return result, err
	}

	result.PlaylistURL = playlistURL
	c.reporter.Complete(playlistURL)
	c.reporter.Log("Conversion process completed successfully")
	return result, nil
}

func (c *Converter) loadEngine(ctx context.Context) error {
	if !c.engine.Loaded() {
		start := time.Now()
		c.reporter.Update(0, progress.StageLoadingEngine, "Loading FFmpeg...")
		err := c.engine.Load(ctx)
		observeStage(progress.StageLoadingEngine, start)
		metrics.EngineLoadsTotal.WithLabelValues(metrics.StatusLabel(err)).Inc()
		if err != nil {
			c.reporter.Log("Failed to load FFmpeg")
			if c.options.FailFast {
				return err
			}
			c.logger.Warn("Engine failed to load, continuing", "pipeline", map[string]interface{}{
				"error": err.Error(),
			})
			return nil
		}
		c.reporter.Log("FFmpeg loaded successfully")
	}

	// leftovers from a previous conversion must not be mistaken for new segments
	if c.engine.Loaded() {
		return c.engine.Reset()
	}
	return nil
}

func (c *Converter) stage(src Source) error {
	start := time.Now()
	defer observeStage(progress.StageStaging, start)

	c.reporter.Log("Writing input file to virtual filesystem")
	rc, err := src.Open()
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.Wrap(err, errors.StagingError, errors.GetErrorMessage(errors.ErrSourceUnreadable), errors.ErrSourceUnreadable)
	}
	defer rc.Close()

	return c.engine.WriteFile(c.options.Transcode.InputName, rc)
}

func (c *Converter) transcode(ctx context.Context) error {
	start := time.Now()
	defer observeStage(progress.StageTranscoding, start)

	var length time.Duration
	if info, err := c.engine.Probe(ctx, c.options.Transcode.InputName); err == nil && info != nil {
		length = info.Duration
	} else if err != nil {
		c.logger.Debug("Probe unavailable, transcode progress will jump", "pipeline", map[string]interface{}{
			"error": err.Error(),
		})
	}

	c.reporter.Update(percentStaged, progress.StageTranscoding, "Converting to HLS...")
	c.reporter.Log("Beginning HLS conversion")

	c.mu.Lock()
	c.transcoding = true
	c.mediaLength = length
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.transcoding = false
		c.mu.Unlock()
	}()

	args := c.options.Transcode.BuildArgs()
	c.logger.Debug("Running engine", "pipeline", map[string]interface{}{
		"args": args,
	})
	return c.engine.Exec(ctx, args)
}

// onEngineLog forwards engine output to the progress log and, while
// transcoding, moves progress between the staged and transcoded checkpoints.
func (c *Converter) onEngineLog(line string) {
	c.reporter.Log(line)

	c.mu.Lock()
	active, length := c.transcoding, c.mediaLength
	c.mu.Unlock()
	if !active || length <= 0 {
		return
	}

	done, ok := engine.ParseProgressTime(line)
	if !ok {
		return
	}
	span := percentTranscoded - percentStaged
	pct := percentStaged + int(float64(span)*done.Seconds()/length.Seconds())
	if pct >= percentTranscoded {
		pct = percentTranscoded - 1
	}
	if pct > percentStaged {
		c.reporter.Update(pct, progress.StageTranscoding, "")
	}
}

// crossCheck compares the regex discovery against a full playlist decode.
// A mismatch is only logged.
func (c *Converter) crossCheck(playlist string, discovered int) {
	info, err := hls.Inspect(playlist)
	if err != nil {
		c.logger.Warn("Generated playlist could not be decoded", "pipeline", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	fields := map[string]interface{}{
		"segments":        discovered,
		"decoded":         info.Segments,
		"target_duration": info.TargetDuration.String(),
		"total_duration":  info.TotalDuration.String(),
	}
	if info.Segments != discovered {
		c.logger.Warn("Segment count differs from decoded playlist", "pipeline", fields)
		return
	}
	c.logger.Debug("Playlist inspected", "pipeline", fields)
}

// uploadSegments uploads every segment and returns them in playlist order.
// No new upload starts once one has failed.
func (c *Converter) uploadSegments(ctx context.Context, up *uploader.Uploader, segments []string) ([]SegmentUpload, error) {
	start := time.Now()
	defer observeStage(progress.StageUploadingSegments, start)

	step := percentSegmentPool / len(segments)
	results := make([]SegmentUpload, len(segments))

	var mu sync.Mutex
	done := 0
	report := func(status string, finished bool) {
		mu.Lock()
		defer mu.Unlock()
		if finished {
			done++
		}
		c.reporter.Update(percentTranscoded+done*step, progress.StageUploadingSegments, status)
	}

	uploadOne := func(ctx context.Context, i int) error {
		name := segments[i]
		report(fmt.Sprintf("Uploading segment %s...", name), false)

		data, err := c.engine.ReadFile(name)
		if err != nil {
			return errors.Wrap(err, errors.PlaylistError, errors.GetErrorMessage(errors.ErrSegmentUnreadable), errors.ErrSegmentUnreadable)
		}
		url, err := up.Upload(ctx, uploader.Artifact{
			Name: name,
			Kind: uploader.KindSegment,
			Body: bytes.NewReader(data),
			Size: int64(len(data)),
		})
		if err != nil {
			return err
		}
		results[i] = SegmentUpload{Name: name, URL: url}
		report("", true)
		return nil
	}

	if c.options.UploadConcurrency <= 1 {
		for i := range segments {
			if err := ctx.Err(); err != nil {
				return nil, errors.Wrap(err, errors.UploadError, errors.GetErrorMessage(errors.ErrUploadRequestFailed), errors.ErrUploadRequestFailed)
			}
			if err := uploadOne(ctx, i); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.options.UploadConcurrency)
	for i := range segments {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return uploadOne(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.UploadError, errors.GetErrorMessage(errors.ErrUploadRequestFailed), errors.ErrUploadRequestFailed)
	}
	return results, nil
}

func observeStage(stage progress.Stage, start time.Time) {
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
