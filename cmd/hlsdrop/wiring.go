package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heyjunin/HLSdrop/pkg/config"
	"github.com/heyjunin/HLSdrop/pkg/engine"
	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/logger"
	"github.com/heyjunin/HLSdrop/pkg/pipeline"
	"github.com/heyjunin/HLSdrop/pkg/progress"
	"github.com/heyjunin/HLSdrop/pkg/uploader"
)

// conversionFlags are shared by every command that converts.
type conversionFlags struct {
	ffmpeg          string
	segmentDuration int
	threads         int
	extraParams     []string
	host            string
	endpoint        string
	concurrency     int
	failFast        bool
}

func (f *conversionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.ffmpeg, "ffmpeg", "ffmpeg", "Path to ffmpeg binary")
	cmd.Flags().IntVar(&f.segmentDuration, "segment-duration", 10, "HLS segment duration in seconds")
	cmd.Flags().IntVar(&f.threads, "threads", 4, "Number of ffmpeg threads")
	cmd.Flags().StringArrayVar(&f.extraParams, "ffmpeg-param", []string{}, "Extra parameters to pass to ffmpeg")
	cmd.Flags().StringVar(&f.host, "host", config.HostAnonDrop, "Upload host: anondrop or s3")
	cmd.Flags().StringVar(&f.endpoint, "endpoint", "", "Upload endpoint for the anondrop host")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 1, "Number of segments uploaded at once")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", true, "Abort when ffmpeg cannot be loaded")
}

// apply copies explicitly set flags over the loaded configuration.
func (f *conversionFlags) apply(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("ffmpeg") {
		c.Engine.CoreBinary = f.ffmpeg
	}
	if flags.Changed("segment-duration") {
		c.Transcode.SegmentDuration = f.segmentDuration
	}
	if flags.Changed("threads") {
		c.Transcode.Threads = f.threads
	}
	if flags.Changed("ffmpeg-param") {
		c.Transcode.ExtraParams = f.extraParams
	}
	if flags.Changed("host") {
		c.Upload.Host = f.host
	}
	if flags.Changed("endpoint") {
		c.Upload.Endpoint = f.endpoint
	}
	if flags.Changed("concurrency") {
		c.Upload.Concurrency = f.concurrency
	}
	if flags.Changed("fail-fast") {
		c.Engine.FailFast = f.failFast
	}
	return c.Validate()
}

// buildHost returns the configured upload host.
func buildHost(ctx context.Context, c *config.Config) (uploader.Host, error) {
	switch strings.ToLower(c.Upload.Host) {
	case config.HostS3:
		s3, err := uploader.NewS3(ctx, c.Upload.S3)
		if err != nil {
			return nil, err
		}
		return s3, nil
	case config.HostAnonDrop:
		return uploader.NewAnonDrop(uploader.AnonDropOptions{
			Endpoint: c.Upload.Endpoint,
			Timeout:  c.Upload.Timeout,
		}), nil
	default:
		return nil, errors.New(errors.ValidationError, errors.GetErrorMessage(errors.ErrInvalidOption), "unknown upload host "+c.Upload.Host, errors.ErrInvalidOption)
	}
}

// buildConverter wires engine, host and reporter into a Converter.
// The returned engine must be closed by the caller.
func buildConverter(ctx context.Context, c *config.Config, reporter progress.Reporter) (*pipeline.Converter, *engine.FFmpeg, error) {
	host, err := buildHost(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	eng := engine.New(c.Engine, logger.NewLogger())
	conv, err := pipeline.New(eng, host, reporter, pipeline.Options{
		Transcode:         c.Transcode,
		UploadConcurrency: c.Upload.Concurrency,
		FailFast:          c.Engine.FailFast,
	})
	if err != nil {
		eng.Close()
		return nil, nil, err
	}
	return conv, eng, nil
}

// reporterOptions returns the progress options shared by every command.
func reporterOptions(c *config.Config) []progress.ReporterOption {
	var opts []progress.ReporterOption
	if c.Progress.File != "" {
		opts = append(opts,
			progress.WithProgressFile(c.Progress.File),
			progress.WithProgressFileFormat(c.Progress.Format),
		)
	}
	if c.Progress.Throttle > 0 {
		opts = append(opts, progress.WithThrottle(c.Progress.Throttle))
	}
	return opts
}
