package pipeline

import (
	"fmt"

	"github.com/heyjunin/HLSdrop/pkg/hls"
)

// Options contains settings for the converter.
type Options struct {
	// Transcode is the engine job.
	Transcode hls.Options

	// UploadConcurrency bounds parallel segment uploads. 1 uploads sequentially.
	UploadConcurrency int

	// FailFast aborts the conversion when the engine cannot be loaded. When false
	// the failure is only logged and the conversion continues.
	FailFast bool
}

// DefaultOptions returns sequential uploads, fail-fast engine loading and the default job.
func DefaultOptions() Options {
	return Options{
		Transcode:         hls.DefaultOptions(),
		UploadConcurrency: 1,
		FailFast:          true,
	}
}

// ValidateOptions checks that the options are usable.
func ValidateOptions(opts Options) error {
	if opts.UploadConcurrency < 1 {
		return fmt.Errorf("upload concurrency must be at least 1, got %d", opts.UploadConcurrency)
	}
	if err := opts.Transcode.Validate(); err != nil {
		return fmt.Errorf("invalid transcode options: %w", err)
	}
	return nil
}
