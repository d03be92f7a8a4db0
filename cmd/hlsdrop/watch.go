package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/heyjunin/HLSdrop/pkg/logger"
	"github.com/heyjunin/HLSdrop/pkg/pipeline"
	"github.com/heyjunin/HLSdrop/pkg/progress"
	"github.com/heyjunin/HLSdrop/pkg/watcher"
)

func newWatchCmd() *cobra.Command {
	var (
		flags conversionFlags
		dir   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Convert every new video dropped into a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("dir") {
				cfg.Watch.Dir = dir
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			reporter := progress.NewReporter(reporterOptions(cfg)...)
			conv, eng, err := buildConverter(ctx, cfg, reporter)
			if err != nil {
				return err
			}
			defer eng.Close()

			w, err := watcher.New(watcher.Options{
				Dir:       cfg.Watch.Dir,
				Extension: cfg.Watch.Extension,
				Debounce:  cfg.Watch.Debounce,
			}, func(ctx context.Context, path string) (string, error) {
				result, err := conv.Convert(ctx, pipeline.FileSource(path))
				if err != nil {
					return "", err
				}
				return result.PlaylistURL, nil
			}, logger.NewLogger())
			if err != nil {
				return err
			}

			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to watch")
	flags.register(cmd)

	return cmd
}
