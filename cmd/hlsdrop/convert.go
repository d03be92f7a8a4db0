package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heyjunin/HLSdrop/pkg/logger"
	"github.com/heyjunin/HLSdrop/pkg/pipeline"
	"github.com/heyjunin/HLSdrop/pkg/progress"
)

func newConvertCmd() *cobra.Command {
	var (
		flags       conversionFlags
		inputPath   string
		downloadDir string
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "convert [input]",
		Short: "Convert one video and print the hosted playlist URL",
		Example: `  hlsdrop convert -i holiday.mp4
  hlsdrop convert https://example.com/clip.mp4 --concurrency 4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" && len(args) == 1 {
				inputPath = args[0]
			}
			if inputPath == "" {
				return fmt.Errorf("an input file or URL is required (use -i)")
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			opts := reporterOptions(cfg)
			if !quiet {
				opts = append(opts,
					progress.WithConsole(os.Stderr),
					progress.WithLogWriter(os.Stderr),
					progress.WithDescription("Converting..."),
				)
			}
			reporter := progress.NewReporter(opts...)

			conv, eng, err := buildConverter(ctx, cfg, reporter)
			if err != nil {
				return err
			}
			defer eng.Close()

			var src pipeline.Source
			if strings.HasPrefix(inputPath, "http://") || strings.HasPrefix(inputPath, "https://") {
				logger.Info("Detected URL input, downloading first", "main", map[string]interface{}{
					"url": inputPath,
				})
				src, err = pipeline.RemoteSource(ctx, inputPath, downloadDir, nil)
				if err != nil {
					return err
				}
			} else {
				if _, err := os.Stat(inputPath); err != nil {
					return fmt.Errorf("input file not found: %s", inputPath)
				}
				src = pipeline.FileSource(inputPath)
			}

			result, err := conv.Convert(ctx, src)
			if err != nil {
				return err
			}

			logger.Info("Conversion completed successfully", "main", map[string]interface{}{
				"url":      result.PlaylistURL,
				"segments": len(result.Segments),
				"duration": result.Duration.String(),
			})
			fmt.Fprintln(cmd.OutOrStdout(), result.PlaylistURL)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input file path or URL")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "downloads", "Directory to save downloaded inputs")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the playlist URL")
	flags.register(cmd)

	return cmd
}
