package main

import (
	"github.com/spf13/cobra"

	"github.com/heyjunin/HLSdrop/pkg/logger"
	"github.com/heyjunin/HLSdrop/pkg/progress"
	"github.com/heyjunin/HLSdrop/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		flags conversionFlags
		addr  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and web page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
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

			srv := server.New(conv, reporter, server.Options{
				Addr:            cfg.Server.Addr,
				AllowedOrigins:  cfg.Server.AllowedOrigins,
				MaxUploadBytes:  cfg.Server.MaxUploadBytes,
				UploadDir:       cfg.Server.UploadDir,
				ShutdownTimeout: cfg.Server.ShutdownTimeout,
			}, logger.NewLogger())

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	flags.register(cmd)

	return cmd
}
