package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vestalhq/vestal/internal/logger"
	"github.com/vestalhq/vestal/internal/mcp"
	"github.com/vestalhq/vestal/internal/metrics"
)

func newMCPCmd(opts *globalOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server",
		Long:  "Start the Model Context Protocol server exposing record history tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			log := logger.Component(app.Logger, "mcp")

			g, gctx := errgroup.WithContext(ctx)
			if metricsAddr != "" {
				g.Go(func() error {
					return metrics.Serve(gctx, metricsAddr, app.Registry, logger.Component(app.Logger, "metrics"))
				})
			}
			g.Go(func() error {
				// The stdio session ending stops the metrics listener too.
				defer cancel()
				return mcp.NewServer(app.Records, log, version).Run(gctx)
			})
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics and /healthz on this address (e.g. :9090)")

	return cmd
}
