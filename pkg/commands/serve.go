package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/server"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dataset API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				deps := server.Dependencies{
					Generator: a.generator,
					Health:    a.health,
					Logger:    a.logger,
				}
				if a.catalog != nil {
					deps.Catalog = a.catalog
				}

				srv := server.NewServer(server.Config{
					ServiceName:       a.cfg.AppName,
					Port:              a.cfg.Port,
					ReadTimeout:       a.cfg.ReadTimeout(),
					WriteTimeout:      a.cfg.WriteTimeout(),
					IdleTimeout:       a.cfg.IdleTimeout(),
					ReadHeaderTimeout: a.cfg.ReadHeaderTimeout(),
					MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
					AllowOrigins:      config.List(a.cfg.AllowOrigins),
					AllowMethods:      config.List(a.cfg.AllowMethods),
				}, deps)

				a.startup.AddDependency(srv)
				if err := a.startup.Start(ctx); err != nil {
					return err
				}

				select {
				case <-ctx.Done():
					a.logger.Info("Shutting down")
					return nil
				case err := <-srv.Errors():
					return err
				}
			})
		},
	}

	cmd.Flags().Int("port", 0, "HTTP port.")
	return cmd
}
