package main

import (
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	fiberadapter "github.com/outlivion/portal/adapters/fiber"
	"github.com/outlivion/portal/client"
	"github.com/outlivion/portal/core"
)

const shutdownTimeout = 10 * time.Second

var listenAddr string

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "address to serve the portal on (PORTAL_LISTEN)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the portal screens over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		app := fiber.New(fiber.Config{
			AppName:      "outlivion-portal",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
		})

		resolver := client.NewResolver()
		s, err := setup(cmd, setupOptions{
			http:       fiberadapter.New(app),
			navigator:  core.NopNavigator{},
			httpClient: &http.Client{Transport: client.NewTransport(resolver)},
		})
		if err != nil {
			return err
		}
		defer s.close()

		addr := s.cfg.Listen
		if cmd.Flags().Changed("listen") {
			addr = listenAddr
		}

		resolver.StartRefresh(ctx, 0, s.logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			s.logger.Info().Str("addr", addr).Str("backend", s.cfg.APIURL).Msg("Portal listening")
			return app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
		})
		g.Go(func() error {
			<-gctx.Done()
			s.logger.Info().Msg("Shutting down")
			return app.ShutdownWithTimeout(shutdownTimeout)
		})

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}
