//go:build linux

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr      string
		noMonitor bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the sampling loop and the grid poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := c.open()
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					a.Log.Error("close", zap.Error(err))
				}
				_ = a.Log.Sync()
			}()

			if addr == "" {
				addr = a.Config.Server.Addr
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           a.API().Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			a.StartRotator()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.Log.Info("http listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(sctx)
			})
			if a.Config.Sampling.Enabled && !noMonitor {
				m := a.Monitor()
				g.Go(func() error {
					m.Run(gctx)
					return nil
				})
			}
			if p := a.Poller(); p != nil {
				g.Go(func() error {
					p.Run(gctx)
					return nil
				})
			}

			err = g.Wait()
			a.Log.Info("shutdown complete",
				zap.Float64("session_energy_j", a.Acc.EnergyCumJ()),
				zap.Int("samples", a.Acc.Samples()))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&noMonitor, "no-monitor", false, "serve the API without the continuous sampling loop")
	return cmd
}
