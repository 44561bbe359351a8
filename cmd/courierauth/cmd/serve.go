package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/courierauth/api"
	"github.com/MrEthical07/courierauth/metrics/export/prometheus"
	authmw "github.com/MrEthical07/courierauth/middleware"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(settings.Log)
		if err != nil {
			return err
		}

		if serveMigrate {
			settings.Database.AutoMigrate = true
		}
		for _, warning := range settings.Core.Lint() {
			logger.WithField("code", warning.Code).Warn(warning.Message)
		}

		ctx := cmd.Context()
		rt, err := buildRuntime(ctx, settings, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		logger.WithField("posture", rt.engine.SecurityReport()).Info("security posture")

		trusted, err := authmw.ParseTrustedProxies(settings.Core.Security.TrustedProxies)
		if err != nil {
			return err
		}
		opts := api.DefaultOptions()
		opts.TrustedProxies = trusted
		opts.OTPRequestLimit.Max = settings.Server.OTPRequestPerIP
		opts.OTPRequestLimit.Window = settings.Server.PerIPWindow
		opts.OTPVerifyLimit.Max = settings.Server.OTPVerifyPerIP
		opts.OTPVerifyLimit.Window = settings.Server.PerIPWindow
		if settings.Core.Metrics.Enabled {
			opts.MetricsHandler = prometheus.NewPrometheusExporter(rt.engine).Handler()
		}

		server := &http.Server{
			Addr:              settings.Server.Addr,
			Handler:           api.New(rt.engine, logger, opts).Router(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		cleanupCtx, stopCleanup := context.WithCancel(context.Background())
		defer stopCleanup()
		go rt.engine.RunCleanup(cleanupCtx, settings.Core.Store.CleanupInterval)

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.WithFields(logrus.Fields{
			"addr":    settings.Server.Addr,
			"backend": settings.Core.Store.Backend,
			"dialect": settings.Database.Dialect,
		}).Info("courierauth listening")

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.WithField("signal", sig.String()).Info("shutting down")
			stopCleanup()
			ctx, cancel := context.WithTimeout(context.Background(), settings.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "create missing tables before serving")
}
