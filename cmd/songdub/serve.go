package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/verseforge/songdub/config"
	"github.com/verseforge/songdub/gateway"
	"github.com/verseforge/songdub/logger"
	"github.com/verseforge/songdub/media"
	"github.com/verseforge/songdub/server"
	"github.com/verseforge/songdub/session"
	"github.com/verseforge/songdub/telemetry"
)

// shutdownGrace is how long in-flight requests get to finish on SIGTERM.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dubbing HTTP service",
	Long: `Serve the dubbing session API: song upload, analysis, lyric translation,
speech synthesis, media playback, a WebSocket event stream, and Prometheus
metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (overrides config)")
	serveCmd.Flags().Float64("rate-limit", 0, "Upload requests per second (overrides config)")

	// Bind flags to viper
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("rate_limit", serveCmd.Flags().Lookup("rate-limit"))
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadServiceConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = viper.GetString("listen")
	}
	if cmd.Flags().Changed("rate-limit") {
		cfg.RateLimit = viper.GetFloat64("rate_limit")
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, "songdub")
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			_ = shutdown(flushCtx)
		}()
	}

	gw, err := gateway.New(cfg.GatewayClientConfig())
	if err != nil {
		return err
	}
	defer gw.Close()

	store := media.NewStore()
	orc := session.NewOrchestrator(gw, store, cfg.SessionClientConfig())

	srv := server.New(orc, store,
		server.WithAddr(cfg.Listen),
		server.WithMaxUploadBytes(cfg.SessionClientConfig().MaxUploadBytes),
		server.WithUploadRateLimit(cfg.RateLimit),
	)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadServiceConfig resolves the --config flag and loads the configuration.
func loadServiceConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}
