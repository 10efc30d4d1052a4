package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmylchreest/brickify/internal/capture"
	internalhttp "github.com/jmylchreest/brickify/internal/http"
	"github.com/jmylchreest/brickify/internal/http/handlers"
	"github.com/jmylchreest/brickify/internal/live"
	"github.com/jmylchreest/brickify/internal/metrics"
	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/service"
	"github.com/jmylchreest/brickify/internal/snapshot"
	"github.com/jmylchreest/brickify/internal/transcode"
	"github.com/jmylchreest/brickify/internal/version"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the brickify server",
	Long: `Start the live capture pipeline and the HTTP API.

The server provides:
- Live controls (block size, photo, recording) under /api/v1/live
- Transcode jobs under /api/v1/transcodes
- An MJPEG preview at /live/preview.mjpeg and the latest frame at /live/frame.jpg
- Prometheus metrics at /metrics and OpenAPI documentation at /docs

If the capture source cannot start, the server still runs and transcodes
remain available.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("capture-source", "pattern", "Capture source (pattern, file, none)")
	serveCmd.Flags().String("capture-path", "", "fMP4 file replayed when capture-source is file")
	serveCmd.Flags().String("snapshot-dir", "./snapshots", "Directory for photos")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("capture.source", serveCmd.Flags().Lookup("capture-source"))
	mustBindPFlag("capture.path", serveCmd.Flags().Lookup("capture-path"))
	mustBindPFlag("snapshot.dir", serveCmd.Flags().Lookup("snapshot-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()

	bounds, err := boundsFromConfig(cfg.Effect)
	if err != nil {
		return fmt.Errorf("effect bounds: %w", err)
	}

	m := metrics.New()

	format, err := snapshot.ParseFormat(cfg.Snapshot.Format)
	if err != nil {
		return err
	}
	saver, err := snapshot.NewDirSaver(cfg.Snapshot.Dir, format)
	if err != nil {
		return fmt.Errorf("initializing snapshots: %w", err)
	}
	if cfg.Recording.OutputDir != "" {
		if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
			return fmt.Errorf("creating recording directory: %w", err)
		}
	}

	source, err := capture.FromConfig(cfg.Capture)
	if err != nil {
		return fmt.Errorf("initializing capture: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := live.New(live.Options{
		Source:    source,
		Bounds:    bounds,
		BlockSize: cfg.Effect.BlockSize,
		Saver:     saver,
		Recording: recorderOptions(cfg),
		Observer:  m,
		Logger:    observability.WithComponent(logger, "live"),
	})
	defer processor.Close()

	if err := processor.Start(ctx); err != nil {
		// Unavailable capture is reported once; the API keeps serving.
		logger.Warn("live capture unavailable",
			slog.String("source", source.Name()),
			observability.Err(err),
		)
	}

	if err := registerLiveGauges(m, processor); err != nil {
		return err
	}

	jobs := service.NewTranscodeService(ctx).WithLogger(observability.WithComponent(logger, "transcode_jobs"))
	opts := transcoderOptions(cfg, bounds)
	opts.Observer = m
	opts.Logger = observability.WithComponent(logger, "transcode")
	opts.OnState = jobs.OnState
	jobs.WithRunner(transcode.New(opts))

	if cfg.Transcode.Retention > 0 && cfg.Transcode.CleanupSchedule != "" {
		janitor, err := service.NewJanitor(jobs, cfg.Transcode.Retention, cfg.Transcode.CleanupSchedule)
		if err != nil {
			return err
		}
		janitor.WithLogger(observability.WithComponent(logger, "transcode_janitor"))
		if err := janitor.Start(ctx); err != nil {
			return err
		}
		defer janitor.Stop()
	}

	server := internalhttp.NewServer(cfg.Server, logger)

	handlers.NewHealthHandler().WithLive(processor).Register(server.API())
	handlers.NewLiveHandler(processor).Register(server.API())
	handlers.NewTranscodeHandler(jobs, cfg.Effect.BlockSize).Register(server.API())
	handlers.NewPreviewHandler(processor).
		WithLogger(observability.WithComponent(logger, "preview")).
		RegisterRoutes(server.Router())
	server.Router().Handle("/metrics", m.Handler())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		// Closing the processor ends open preview streams so shutdown can drain.
		processor.Close()
		cancel()
	}()

	logger.Info("starting brickify server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("capture", source.Name()),
		slog.Int("block_size", cfg.Effect.BlockSize),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

func registerLiveGauges(m *metrics.Metrics, processor *live.Processor) error {
	if err := m.RegisterGauge("live", "block_size", "Current live block size in pixels.", func() float64 {
		return float64(processor.BlockSize())
	}); err != nil {
		return fmt.Errorf("registering block size gauge: %w", err)
	}
	if err := m.RegisterGauge("live", "recording", "1 while a live recording is in progress.", func() float64 {
		if processor.Recording() {
			return 1
		}
		return 0
	}); err != nil {
		return fmt.Errorf("registering recording gauge: %w", err)
	}
	if err := m.RegisterGauge("live", "capture_available", "1 when the capture source started.", func() float64 {
		if processor.Available() {
			return 1
		}
		return 0
	}); err != nil {
		return fmt.Errorf("registering capture gauge: %w", err)
	}
	return nil
}
