// main package for the tts-helper
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-helper/internal/archive"
	"github.com/book-expert/tts-helper/internal/config"
	"github.com/book-expert/tts-helper/internal/core"
	"github.com/book-expert/tts-helper/internal/gateway"
	"github.com/book-expert/tts-helper/internal/objectstore"
	"github.com/book-expert/tts-helper/internal/paths"
	"github.com/book-expert/tts-helper/internal/worker"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	bootstrapLogFileName = "tts-helper-bootstrap.log"
	logFileName          = "tts-helper.log"
	natsClientName       = "tts-helper"
	httpShutdownTimeout  = 30 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in '%s': %w", logPath, err)
	}

	return log, nil
}

func closeLogger(log *logger.Logger, name string) {
	closeErr := log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing %s logger: %v\n", name, closeErr)
	}
}

// newSupervisor wires the worker subprocess from the loaded config and settings.
func newSupervisor(cfg *config.Config, settings *config.Settings, log *logger.Logger) *worker.Supervisor {
	return worker.New(worker.Options{
		Launcher: worker.ExecLauncher{
			Path: cfg.EnginePath,
			Args: []string{cfg.WorkerScriptPath},
			Env:  settings.Worker.Environment(),
		},
		Detector:      worker.MarkerDetector{Marker: settings.Worker.ReadyMarker},
		ShutdownGrace: settings.Worker.ShutdownGrace(),
	}, log)
}

// setupArchive connects to NATS when archiving is configured. Archiving is
// optional, so a failure only disables it.
func setupArchive(settings config.ArchiveSettings, log *logger.Logger) (core.Archiver, func()) {
	noop := func() {}

	if settings.NATSURL == "" {
		return nil, noop
	}

	natsConnection, err := nats.Connect(settings.NATSURL, nats.Name(natsClientName))
	if err != nil {
		log.Warn("Audio archive disabled, cannot connect to NATS at %s: %v", settings.NATSURL, err)

		return nil, noop
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		log.Warn("Audio archive disabled, JetStream unavailable: %v", err)
		natsConnection.Close()

		return nil, noop
	}

	store, err := objectstore.New(jetstreamContext, settings.Bucket)
	if err != nil {
		log.Warn("Audio archive disabled: %v", err)
		natsConnection.Close()

		return nil, noop
	}

	closeFn := func() {
		drainErr := natsConnection.Drain()
		if drainErr != nil {
			log.Warn("Failed to drain NATS connection: %v", drainErr)
		}
	}

	archiver := archive.New(store, natsConnection, settings.Subject, log)
	log.Info("Archiving generated audio to bucket '%s', announcing on '%s' (workflow %s)",
		store.Bucket(), settings.Subject, archiver.WorkflowID())

	return archiver, closeFn
}

// serve runs the gateway until ctx ends, then drains in-flight requests for
// at most drainTimeout. Requests still running after that are abandoned
// with a warning; the shutdown itself was requested, so it is not an error.
func serve(
	ctx context.Context,
	server *gateway.Server,
	listener net.Listener,
	drainTimeout time.Duration,
	log *logger.Logger,
) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Serve(listener)
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			log.Warn("Requests still in flight after %s, shutting down anyway: %v", drainTimeout, err)

			return nil
		}

		return err
	})

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("gateway stopped: %w", err)
	}

	return nil
}

func run() error {
	configPath := flag.String("config", config.DefaultPath(), "Path to config.json")
	flag.Parse()

	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}
	defer closeLogger(bootstrapLog, "bootstrap")

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load or create the connection config and the optional settings
	store := config.NewStore(*configPath)

	cfg, err := store.Load()
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	settings, err := config.LoadSettings(filepath.Dir(*configPath))
	if err != nil {
		bootstrapLog.Error("Failed to load settings: %v", err)

		return fmt.Errorf("failed to load settings: %w", err)
	}

	bootstrapLog.Info("Configuration loaded from %s", store.Path())

	// 3. Initialize the final logger
	err = paths.EnsureDir(settings.Service.LogDir)
	if err != nil {
		bootstrapLog.Error("Failed to create log directory: %v", err)

		return fmt.Errorf("failed to create log directory: %w", err)
	}

	log, err := setupLogger(settings.Service.LogDir, logFileName)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}
	defer closeLogger(log, "final")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Start the worker and wait for the model to load
	log.Info("Starting worker: %s %s", cfg.EnginePath, cfg.WorkerScriptPath)

	supervisor := newSupervisor(cfg, settings, log)

	err = supervisor.Start(ctx)
	if err != nil {
		log.Error("Failed to start worker: %v", err)

		return fmt.Errorf("failed to start worker: %w", err)
	}

	defer supervisor.Shutdown()

	warmupStarted := time.Now()

	err = supervisor.WaitUntilReady(ctx, settings.Worker.WarmupTimeout())
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			log.Info("Interrupted during warmup, shutting down")

			return nil
		}

		log.Error("Worker did not become ready: %v", err)

		return fmt.Errorf("worker did not become ready: %w", err)
	}

	log.Info("Model ready after %s", paths.FormatDuration(time.Since(warmupStarted).Seconds()))

	// 5. Bind the HTTP listener and publish the config for clients
	archiver, closeArchive := setupArchive(settings.Archive, log)
	defer closeArchive()

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		log.Error("Failed to listen on %s: %v", cfg.Addr(), err)

		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}

	err = store.Save(cfg)
	if err != nil {
		log.Warn("Failed to save configuration for clients: %v", err)
	}

	server := gateway.New(cfg, gateway.Options{
		ModelName:     settings.Service.ModelName,
		RequireSecret: settings.Service.RequireSecret,
		Archiver:      archiver,
	}, supervisor, log)

	log.System("TTS helper ready on %s (model %s)", cfg.BaseURL(), settings.Service.ModelName)

	// 6. Serve until SIGINT/SIGTERM, drain HTTP, then stop the worker (deferred)
	err = serve(ctx, server, listener, httpShutdownTimeout, log)
	if err != nil {
		log.Error("%v", err)

		return err
	}

	log.Info("Shutting down")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "TTS helper exited with error: %v\n", err)
		os.Exit(1)
	}
}
