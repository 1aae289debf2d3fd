package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/infologger/internal/archive"
	"codeberg.org/mutker/infologger/internal/config"
	"codeberg.org/mutker/infologger/internal/errors"
	"codeberg.org/mutker/infologger/internal/gpu"
	"codeberg.org/mutker/infologger/internal/infologger"
	"codeberg.org/mutker/infologger/internal/logger"
	"codeberg.org/mutker/infologger/internal/pid"
	"codeberg.org/mutker/infologger/internal/sampling"
	"codeberg.org/mutker/infologger/internal/server"
	"codeberg.org/mutker/infologger/internal/source"
	"codeberg.org/mutker/infologger/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if !cfg.Debug && !cfg.Verbose {
		if level, ok := logger.ParseLevel(cfg.LogLevel); ok {
			logger.SetLogLevel(level)
		}
	}
	logger.Debug().Msg("Config loaded")

	if err := run(cfg); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("Exiting with error")
		} else {
			logger.Fatal().Err(err).Msg("Exiting with error")
		}
	}
	logger.Info().Msg("Exiting...")
}

func run(cfg *config.Config) error {
	pidPath := pid.DefaultPath()
	if err := pid.Write(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			var appErr errors.Error
			if errors.As(err, &appErr) {
				logger.ErrorWithCode(appErr).Msg("Failed to remove PID file")
				return
			}
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	target := cfg.PID
	if target == 0 {
		target = os.Getpid()
	}

	var gpuReader source.GPUReader
	if cfg.GPU {
		monitor, err := gpu.New(cfg.GPUIndex, target, logger.Get("gpu"))
		if err != nil {
			// GPU samples are written as unsupported values
			logger.Warn().Err(err).Msg("GPU memory unavailable")
		} else {
			defer func() {
				if err := monitor.Shutdown(); err != nil {
					logger.Warn().Err(err).Msg("Failed to shut down NVML")
				}
			}()
			gpuReader = monitor
		}
	}

	src, err := source.NewProcessSource(int32(target), gpuReader, logger.Get("source")) //nolint:gosec // G115: bounded by config.Validate
	if err != nil {
		return err
	}

	appName := cfg.AppName
	if appName == "" {
		appName = src.Name()
	}

	stateOpts := []sampling.Option{sampling.WithLogger(logger.Get("sampling"))}

	var gatherer prometheus.Gatherer
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := telemetry.New(reg)
		if err != nil {
			return err
		}
		stateOpts = append(stateOpts, sampling.WithRecorder(metrics))
		gatherer = reg
	}

	archiveCfg := archive.DefaultConfig()
	archiveCfg.Enabled = cfg.Archive
	archiveCfg.DBPath = cfg.ArchiveDB
	sessions, err := archive.NewService(archiveCfg, logger.Get("archive"))
	if err != nil {
		return err
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close archive")
		}
	}()

	timer := sampling.NewTickerTimer(cfg.Interval)
	state := sampling.New(src, timer, stateOpts...)
	handler := infologger.NewHandler(state,
		infologger.WithAppName(appName),
		infologger.WithArchive(sessions),
		infologger.WithHandlerLogger(logger.Get("handler")),
	)
	svc := infologger.NewService(handler, timer, logger.Get("service"))

	opts := server.Options{Addr: cfg.Listen, Gatherer: gatherer}
	if cfg.Archive {
		opts.Archive = sessions
	}
	srv := server.New(opts, svc, logger.Get("server"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	loopErr := make(chan error, 1)
	go func() {
		loopErr <- svc.Run(ctx)
	}()

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	logger.Info().
		Int("pid", target).
		Str("app_name", appName).
		Int("interval", cfg.Interval).
		Msg("Sampler ready")

	var result error
	select {
	case <-ctx.Done():
	case err := <-srvErr:
		result = err
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down HTTP server")
	}

	if err := <-loopErr; err != nil && result == nil {
		result = err
	}

	return result
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
