// Package main implements ringpipe, which reads a byte stream from stdin or
// UDP, reassembles frames in a ring buffer and forwards them to stdout or NATS.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/ringbuf/config"
	"github.com/c360/ringbuf/errors"
	"github.com/c360/ringbuf/health"
	"github.com/c360/ringbuf/input"
	"github.com/c360/ringbuf/metric"
	"github.com/c360/ringbuf/output"
	"github.com/c360/ringbuf/pipeline"
	"github.com/c360/ringbuf/pkg/framing"
	"github.com/c360/ringbuf/pkg/ringbuf"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ringpipe"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, logger, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := initializeConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := health.NewMonitor()
	registry, server := newMetricsServer(cfg.Metrics, monitor)

	pump, sink, err := buildPipeline(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	monitor.Update("output", health.NewHealthy("output", cfg.Output.Type+" sink open"))
	monitor.Register("pipeline", pump.Health)

	g, gctx := errgroup.WithContext(ctx)
	if server != nil {
		g.Go(func() error {
			logger.Info("Metrics server listening", "address", server.Address())
			return server.Start()
		})
	}
	g.Go(func() error {
		defer stopMetrics(server, logger)
		return pump.Run(gctx)
	})
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer cancel()
	if err := sink.Close(shutdownCtx); err != nil {
		logger.Warn("Sink close failed", "error", err)
	}

	if stderrors.Is(runErr, context.Canceled) {
		logger.Info("Shutdown complete", "stats", pump.Stats())
		return nil
	}
	return runErr
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg, err := parseFlags(args)
	if err != nil {
		if stderrors.Is(err, flag.ErrHelp) {
			return nil, nil, true, nil
		}
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		cliCfg.usage()
		return nil, nil, true, nil
	}

	logger := setupLogger(os.Stderr, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting ringpipe",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads and validates configuration
func initializeConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newMetricsServer builds the Prometheus and health endpoint when enabled.
// Both results are nil when metrics are disabled.
func newMetricsServer(cfg config.MetricsConfig, monitor *health.Monitor) (*metric.MetricsRegistry, *metric.Server) {
	if !cfg.Enabled {
		return nil, nil
	}

	registry := metric.NewMetricsRegistry()
	server := metric.NewServer(cfg.Port, cfg.Path, registry)
	server.SetHealthCheck(func() health.Status {
		return monitor.AggregateHealth(appName)
	})
	return registry, server
}

func stopMetrics(server *metric.Server, logger *slog.Logger) {
	if server == nil {
		return
	}
	if err := server.Stop(); err != nil {
		logger.Warn("Metrics server stop failed", "error", err)
	}
}

// buildPipeline creates the ring, splitter, source and sink and wires them
// into a pump.
func buildPipeline(
	ctx context.Context,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*pipeline.Pump, output.Sink, error) {
	ringOpts := []ringbuf.Option{
		ringbuf.WithOverwrite(cfg.Ring.Overwrite),
		ringbuf.WithMemoryLimit(cfg.Ring.MemoryLimit),
		ringbuf.WithLogger(logger),
	}
	var pumpOpts []pipeline.Option
	if registry != nil {
		ringOpts = append(ringOpts, ringbuf.WithMetrics(registry, appName))
		pumpOpts = append(pumpOpts, pipeline.WithMetrics(registry.CoreMetrics()))
	}

	ring, err := ringbuf.New[byte](cfg.Ring.Capacity, ringOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create ring: %w", err)
	}

	splitter, err := newSplitter(cfg.Framing, ring)
	if err != nil {
		return nil, nil, err
	}

	src, err := input.Open(cfg.Input, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	sink, err := output.Open(connectCtx, cfg.Output, appName+"-"+runID, logger)
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("open output: %w", err)
	}

	pumpOpts = append(pumpOpts,
		pipeline.WithReadSize(cfg.Input.ReadSize),
		pipeline.WithLogger(logger))

	pump, err := pipeline.NewPump(src, ring, splitter, sink, pumpOpts...)
	if err != nil {
		_ = src.Close()
		_ = sink.Close(ctx)
		return nil, nil, err
	}

	return pump, sink, nil
}

func newSplitter(cfg config.FramingConfig, ring *ringbuf.RingBuffer[byte]) (framing.Splitter, error) {
	switch cfg.Mode {
	case config.FramingDelimited:
		return framing.NewDelimited(ring, cfg.Delimiter[0], cfg.MaxFrame), nil
	case config.FramingLength:
		return framing.NewLengthPrefixed(ring, cfg.HeaderSize, cfg.MaxFrame)
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown framing mode %q", errors.ErrInvalidConfig, cfg.Mode),
			"main", "newSplitter", "select framing")
	}
}
