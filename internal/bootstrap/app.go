package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"market_client/internal/core"
	"market_client/pkg/telemetry"

	"golang.org/x/sync/errgroup"
)

// App holds the process-wide dependencies shared by the runners.
type App struct {
	Cfg       *Config
	Logger    core.ILogger
	Telemetry *telemetry.Telemetry
	traceOut  io.Closer
}

// NewApp creates a new App instance by bootstrapping all dependencies.
func NewApp(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return NewAppFromConfig(cfg)
}

// NewAppFromConfig bootstraps from an already loaded configuration
func NewAppFromConfig(cfg *Config) (*App, error) {
	app := &App{Cfg: cfg}
	if cfg.Telemetry.Enable {
		opts := telemetry.Options{ServiceName: serviceName, ServiceVersion: Version}
		if cfg.Telemetry.TraceFile != "" {
			f, err := os.OpenFile(cfg.Telemetry.TraceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("trace file: %w", err)
			}
			opts.Output = f
			app.traceOut = f
		}
		tel, err := telemetry.Setup(opts)
		if err != nil {
			app.closeTraceOut()
			return nil, fmt.Errorf("telemetry: %w", err)
		}
		app.Telemetry = tel
	}

	logger, err := InitLogger(cfg)
	if err != nil {
		app.closeTraceOut()
		return nil, fmt.Errorf("logger: %w", err)
	}
	app.Logger = logger
	return app, nil
}

func (a *App) closeTraceOut() {
	if a.traceOut != nil {
		_ = a.traceOut.Close()
		a.traceOut = nil
	}
}

// Runner is an interface for components that can be run and stopped gracefully.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Run starts every runner and blocks until one fails or a termination signal arrives.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx, runners...)
}

// RunContext is Run with a caller-owned context
func (a *App) RunContext(ctx context.Context, runners ...Runner) error {
	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application")

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	err := g.Wait()

	if a.Telemetry != nil {
		if shutdownErr := a.Telemetry.Shutdown(context.Background()); shutdownErr != nil {
			a.Logger.Warn("telemetry shutdown failed", "error", shutdownErr)
		}
	}
	a.closeTraceOut()

	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error("application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}
