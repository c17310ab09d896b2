package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/sortimate/internal/actuator"
	"github.com/dwsmith1983/sortimate/internal/alert"
	"github.com/dwsmith1983/sortimate/internal/capture"
	"github.com/dwsmith1983/sortimate/internal/classify"
	"github.com/dwsmith1983/sortimate/internal/config"
	"github.com/dwsmith1983/sortimate/internal/observability"
	"github.com/dwsmith1983/sortimate/internal/orchestrator"
	"github.com/dwsmith1983/sortimate/internal/provider"
	"github.com/dwsmith1983/sortimate/internal/routing"
	"github.com/dwsmith1983/sortimate/internal/sensor"
	"github.com/dwsmith1983/sortimate/internal/server"
	"github.com/dwsmith1983/sortimate/internal/telemetry"
	"github.com/dwsmith1983/sortimate/internal/watchdog"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

const (
	storeStartTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sorting loop and the control server",
		Long: `Runs the bin: waits for an object to break the beam, captures and
classifies it, routes it to its compartment and records the attempt.
SIGINT/SIGTERM shut down gracefully; SIGUSR1 clears a fault.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBin(cmd.Context(), dir, cmd.Root().Version)
		},
	}

	cmd.Flags().StringVarP(&dir, "config-dir", "c", ".", "Directory containing "+config.FileName)
	return cmd
}

func runBin(parent context.Context, dir, version string) error {
	cfg, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging, os.Stderr).With("bin", cfg.BinID)
	slog.SetDefault(logger)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelProv, err := observability.Setup(ctx, cfg.Tracing, cfg.BinID, version)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() { _ = otelProv.Shutdown(context.Background()) }()

	store, err := newStore(cfg)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if store != nil {
		startCtx, cancel := context.WithTimeout(ctx, storeStartTimeout)
		if err := store.Start(startCtx); err != nil {
			// Telemetry is best-effort; the bin keeps sorting without it.
			logger.Warn("event store unavailable at startup", "provider", cfg.Provider, "error", err)
		}
		cancel()
		defer func() { _ = store.Stop(context.Background()) }()
	}

	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer hw.close()

	b, err := assemble(cfg, hw, store, logger)
	if err != nil {
		return err
	}
	defer func() { _ = b.alerts.Close() }()

	resets := make(chan os.Signal, 1)
	signal.Notify(resets, syscall.SIGUSR1)
	defer signal.Stop(resets)

	color.Cyan("sortimate %s running bin %s (Ctrl+C to stop)", version, cfg.BinID)
	if err := b.run(ctx, resets); err != nil {
		return err
	}
	color.Green("Bin %s stopped gracefully", cfg.BinID)
	return nil
}

// hardware is the bin's physical I/O.
type hardware struct {
	sampler sensor.Sampler
	driver  actuator.Driver
	close   func()
}

func openHardware(cfg *types.ProjectConfig) (*hardware, error) {
	sampler, err := sensor.OpenGPIO(cfg.Sensor)
	if err != nil {
		return nil, fmt.Errorf("opening beam sensor: %w", err)
	}
	driver, err := actuator.DialServo(cfg.Actuator)
	if err != nil {
		_ = sampler.Close()
		return nil, fmt.Errorf("opening actuator: %w", err)
	}
	return &hardware{
		sampler: sampler,
		driver:  driver,
		close: func() {
			driver.Close()
			_ = sampler.Close()
		},
	}, nil
}

// bin is a fully wired control loop plus its control server.
type bin struct {
	orch     *orchestrator.Orchestrator
	server   *server.Server
	alerts   *alert.Dispatcher
	watchdog *watchdog.Watchdog // nil when disabled
	logger   *slog.Logger
}

func assemble(cfg *types.ProjectConfig, hw *hardware, store provider.Store, logger *slog.Logger) (*bin, error) {
	mapper, err := routing.New(cfg.Routing)
	if err != nil {
		return nil, fmt.Errorf("building routing table: %w", err)
	}

	dispatcher, err := alert.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	sink := telemetry.NewSink(store, dispatcher, logger)
	orch, err := orchestrator.New(
		orchestrator.ConfigFrom(cfg.BinID, cfg.Orchestrator),
		orchestrator.Deps{
			Sensor:     sensor.New(hw.sampler, sensor.ConfigFrom(cfg.Sensor), logger),
			Camera:     capture.NewHTTPCamera(cfg.Camera, logger),
			Classifier: classify.NewHTTPClassifier(cfg.Classifier, logger),
			Mapper:     mapper,
			Actuator:   actuator.NewGate(hw.driver, logger),
			Sink:       sink,
		},
		logger,
	)
	if err != nil {
		_ = dispatcher.Close()
		return nil, err
	}

	addr, apiKey := serverAddr(cfg)
	srv := server.New(orch, store, server.Options{
		Addr:   addr,
		APIKey: apiKey,
		BinID:  cfg.BinID,
		Logger: logger,
	})

	b := &bin{orch: orch, server: srv, alerts: dispatcher, logger: logger}
	if cfg.Watchdog == nil || !cfg.Watchdog.Disabled {
		b.watchdog = watchdog.New(orch.Status, func(ctx context.Context, a types.Alert) {
			if err := sink.Alert(ctx, a); err != nil {
				logger.Warn("watchdog alert not delivered", "type", a.Type, "error", err)
			}
		}, logger, watchdog.OptionsFrom(cfg.Watchdog))
	}
	return b, nil
}

// run drives the loop, the control server and the reset signal until ctx
// is cancelled or one of them fails.
func (b *bin) run(ctx context.Context, resets <-chan os.Signal) error {
	g, gctx := errgroup.WithContext(ctx)

	if b.watchdog != nil {
		b.watchdog.Start(gctx)
		defer b.watchdog.Stop(context.Background())
	}

	g.Go(func() error {
		return b.orch.Run(gctx)
	})
	g.Go(b.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return b.server.Stop(shutdownCtx)
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-resets:
				if err := b.orch.Reset(); err != nil {
					b.logger.Warn("reset signal ignored", "error", err)
					continue
				}
				b.logger.Info("fault reset requested by signal")
			}
		}
	})

	return g.Wait()
}
