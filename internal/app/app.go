package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"marketcore/internal/config"
	"marketcore/internal/exporter"
	"marketcore/internal/infrastructure"
	"marketcore/internal/loader"
	"marketcore/internal/services"
	"marketcore/internal/store"
	handlers "marketcore/internal/transport/http"
	"marketcore/internal/validation"
)

// Version is set at build time with -ldflags "-X marketcore/internal/app.Version=..."
var Version = "dev"

// Application holds the wired components
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	History       store.HistoryStore
	Loader        *loader.Service
	Validator     *validation.Validator
	Exporter      *exporter.Exporter
	DataService   *services.DataService
	HealthService *services.HealthService

	started time.Time
}

// New builds an Application from cfg. Console log output goes to console.
func New(cfg *config.Config, console io.Writer) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := infrastructure.NewLogger(cfg.Logging, console)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &Application{Config: cfg, Logger: logger, started: time.Now()}
	if err := a.initialize(); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	logger.Debug("Application initialized",
		slog.String("version", Version),
		slog.String("store", cfg.Store.Driver),
		slog.String("validation_mode", cfg.Validation.Mode),
		slog.Bool("telemetry", cfg.Telemetry.Enabled))
	return a, nil
}

func (a *Application) initialize() error {
	cfg := a.Config

	providers, err := a.initTelemetry()
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = providers
	if cfg.Telemetry.Enabled {
		if _, err := infrastructure.RegisterRuntimeMetrics(providers.Meter, a.started); err != nil {
			return fmt.Errorf("failed to register runtime metrics: %w", err)
		}
	}

	history, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	a.History = history

	a.Loader, err = loader.NewService(cfg.Load,
		loader.WithLogger(a.Logger),
		loader.WithTelemetry(providers))
	if err != nil {
		return err
	}
	a.Validator, err = validation.NewValidator(cfg.Validation,
		validation.WithLogger(a.Logger),
		validation.WithTelemetry(providers))
	if err != nil {
		return err
	}
	a.Exporter = exporter.NewExporter(a.Loader.Registry(), a.Logger)

	a.DataService, err = services.NewDataService(a.Loader, a.Validator, history,
		services.WithLogger(a.Logger),
		services.WithTelemetry(providers))
	if err != nil {
		return fmt.Errorf("failed to initialize data service: %w", err)
	}
	a.HealthService = services.NewHealthService(Version, history, a.Logger)
	return nil
}

func (a *Application) initTelemetry() (*infrastructure.OTelProviders, error) {
	tc := a.Config.Telemetry
	if !tc.Enabled {
		p := infrastructure.NoopProviders()
		p.Logger = a.Logger
		return p, nil
	}
	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.ServiceName = tc.ServiceName
	otelCfg.ServiceVersion = Version
	if tc.TraceStdout {
		otelCfg.TraceExporter = "stdout"
	}
	return infrastructure.InitializeOTel(otelCfg, a.Logger)
}

// Router returns the ops HTTP router
func (a *Application) Router() (http.Handler, error) {
	return handlers.NewRouter(handlers.RouterDeps{
		Health:       a.HealthService,
		Runs:         a.DataService,
		Telemetry:    a.OTelProviders,
		Logger:       a.Logger,
		IncludeStack: a.Config.Logging.Level == "debug",
	})
}

// Close releases the history store and flushes telemetry
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.History != nil {
		if err := a.History.Close(); err != nil {
			errs = append(errs, fmt.Errorf("history store close: %w", err))
		}
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		errs = append(errs, fmt.Errorf("log file close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
