// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatforge/planledger/adapters/classify"
	"github.com/chatforge/planledger/adapters/clock"
	"github.com/chatforge/planledger/adapters/hasher"
	"github.com/chatforge/planledger/adapters/idgen"
	"github.com/chatforge/planledger/adapters/memory"
	"github.com/chatforge/planledger/adapters/metrics"
	"github.com/chatforge/planledger/adapters/sqlite"
	"github.com/chatforge/planledger/app"
	"github.com/chatforge/planledger/config"
	"github.com/chatforge/planledger/ports"
	"github.com/chatforge/planledger/web"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector

	Ledger  *app.LedgerService
	Reports *app.ReportService
	Store   ports.EntryStore
}

// New creates and initializes the application from a config file path.
// A missing or empty path falls back to environment variables.
func New(configPath string) (*App, error) {
	bootLogger := setupLogger(nil)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			holder, err := config.NewHolder(configPath, bootLogger)
			if err != nil {
				return nil, err
			}
			return NewWithHolder(holder)
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return NewWithHolder(config.NewStaticHolder(cfg, bootLogger))
}

// NewWithHolder creates and initializes the application against an
// already-loaded configuration holder.
func NewWithHolder(holder *config.Holder) (*App, error) {
	cfg := holder.Get()
	logger := setupLogger(cfg)

	logger.Info().Msg("initializing planledger")

	a := &App{
		Logger: logger,
		Config: holder,
	}

	if err := a.initStore(cfg); err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	a.buildServices(cfg)
	a.initHTTPServer(cfg)

	// Repricing and history-cap changes take effect without a restart.
	holder.OnChange(func(next *config.Config) {
		a.Ledger.SetRates(next.Pricing.Rates(next.Ledger.MaxExpenseHistory))
		a.Logger.Info().Msg("ledger rates reloaded")
	})

	return a, nil
}

// initStore opens the configured entry store.
func (a *App) initStore(cfg *config.Config) error {
	switch cfg.Database.Driver {
	case "memory":
		a.Store = memory.NewEntryStore()
		a.Logger.Info().Msg("using in-memory entry store")
		return nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("migrate database: %w", err)
		}
		a.DB = db
		a.Store = sqlite.NewEntryStore(db)
		a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")
		return nil
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func (a *App) buildServices(cfg *config.Config) {
	clk := clock.Real{}

	var sink ports.LedgerMetrics = metrics.Noop{}
	if a.Metrics != nil {
		sink = a.Metrics
	}

	rates := cfg.Pricing.Rates(cfg.Ledger.MaxExpenseHistory)
	a.Ledger = app.NewLedgerService(a.Store, clk, sink, rates, a.Logger)

	classifier := classify.NewLocal(a.Store, clk)
	a.Reports = app.NewReportService(a.Store, classifier, cfg.Ledger.RecentWindow, a.Logger)
}

func (a *App) initHTTPServer(cfg *config.Config) {
	handler := web.NewHandler(web.Deps{
		Ledger:         a.Ledger,
		Reports:        a.Reports,
		Hasher:         hasher.NewBcrypt(0),
		IDs:            idgen.UUID{},
		TokenHash:      cfg.Admin.TokenHash,
		Collector:      a.Metrics,
		MetricsEnabled: cfg.Metrics.Enabled,
		Logger:         a.Logger,
	})

	a.HTTPServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	if err := a.Config.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable")
	}
	a.Config.WatchSignals()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a.Config.Stop()

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// setupLogger builds the process logger. A nil config yields an info
// level JSON logger for use before configuration is available.
func setupLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	format := "json"
	if cfg != nil {
		if l, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			level = l
		}
		format = cfg.Logging.Format
	}

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
