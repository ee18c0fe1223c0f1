/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server, or previews a
  schedule from the command line.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML file, .env, environment, flags)
  2. Build the logger
  3. Initialize SQLite store
  4. Import the bracket catalog file, if configured, and optionally watch it
  5. Start the idle-session sweeper
  6. Start the HTTP server with graceful shutdown

COMMANDS:
  billing-engine            Run the HTTP server
  billing-engine preview    Print a reconciled schedule and exit

SERVER FLAGS:
  --config        YAML configuration file
  --port          HTTP server port (default: 8080)
  --db            SQLite database path; ":memory:" for in-memory
  --log-level     debug, info, warn, error
  --log-format    text or json
  --catalog       Bracket catalog file (JSON or YAML) imported on start
  --watch-catalog Re-import the catalog file when it changes

  Flags that are set explicitly win over file and environment values.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper, then stop the catalog watcher and wait for a
     pending reload
  4. Close database connection

EXAMPLES:
  ./billing-engine --db ./data/billing.db --catalog ./tariffs.yaml --watch-catalog
  ./billing-engine --db ":memory:" --log-format json
  ./billing-engine preview --total 1200 --count 12 --periodicity monthly --start 2024-01-31

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/factory"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	if err := newRootCmd(&rootOptions{}).Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the server flags.
type rootOptions struct {
	configPath   string
	port         int
	dbPath       string
	logLevel     string
	logFormat    string
	catalogPath  string
	watchCatalog bool
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "billing-engine",
		Short:        "Installment schedule and tariff bracket engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML configuration file")
	flags.IntVar(&opts.port, "port", defaults.Port, "HTTP server port")
	flags.StringVar(&opts.dbPath, "db", defaults.DBPath, "SQLite database path (\":memory:\" for in-memory)")
	flags.StringVar(&opts.logLevel, "log-level", defaults.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", defaults.LogFormat, "log format (text or json)")
	flags.StringVar(&opts.catalogPath, "catalog", "", "bracket catalog file imported on start")
	flags.BoolVar(&opts.watchCatalog, "watch-catalog", false, "re-import the catalog file when it changes")

	cmd.AddCommand(newPreviewCmd())
	return cmd
}

// config loads file and environment configuration, then applies flags
// that were set on the command line.
func (o *rootOptions) config(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if flags.Changed("port") {
		cfg.Port = o.port
	}
	if flags.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("catalog") {
		cfg.CatalogPath = o.catalogPath
	}
	if flags.Changed("watch-catalog") {
		cfg.WatchCatalog = o.watchCatalog
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := cfg.NewLogger()

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.WithError(err).Error("failed to initialize database")
		return err
	}
	defer store.Close()

	handler := api.NewHandler(store, logger)
	handler.SaveTimeout = cfg.SaveTimeout

	if cfg.CatalogPath != "" {
		watcher := factory.NewCatalogWatcher(cfg.CatalogPath, handler.Factory, store.SaveBrackets, logger)
		n, err := watcher.Reload(ctx)
		if err != nil {
			return fmt.Errorf("import catalog %s: %w", cfg.CatalogPath, err)
		}
		logger.WithFields(logrus.Fields{"path": cfg.CatalogPath, "brackets": n}).Info("bracket catalog imported")

		if cfg.WatchCatalog {
			watchCtx, cancelWatch := context.WithCancel(ctx)
			watchDone := make(chan struct{})
			go func() {
				defer close(watchDone)
				if err := watcher.Run(watchCtx); err != nil {
					logger.WithError(err).Error("[CatalogWatcher] stopped")
				}
			}()
			// runs before store.Close
			defer func() {
				cancelWatch()
				<-watchDone
			}()
		}
	}

	sweeper := api.NewSessionSweeper(handler.Sessions, logger)
	sweeper.Interval = cfg.SweepInterval
	sweeper.TTL = cfg.SessionTTL
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("server failed")
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
