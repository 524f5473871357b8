package main

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/smartpest-api/internal/config"
	"github.com/smartpest-api/internal/database"
	"github.com/smartpest-api/pkg/logger"
)

// app carries the configuration shared by every command
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

// rootCommand creates the CLI. Running it without a subcommand serves HTTP.
func rootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "smartpest",
		Short:         "SmartPest pest identification API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	serveCmd := a.serveCommand()
	rootCmd.RunE = serveCmd.RunE
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())

	rootCmd.AddCommand(
		serveCmd,
		a.migrateCommand(),
		a.createAdminCommand(),
		a.seedCatalogCommand(),
		a.fetchModelCommand(),
	)

	return rootCmd
}

// init loads configuration and rebuilds the logger from it
func (a *app) init() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	pretty := cfg.Log.Format == "pretty" || cfg.IsDevelopment()
	a.log = logger.NewWithWriter(os.Stdout, cfg.Log.Level, pretty)
	return nil
}

// openDB connects to PostgreSQL
func (a *app) openDB() (*database.DB, error) {
	db, err := database.New(&a.cfg.Database, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initSentry enables panic reporting when a DSN is configured. The returned
// function flushes buffered events.
func (a *app) initSentry() func() {
	if a.cfg.Sentry.DSN == "" {
		return func() {}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         a.cfg.Sentry.DSN,
		Environment: a.cfg.Sentry.Environment,
		ServerName:  logger.ServiceName,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("Sentry initialization failed, continuing without error reporting")
		return func() {}
	}

	a.log.Info().Str("environment", a.cfg.Sentry.Environment).Msg("Sentry error reporting enabled")
	return func() { sentry.Flush(2 * time.Second) }
}
