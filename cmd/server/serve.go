package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartpest-api/internal/api"
	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/inference"
	"github.com/smartpest-api/internal/metrics"
	"github.com/smartpest-api/internal/reference"
	"github.com/smartpest-api/internal/repository"
	"github.com/smartpest-api/internal/service"
)

func (a *app) serveCommand() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(!skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

func (a *app) serve(migrate bool) error {
	cfg, log := a.cfg, a.log
	log.Info().Msg("Starting SmartPest API server...")

	flushSentry := a.initSentry()
	defer flushSentry()

	// Initialize database
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if migrate {
		if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
			return err
		}
	}

	// Initialize repositories and metrics
	repos := repository.New(db)
	m := metrics.New()
	if err := m.RegisterDB(db.DB, cfg.Database.Name); err != nil {
		log.Warn().Err(err).Msg("Failed to register database metrics")
	}

	// Reference tables and classifier
	ref := reference.Load(cfg.Reference.DescriptionsPath, cfg.Reference.PesticidesPath, log)
	if ref.Len() == 0 {
		log.Warn().Msg("Pest reference tables are empty, pest-info will return placeholder content")
	}
	classifier := inference.New(inference.Options{
		PrimaryPath:       cfg.Model.PrimaryPath,
		FallbackPath:      cfg.Model.FallbackPath,
		ClassesPath:       cfg.Model.ClassesPath,
		MockMinConfidence: cfg.Model.MockMinConf,
		MockMaxConfidence: cfg.Model.MockMaxConf,
		Open: inference.NewONNXOpener(inference.RuntimeOptions{
			LibraryPath:      cfg.Model.RuntimeLibrary,
			InputName:        cfg.Model.InputName,
			OutputName:       cfg.Model.OutputName,
			DefaultInputSize: cfg.Model.InputSize,
		}),
		Recorder: m,
	}, log)
	if cfg.Model.EagerLoad {
		go classifier.Load()
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)

	// Initialize services
	services := service.NewServices(service.Dependencies{
		Repos:      repos,
		Classifier: classifier,
		Reference:  ref,
		Tokens:     tokens,
	}, cfg, log)

	if err := os.MkdirAll(cfg.Upload.TempDir, 0o700); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services.Janitor.Start(ctx)

	// Initialize router
	router := api.NewRouter(services, api.Dependencies{
		Tokens:  tokens,
		Metrics: m,
		DB:      db,
	}, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		services.Janitor.Stop()
		return err
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	services.Janitor.Stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := classifier.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close classifier session")
	}
	if err := inference.ShutdownRuntime(); err != nil {
		log.Warn().Err(err).Msg("Failed to release ONNX runtime")
	}

	log.Info().Msg("Server exited gracefully")
	return nil
}
