// Package server initializes and runs the onboarding backend: it opens the
// database, runs migrations, wires the services together, handles graceful
// shutdown, and serves the HTTP API.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haulhq/driveronboard/internal/logging"
	"github.com/haulhq/driveronboard/internal/server/config"
	"github.com/haulhq/driveronboard/internal/server/httpapi"
	"github.com/haulhq/driveronboard/internal/server/onboarding"
	"github.com/haulhq/driveronboard/internal/server/repositories/repomanager"
	"github.com/haulhq/driveronboard/internal/server/saga"
	"github.com/haulhq/driveronboard/internal/server/sessions"
	"github.com/haulhq/driveronboard/internal/server/storage"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store := storage.NewS3Store(cfg, logger)
	lifecycle := sessions.NewService(rm.Sessions(db), cfg)
	finalizer := saga.NewFinalizer(store, rm.Records(db), logger)
	orchestrator := onboarding.NewOrchestrator(db, rm, lifecycle, finalizer, store, logger)

	srv := httpapi.NewServer(cfg.EndpointAddrHTTP, lifecycle, orchestrator, store, logger)

	return &App{config: cfg, logger: logger, db: db, server: srv}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
