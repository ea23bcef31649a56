package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-tracker/internal/auth"
	"github.com/ukydev/fleet-tracker/internal/backup"
	"github.com/ukydev/fleet-tracker/internal/config"
	"github.com/ukydev/fleet-tracker/internal/db"
	"github.com/ukydev/fleet-tracker/internal/handlers"
	"github.com/ukydev/fleet-tracker/internal/localstore"
	"github.com/ukydev/fleet-tracker/internal/logging"
	"github.com/ukydev/fleet-tracker/internal/middleware"
	"github.com/ukydev/fleet-tracker/internal/models"
	"github.com/ukydev/fleet-tracker/internal/notify"
	"github.com/ukydev/fleet-tracker/internal/reconcile"
)

const startupTimeout = 30 * time.Second

// app is the wired server with the resources it must release.
type app struct {
	handler http.Handler
	store   *localstore.Store[models.FleetData]
	backups *backup.Scheduler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp opens the local cache, the optional remote backend and the MQTT
// notifier, and builds the HTTP handler.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Entry) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.close()
		return nil, err
	}

	cache, err := localstore.OpenSQLiteCache(cfg.LocalDBPath)
	if err != nil {
		return fail(err)
	}
	a.closers = append(a.closers, func() { cache.Close() })

	var (
		users  db.UserCollection
		remote localstore.Remote
	)
	switch cfg.RemoteBackend {
	case config.BackendMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, func() { client.Disconnect(context.Background()) })
		database := client.Database(cfg.MongoDB)
		users = &db.MongoUserCollection{Collection: database.Collection("users")}
		remote = &db.MongoUserData{Collection: database.Collection("user_data")}
	case config.BackendPostgres:
		pool, err := db.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, pool.Close)
		pg := &db.PostgresUserData{Pool: pool}
		if err := pg.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		remote = pg
	}
	if users == nil {
		sqliteUsers, err := db.NewSQLiteUserCollection(ctx, cache.DB())
		if err != nil {
			return fail(err)
		}
		users = sqliteUsers
	}

	var notifier localstore.Notifier
	if cfg.MQTTBroker != "" {
		client, err := notify.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			logger.WithError(err).Warn("MQTT broker unavailable, sync events disabled")
		} else {
			a.closers = append(a.closers, func() { client.Disconnect(250) })
			notifier = notify.NewMQTTNotifier(client, cfg.MQTTTopicPrefix)
		}
	}

	store, err := localstore.New(localstore.Options[models.FleetData]{
		Key:       cfg.StoreKey,
		Defaults:  models.DefaultFleetData,
		Normalize: models.FleetData.Normalize,
		Cache:     cache,
		Remote:    remote,
		Notifier:  notifier,
		Logger:    logger,
	})
	if err != nil {
		return fail(err)
	}
	a.store = store
	a.closers = append(a.closers, store.Wait)

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return fail(err)
	}

	a.backups = backup.NewScheduler(store, cfg.BackupDir, cfg.BackupSchedule, logger)
	a.handler = handlers.NewRouter(handlers.RouterConfig{
		Auth:           handlers.NewAuthHandler(authService, users, store, logger),
		Fleet:          handlers.NewFleetHandler(store, logger),
		Imports:        handlers.NewImportHandler(store, reconcile.New(store, logger), cfg.ImportPreviewLimit, logger),
		Sync:           handlers.NewSyncHandler(store, a.backups, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(authService, users),
		RateLimit:      middleware.NewRateLimitMiddleware().RateLimit(cfg.RateLimitMax, cfg.RateLimitWindow),
		Logger:         logger,
	})

	logger.WithFields(log.Fields{
		"local_db": cfg.LocalDBPath,
		"backend":  cfg.RemoteBackend,
		"mqtt":     notifier != nil,
		"vehicles": len(store.Get().Motorcycles),
	}).Info("Fleet store loaded")
	return a, nil
}

// run serves until ctx is cancelled, then shuts down gracefully. Startup runs
// under its own deadline; ctx only bounds serving.
func run(ctx context.Context, cfg *config.Config, logger *log.Entry) error {
	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	a, err := newApp(startCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.backups.Start(); err != nil {
		return err
	}
	defer a.backups.Stop()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	closer, err := logging.Setup(log.StandardLogger(), logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to set up logging")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.NewEntry(log.StandardLogger())); err != nil {
		log.WithError(err).Error("Server stopped")
		os.Exit(1)
	}
}
