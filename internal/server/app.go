// Package server initializes and runs the chat node. It connects the shared
// directory store (falling back to degraded mode when it is unreachable),
// wires the personal-store pool and the domain services, and serves the HTTP
// and websocket endpoint until the process is signalled to stop.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/accounts"
	"github.com/openchat-im/openchat/internal/server/config"
	"github.com/openchat-im/openchat/internal/server/directory"
	"github.com/openchat-im/openchat/internal/server/files"
	"github.com/openchat-im/openchat/internal/server/groups"
	"github.com/openchat-im/openchat/internal/server/httpapi"
	"github.com/openchat-im/openchat/internal/server/linking"
	"github.com/openchat-im/openchat/internal/server/messaging"
	"github.com/openchat-im/openchat/internal/server/migrations"
	"github.com/openchat-im/openchat/internal/server/presence"
	"github.com/openchat-im/openchat/internal/server/push"
	"github.com/openchat-im/openchat/internal/server/repositories/records"
	"github.com/openchat-im/openchat/internal/server/storepool"
	"github.com/openchat-im/openchat/internal/server/ws"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	server  *httpapi.Server
	pool    *storepool.Pool
	cache   *directory.Cache
	closers []func()
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewDefault()

	cache, err := directory.OpenCache(cfg.FallbackCachePath)
	if err != nil {
		return nil, fmt.Errorf("cache init error: %w", err)
	}

	app := &App{config: cfg, logger: logger, cache: cache}
	app.closers = append(app.closers, func() { cache.Close() })

	var repo records.Repository
	db, err := directory.Connect(ctx, logger, cfg.DirectoryDSN)
	if err != nil {
		// Degraded mode: serve logins from the last-known cache and keep
		// new registrations in memory until the directory is back.
		logger.Warn(ctx, "directory unreachable, running in degraded mode", "error", err)
		repo = directory.NewFallbackRepository(cache)
	} else {
		repo = directory.NewCachingRepository(records.NewSQLRepository(db), cache, logger)
		app.closers = append(app.closers, func() { db.Close() })
	}

	pool := storepool.NewPool(logger, migrations.Personal())
	app.pool = pool
	app.closers = append(app.closers, pool.CloseAll)

	dirSvc := directory.NewService(repo, logger, cfg.StoreBaseDSN, cfg.PublicStoreBaseDSN)
	linkSvc := linking.NewService(dirSvc, pool, logger)
	accountSvc := accounts.NewService(dirSvc, pool, linkSvc, logger,
		[]byte(cfg.SecretKey), cfg.SessionTokenValidityDuration)

	tracker := presence.NewTracker()
	hub := ws.NewHub(logger, tracker, func(username string, online bool) {
		if err := accountSvc.SetOnline(context.Background(), username, online); err != nil {
			logger.Warn(context.Background(), "updating presence", "username", username, "error", err)
		}
	})

	pusher := push.NewLogPusher(logger)
	messagingSvc := messaging.NewService(dirSvc, pool, hub, pusher, logger)
	groupSvc := groups.NewService(dirSvc, pool, hub, logger)
	fileSvc := files.NewService(cfg)

	app.server = httpapi.NewServer(logger, accountSvc, linkSvc, messagingSvc,
		groupSvc, fileSvc, hub, []byte(cfg.SecretKey))

	return app, nil
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

	app.logger.Info(ctx, "Starting app...", "addr", app.config.EndpointAddr)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.server.Router(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	app.logger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, err.Error())
	}

	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
}
