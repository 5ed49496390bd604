package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/config"
	"github.com/iliyamo/ewaste-marketplace/internal/database"
	"github.com/iliyamo/ewaste-marketplace/internal/handler"
	"github.com/iliyamo/ewaste-marketplace/internal/identity"
	"github.com/iliyamo/ewaste-marketplace/internal/middleware"
	"github.com/iliyamo/ewaste-marketplace/internal/queue"
	"github.com/iliyamo/ewaste-marketplace/internal/relay"
	"github.com/iliyamo/ewaste-marketplace/internal/repository"
	"github.com/iliyamo/ewaste-marketplace/internal/router"
	queue_publisher "github.com/iliyamo/ewaste-marketplace/internal/service"
	"github.com/iliyamo/ewaste-marketplace/internal/storage"
	"github.com/iliyamo/ewaste-marketplace/internal/workflow"
)

const shutdownTimeout = 10 * time.Second

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	user, pass, host, port, name := cfg.DSNParts()
	db, err := database.Open(ctx, user, pass, host, port, name)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info("schema applied", zap.Int("statements", len(database.Statements())))
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	user, pass, host, port, name := cfg.DSNParts()
	db, err := database.Open(ctx, user, pass, host, port, name)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := relay.NewHub(log.Named("relay"))
	defer hub.Close()

	// Redis is optional.  Without it rate limiting and the marketplace
	// cache are off and change events stay inside this process.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn("redis unavailable, running without rate limit, cache and relay bridge", zap.Error(err))
	}
	cacheCfg := config.LoadCacheConfig()
	if rdb != nil {
		defer rdb.Close()
		bridge := relay.NewRedisBridge(hub, rdb, cfg.RelayChannel, log.Named("relay"))
		if err := bridge.Start(ctx); err != nil {
			log.Warn("relay bridge not started", zap.Error(err))
		} else {
			defer bridge.Close()
		}
		purge := hub.Subscribe("cache:purge", relay.Spec{Table: workflow.TableInventory, Op: relay.OpAny}, func(relay.Event) {
			purgeMarketplaceCache(ctx, rdb, cacheCfg.Prefix)
		})
		defer purge.Unsubscribe()
	}

	accounts := repository.NewAccountRepo(db)
	profiles := repository.NewProfileRepo(db)
	ids := identity.NewService(accounts, profiles, repository.NewTokenRepo(db), identity.Config{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	}, log.Named("identity"))

	deps := workflow.Deps{
		Requests:  repository.NewPickupRequestRepo(db),
		Inventory: repository.NewInventoryRepo(db),
		Orders:    repository.NewOrderRepo(db),
		Profiles:  profiles,
		Messages:  repository.NewContactMessageRepo(db),
		Objects:   storage.NewLocalStore(cfg.StorageDir, cfg.StoragePublicURL),
		Relay:     hub,
		Log:       log.Named("workflow"),
	}
	if cfg.AMQPEnabled {
		deps.Events = queue_publisher.NewPublisher(cfg.AMQPURL, log.Named("amqp"))
		consumer := &queue.ActivityConsumer{URL: cfg.AMQPURL, Dir: cfg.ActivityDir, Log: log.Named("activity")}
		go consumer.Run(ctx)
	}
	wf := workflow.New(deps)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log.Named("http")))
	e.Use(echomw.CORS())
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log.Named("ratelimit")))

	guard := router.Guard{Tokens: ids, Profiles: ids, Log: log}
	router.RegisterRoutes(e, db, cfg.StorageDir)
	router.RegisterAuth(e, handler.NewAuthHandler(ids, log), guard)
	router.RegisterAccount(e, handler.NewProfileHandler(wf, log), handler.NewRealtimeHandler(hub, log), guard)
	router.RegisterCustomer(e, handler.NewCustomerHandler(wf, log), guard)
	router.RegisterCompany(e, handler.NewCompanyHandler(wf, log), guard, middleware.NewRedisCache(cacheCfg, rdb, log.Named("cache")))
	router.RegisterAdmin(e, handler.NewAdminHandler(wf, log), guard)

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	wf.Wait()
	return nil
}

func purgeMarketplaceCache(ctx context.Context, rdb *redis.Client, prefix string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := middleware.PurgeCache(ctx, rdb, prefix)
	if err != nil {
		log.Warn("marketplace cache purge failed", zap.Error(err))
		return
	}
	log.Debug("marketplace cache purged", zap.Int("keys", n))
}
