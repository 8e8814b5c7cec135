package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signaling-platform/internal/audit"
	"signaling-platform/internal/auth"
	"signaling-platform/internal/availability"
	"signaling-platform/internal/calls"
	"signaling-platform/internal/config"
	"signaling-platform/internal/coordinator"
	"signaling-platform/internal/pending"
	"signaling-platform/internal/publisher"
	"signaling-platform/internal/realtime"
	"signaling-platform/internal/reporting"
	"signaling-platform/internal/routing"
	"signaling-platform/pkg/logger"
	"signaling-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	b := openBackends(rootCtx, cfg, log)
	defer b.close(log)

	// Stores. A missing durable backend means the failover decorator starts on memory.
	var callPrimary calls.Store
	if b.db != nil {
		callPrimary = calls.NewPostgresStore(b.db)
	}
	callStore := calls.NewFailoverStore(callPrimary, nil, log, cfg.App.StoreOpTimeout)

	var staffPrimary availability.Repository
	switch {
	case b.mongo != nil:
		repo := availability.NewMongoRepo(b.mongo)
		if err := repo.EnsureIndexes(rootCtx); err != nil {
			log.Warn("mongo index setup failed", "err", err)
		}
		staffPrimary = repo
	case b.db != nil:
		staffPrimary = availability.NewPostgresRepo(b.db)
	}
	staffRepo := availability.NewFailoverRepo(staffPrimary, log, cfg.App.StoreOpTimeout)

	var auditRepo audit.Repository = audit.NewMemoryRepo()
	if b.db != nil {
		auditRepo = audit.NewPostgresRepo(b.db)
	}
	auditSvc := audit.NewService(auditRepo)

	registry := availability.NewRegistry(staffRepo,
		availability.WithChangeLogger(auditSvc),
		availability.WithLogger(log),
	)

	var queue pending.Queue = pending.NewMemoryQueue(cfg.Calls.PendingCapacity, nil)
	if b.redis != nil {
		queue = pending.NewRedisQueue(b.redis, cfg.Calls.PendingCapacity, nil)
	}

	hub := realtime.NewHub(log)

	opts := []coordinator.Option{
		coordinator.WithAuditor(auditSvc),
		coordinator.WithRingTimeout(cfg.Calls.RingTimeout),
		coordinator.WithLogger(log),
	}
	if b.mqtt != nil {
		opts = append(opts, coordinator.WithMirror(b.mqtt, cfg.MQTT.TopicPrefix))
	}
	coord := coordinator.New(callStore,
		routing.NewPolicy(registry, routing.ParseStrategy(cfg.Calls.RoutingStrategy)),
		hub, queue, opts...)

	watchdog := coordinator.NewWatchdog(coord, cfg.Calls.SweepInterval, log)
	if err := watchdog.Start(rootCtx); err != nil {
		log.Error("watchdog start failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, deps{
		auth:     authManager,
		coord:    coord,
		registry: registry,
		reports:  reporting.NewService(reporting.NewStoreRepo(callStore)),
		audit:    auditSvc,
		rtc:      realtime.NewServer(hub, coord, authManager, log),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env,
			"calls_degraded", callStore.Degraded(), "availability_degraded", staffRepo.Degraded())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	watchdog.Stop(shutdownCtx)
	// Hijacked websocket connections are not tracked by http.Server.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// backends holds the optional external connections. A nil field means the
// backend is not configured or was unreachable at startup.
type backends struct {
	db          *sql.DB
	redis       redis.UniversalClient
	mongoClient *mongo.Client
	mongo       *mongo.Database
	mqtt        *publisher.MQTTPublisher
}

func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) backends {
	var b backends

	if cfg.DBEnabled() {
		db, err := utils.OpenPostgres(ctx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres unavailable, using memory", "err", err)
		} else {
			b.db = db
		}
	}

	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addrs: cfg.RedisAddrs(), MasterName: cfg.Redis.MasterName})
		if err != nil {
			log.Error("redis unavailable, pending invites stay in memory", "err", err)
		} else {
			b.redis = rdb
		}
	}

	if cfg.Mongo.URI != "" {
		client, db, err := utils.OpenMongo(ctx, utils.MongoConfig{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			log.Error("mongo unavailable", "err", err)
		} else {
			b.mongoClient, b.mongo = client, db
		}
	}

	if cfg.MQTT.Broker != "" {
		pub, err := publisher.NewMQTTPublisher(publisher.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			QoS:      1,
		})
		if err != nil {
			log.Error("mqtt unavailable, call state is not mirrored", "err", err)
		} else {
			b.mqtt = pub
		}
	}

	return b
}

func (b backends) close(log *slog.Logger) {
	if b.mqtt != nil {
		_ = b.mqtt.Close()
	}
	if b.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.mongoClient.Disconnect(ctx); err != nil {
			log.Warn("mongo disconnect failed", "err", err)
		}
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}
