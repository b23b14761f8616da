package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/api"
	"github.com/clearledger/gatekeeper/pkg/approval"
	"github.com/clearledger/gatekeeper/pkg/audit"
	"github.com/clearledger/gatekeeper/pkg/config"
	"github.com/clearledger/gatekeeper/pkg/entitlement"
	"github.com/clearledger/gatekeeper/pkg/gate"
	"github.com/clearledger/gatekeeper/pkg/observability"
	"github.com/clearledger/gatekeeper/pkg/permissions"
	"github.com/clearledger/gatekeeper/pkg/rbac"
	"github.com/clearledger/gatekeeper/pkg/registry"
	"github.com/clearledger/gatekeeper/pkg/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger("info").WithError(err).Fatal("failed to load configuration")
	}

	log := observability.NewLogger(cfg.LogLevel)

	db, err := storage.Open(cfg.Database.URL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConns)

	ctx := context.Background()
	if err := runMigrations(ctx, db, log); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	registryStore := registry.NewStore(db)
	if err := registryStore.SeedBuiltInCatalog(ctx); err != nil {
		log.WithError(err).Fatal("failed to seed module catalog")
	}
	catalog, err := registryStore.LoadCatalog(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to load module catalog")
	}

	var cache entitlement.Cache
	var redisClient *redis.Client
	if cfg.Cache.RedisURL != "" {
		redisCache, err := entitlement.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.RedisPassword, cfg.Cache.TTL)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to Redis")
		}
		defer redisCache.Close()
		cache = redisCache
		redisClient = redisCache.Client()
		log.Info("using Redis entitlement cache")
	} else {
		cache = entitlement.NewLRUCache(cfg.Cache.LRUSize, cfg.Cache.TTL)
		log.Info("using in-memory entitlement cache")
	}

	auditLog := audit.NewDBLogger(db, log)

	entitlementStore := entitlement.NewStore(db)
	entitlements := entitlement.NewResolver(entitlementStore, cache, catalog, auditLog, log)

	normalizer, err := permissions.NewDefaultNormalizer()
	if err != nil {
		log.WithError(err).Fatal("invalid permission hierarchy")
	}
	rbacStore := rbac.NewStore(db, catalog)
	rbacResolver := rbac.NewResolver(rbacStore, normalizer, log)

	accessGate := gate.NewGate(entitlements, rbacResolver, auditLog, log)

	approvalStore := approval.NewStore(db)
	approvals := approval.NewEngine(approvalStore, rbacResolver, auditLog, log)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Jobs.LegacyMapCron, func() {
		if err := entitlements.MaterializeLegacyMaps(context.Background()); err != nil {
			log.WithError(err).Error("legacy map materialization failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("invalid legacy map cron expression")
	}
	if _, err := scheduler.AddFunc(cfg.Jobs.EscalationCron, func() {
		if _, err := approvals.ScanEscalations(context.Background(), time.Now()); err != nil {
			log.WithError(err).Error("escalation scan failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("invalid escalation cron expression")
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := api.NewServer(api.Dependencies{
		Gate:          accessGate,
		Entitlements:  entitlements,
		RBACStore:     rbacStore,
		RBACResolver:  rbacResolver,
		Approvals:     approvals,
		ApprovalStore: approvalStore,
		AuditLog:      auditLog,
		JWTSecret:     cfg.Auth.JWTSecret,
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	healthMux.Handle("/metrics", promhttp.Handler())
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		log.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("health server failed")
		}
	}()

	go func() {
		log.WithField("addr", httpServer.Addr).Info("gatekeeper listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("health server shutdown failed")
	}
}

func runMigrations(ctx context.Context, db *sql.DB, log *logrus.Logger) error {
	if err := registry.RunMigrations(ctx, db, log); err != nil {
		return err
	}
	if err := audit.RunMigrations(ctx, db, log); err != nil {
		return err
	}
	if err := entitlement.RunMigrations(ctx, db, log); err != nil {
		return err
	}
	if err := rbac.RunMigrations(ctx, db, log); err != nil {
		return err
	}
	return approval.RunMigrations(ctx, db, log)
}
