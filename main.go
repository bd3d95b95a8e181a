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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/seguralta/portal/handlers"
	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/database"
	"github.com/seguralta/portal/internal/identity"
	"github.com/seguralta/portal/internal/onboarding"
	"github.com/seguralta/portal/internal/sessions"
	"github.com/seguralta/portal/internal/storage"
	"github.com/seguralta/portal/internal/tokens"
	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/metrics"
)

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: provider=%s mongo=%v redis=%v minio=%v",
		cfg.Identity.Provider, cfg.MongoDB.URI != "", cfg.Redis.Addr() != "", cfg.Storage.Endpoint != "")
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	monitor := metrics.NewMonitor(reg)
	if err := monitor.Start(15 * time.Second); err != nil {
		logger.Fatalf("metrics: %v", err)
	}
	defer monitor.Stop()

	checks := map[string]handlers.Check{}

	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis ping failed (%s): %v", addr, err)
		} else {
			logger.Infof("connected to Redis at %s", addr)
		}
	}
	var revoker *sessions.Revoker
	if rdb != nil {
		revoker = sessions.NewRevoker(rdb)
		checks["redis"] = revoker.Ping
	}

	var repo users.UserRepository
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5, func(attempt int, err error) {
			logger.Warnf("attempt %d/5: failed to connect to MongoDB: %v", attempt, err)
		})
		if err != nil {
			logger.Fatalf("mongodb: %v", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		col := client.Database(cfg.MongoDB.Database).Collection("users")
		if err := database.EnsureUserIndexes(ctx, col); err != nil {
			logger.Fatalf("mongodb indexes: %v", err)
		}
		repo = users.NewMongoUserRepository(col)
		checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	} else {
		logger.Warn("MONGODB_URI not set; users are kept in memory")
		repo = users.NewMemoryUserRepository()
	}
	userSvc := users.NewService(repo)

	idp, err := identity.NewStack(ctx, cfg.Identity)
	if err != nil {
		logger.Fatalf("identity provider: %v", err)
	}

	issuer, err := tokens.NewIssuer(cfg.JWT.Secret, cfg.JWT.MutationTokenTTL)
	if err != nil {
		logger.Fatalf("mutation tokens: %v", err)
	}
	action := onboarding.NewAction(idp.Provider, users.NewMutationClient(userSvc, issuer), issuer, monitor)

	var contracts handlers.ContractStore
	if cfg.Storage.Endpoint != "" {
		cs, err := storage.NewContractStore(ctx, cfg.Storage)
		if err != nil {
			logger.Warnf("contract storage unavailable: %v", err)
		} else {
			contracts = cs
			checks["minio"] = cs.Ping
		}
	}

	router, err := handlers.NewRouter(handlers.Deps{
		Config:    cfg,
		Verifier:  idp.Verifier,
		Mutations: issuer,
		Revoker:   revoker,
		Users:     userSvc,
		Action:    action,
		Contracts: contracts,
		Redis:     rdb,
		Monitor:   monitor,
		Gatherer:  reg,
		Checks:    checks,
	})
	if err != nil {
		logger.Fatalf("router: %v", err)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting portal on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown: %v", err)
	}
}
