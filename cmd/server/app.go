package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/janisto/waitlist/internal/http/health"
	"github.com/janisto/waitlist/internal/http/v1/routes"
	"github.com/janisto/waitlist/internal/http/v1/waitlist"
	"github.com/janisto/waitlist/internal/platform/config"
	"github.com/janisto/waitlist/internal/platform/firebase"
	applog "github.com/janisto/waitlist/internal/platform/logging"
	"github.com/janisto/waitlist/internal/platform/metrics"
	appmiddleware "github.com/janisto/waitlist/internal/platform/middleware"
	"github.com/janisto/waitlist/internal/platform/respond"
	waitlistsvc "github.com/janisto/waitlist/internal/service/waitlist"
)

const metricsPath = "/metrics"

// closer releases a store's client.
type closer func() error

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openStore builds the Store selected by cfg.Store.Driver.
func openStore(ctx context.Context, cfg *config.Config) (waitlistsvc.Store, closer, error) {
	noop := func() error { return nil }

	switch cfg.Store.Driver {
	case config.DriverMemory:
		applog.LogWarn(ctx, "using in-memory store; signups are lost on restart")
		return waitlistsvc.NewMemoryStore(), noop, nil

	case config.DriverFirestore:
		applog.SetProjectID(cfg.Firestore.ProjectID)
		client, err := firebase.NewFirestore(ctx, firebase.Config{
			ProjectID:                    cfg.Firestore.ProjectID,
			GoogleApplicationCredentials: cfg.Firestore.CredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		return waitlistsvc.NewFirestoreStore(client, cfg.Firestore.Collection), client.Close, nil

	case config.DriverPostgres:
		db, err := waitlistsvc.OpenPostgres(cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
		if err != nil {
			return nil, nil, err
		}
		return waitlistsvc.NewPostgresStore(db, cfg.Postgres.Table), db.Close, nil

	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return waitlistsvc.NewRedisStore(client, cfg.Redis.KeyPrefix), client.Close, nil

	case config.DriverDynamoDB:
		client, err := waitlistsvc.NewDynamoDBClient(ctx, waitlistsvc.DynamoDBClientConfig{
			Region:   cfg.DynamoDB.Region,
			Profile:  cfg.DynamoDB.Profile,
			Endpoint: cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return waitlistsvc.NewDynamoDBStore(client, cfg.DynamoDB.Table), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newRouter assembles middleware, the huma API and operational endpoints.
func newRouter(cfg *config.Config, svc waitlistsvc.Service, m *metrics.Metrics) chi.Router {
	router := chi.NewRouter()
	router.NotFound(respond.NotFoundHandler())
	router.MethodNotAllowed(respond.MethodNotAllowedHandler())

	router.Use(
		appmiddleware.Security(routes.DocsPath),
		appmiddleware.Vary(),
		appmiddleware.CORS(cfg.Server.AllowedOrigins...),
		appmiddleware.RequestID(),
		// RealIP trusts X-Forwarded-For; only run behind a trusted proxy.
		chimiddleware.RealIP,
		chimiddleware.RequestSize(cfg.Server.MaxBodyBytes),
		applog.RequestLogger(),
		applog.AccessLogger(),
		respond.Recoverer(),
	)

	router.Get(health.Path, health.Handler)
	router.Method(http.MethodGet, metricsPath, m.Handler())

	api := routes.NewAPI(router, routes.NewConfig("Waitlist API", Version))
	routes.Register(api, svc, waitlist.Options{
		UseCases:      cfg.Waitlist.UseCases,
		NameMaxLength: cfg.Waitlist.NameMaxLength,
		MaxBodyBytes:  cfg.Server.MaxBodyBytes,
		Metrics:       m,
	})
	return router
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			applog.LogError(context.Background(), "store close error", err)
		}
	}()

	m := metrics.New()
	svc := waitlistsvc.NewRegistrar(store, waitlistsvc.Options{
		MaxAttempts: cfg.Store.MaxAttempts,
		Timeout:     cfg.Store.Timeout(),
		Backoff:     cfg.Store.Backoff(),
		Metrics:     m,
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           newRouter(cfg, svc, m),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10, // 64 KB
	}

	listenErr := make(chan error, 1)
	go func() {
		applog.LogInfo(ctx, "server listening",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)
	select {
	case err := <-listenErr:
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	case <-stop:
		applog.LogInfo(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		applog.LogError(shutdownCtx, "server shutdown error", err)
	}
	applog.LogInfo(ctx, "server exited")
	return nil
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate requires the %s store, configured %q", config.DriverPostgres, cfg.Store.Driver)
	}

	db, err := waitlistsvc.OpenPostgres(cfg.Postgres.DSN, 1)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := waitlistsvc.NewPostgresStore(db, cfg.Postgres.Table).Migrate(ctx); err != nil {
		return err
	}
	applog.LogInfo(ctx, "migration complete", zap.String("table", cfg.Postgres.Table))
	return nil
}
