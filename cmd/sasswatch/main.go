package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/sasswatch/sasswatch-api/cmd/sasswatch/cli"
	"github.com/sasswatch/sasswatch-api/internal/app"
	"github.com/sasswatch/sasswatch-api/internal/audit"
	"github.com/sasswatch/sasswatch-api/internal/auth"
	"github.com/sasswatch/sasswatch-api/internal/observability"
	"github.com/sasswatch/sasswatch-api/internal/platform/cache"
	"github.com/sasswatch/sasswatch-api/internal/rbac"
	"github.com/sasswatch/sasswatch-api/internal/users"
	"github.com/sasswatch/sasswatch-api/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	hasher, err := auth.NewHasher(cfg.AuthBcryptCost, cfg.AuthVerifyConcurrency)
	if err != nil {
		logger.Error("init hasher", slog.Any("error", err))
		os.Exit(1)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open principal store", slog.Any("error", err))
		os.Exit(1)
	}

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "principal" {
		principals, err := cli.NewPrincipalCLI(users.NewService(store, hasher, logger))
		if err != nil {
			logger.Error("init principal cli", slog.Any("error", err))
			closeStore()
			os.Exit(1)
		}
		code := principals.Run(ctx, args[1:], cli.Options{})
		closeStore()
		os.Exit(code)
	}
	defer closeStore()

	if err := serve(ctx, cfg, logger, hasher, store); err != nil {
		logger.Error("serve", slog.Any("error", err))
		stop()
		closeStore()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger, hasher *auth.Hasher, store users.RepositoryPort) error {
	policy, err := loadPolicy(cfg)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	readiness := []app.ReadinessCheck{{Name: "store", Check: store.Ping}}

	authn := auth.Middleware{
		Service: auth.NewService(store, hasher, logger),
		Logger:  logger,
		Metrics: metrics,
	}
	if cfg.AuditEnabled {
		redisClient, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		readiness = append(readiness, app.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return cache.Ping(ctx, redisClient) },
		})

		queue := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("audit queue close", slog.Any("error", err))
			}
		}()
		recorder := audit.NewRecorder(queue, metrics, logger)
		if err := audit.RegisterBacklog(metrics.Registerer(), recorder, queue); err != nil {
			return err
		}
		recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
		recorderDone := make(chan struct{})
		go func() {
			defer close(recorderDone)
			recorder.Run(recorderCtx)
		}()
		// Runs before the queue closes so buffered decisions are flushed.
		defer func() {
			stopRecorder()
			<-recorderDone
		}()
		authn.Recorder = recorder
	}

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Auth:    authn,
		RBAC: rbac.Middleware{
			Resources: rbac.NewResourceAuthorizer(store, logger),
			Logger:    logger,
			Reporter:  authn,
		},
		Policy:    policy,
		Handlers:  map[string]http.Handler{},
		Readiness: readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Int("routes", len(policy.Routes)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}

func loadPolicy(cfg *app.Config) (*rbac.Policy, error) {
	if cfg.AppPolicyFile != "" {
		return rbac.LoadPolicyFile(cfg.AppPolicyFile)
	}
	return rbac.DefaultPolicy()
}
