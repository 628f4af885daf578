package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/api"
	"github.com/iac-studio/envforge/internal/bootstrap"
	"github.com/iac-studio/envforge/internal/provisioner"
	"github.com/iac-studio/envforge/internal/services"
	"github.com/iac-studio/envforge/pkg/config"
	"github.com/iac-studio/envforge/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting envforge api",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("secret_store", cfg.SecretStore),
	)

	ctx := context.Background()
	rt, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	defer rt.Close()

	// The listener comes up before the binding is resolved; /readyz
	// reports 503 until it is.
	resolveCtx, stopResolve := context.WithCancel(ctx)
	defer stopResolve()
	go func() {
		if err := rt.ResolveUntilReady(resolveCtx); err != nil {
			log.Error("resolve failed", zap.Error(err))
		}
	}()

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer client.Close()

	envs := services.NewEnvironmentService(client)
	router := api.NewRouter(api.Dependencies{
		Tokens: services.NewTokenService([]byte(cfg.APITokenSecret)),
		Ready: func() error {
			if rt.Orchestrator.State() != provisioner.Ready {
				return provisioner.ErrNotReady
			}
			return nil
		},
		Projects:     services.NewProjectService(rt.Orchestrator, rt.Secrets),
		Environments: envs,
		Webhooks: services.NewWebhookService(rt.Secrets, envs, services.WebhookConfig{
			RegistryHost:       cfg.RegistryHost,
			AppPort:            int32(cfg.AppPort),
			DeploymentBranches: cfg.DeploymentBranches,
		}),
		TrustProxy: cfg.TrustProxy,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// project create waits on several provider calls
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
