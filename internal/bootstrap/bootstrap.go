// Package bootstrap assembles the long-lived dependencies shared by the
// envforge binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/network"
	"github.com/iac-studio/envforge/internal/provisioner"
	"github.com/iac-studio/envforge/internal/repository"
	"github.com/iac-studio/envforge/pkg/awsclient"
	"github.com/iac-studio/envforge/pkg/config"
	"github.com/iac-studio/envforge/pkg/database"
	"github.com/iac-studio/envforge/pkg/logger"
)

// Runtime holds the wired dependencies. Close releases them.
type Runtime struct {
	Config       *config.Config
	AWS          *awsclient.Clients
	Secrets      *repository.WebhookSecrets
	Orchestrator *provisioner.Orchestrator

	closers []func() error
}

// New loads AWS clients, opens the configured secret store and builds an
// unresolved orchestrator.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	clients, err := awsclient.Load(ctx, cfg.AWSRegion, cfg.AWSProfile)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, AWS: clients}

	store, err := rt.itemStore(ctx)
	if err != nil {
		return nil, err
	}
	rt.Secrets = repository.NewWebhookSecrets(store, cfg.WebhookSecretTable)

	rt.Orchestrator = provisioner.NewForAWS(
		provisioner.APIsFrom(clients),
		rt.Secrets,
		InstanceOptions(cfg),
		provisioner.WithStrictLookup(cfg.StrictProjectLookup),
	)
	return rt, nil
}

// Resolve binds the orchestrator to the managed VPC and hosted zone.
func (rt *Runtime) Resolve(ctx context.Context) error {
	return rt.Orchestrator.Resolve(ctx)
}

// ResolveUntilReady retries Resolve with capped exponential backoff until it
// succeeds or ctx is done.
func (rt *Runtime) ResolveUntilReady(ctx context.Context) error {
	return retry(ctx, rt.Resolve, time.Second, time.Minute)
}

func retry(ctx context.Context, fn func(context.Context) error, delay, maxDelay time.Duration) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		logger.L().Warn("resolve failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("resolve abandoned after %d attempts: %w", attempt, err)
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logger.L().Warn("close failed", zap.Error(err))
		}
	}
	rt.closers = nil
}

func (rt *Runtime) itemStore(ctx context.Context) (repository.ItemStore, error) {
	switch rt.Config.SecretStore {
	case config.SecretStoreDynamoDB:
		return repository.NewDynamoItemStore(rt.AWS.DynamoDB), nil
	case config.SecretStorePostgres:
		db, err := database.OpenPostgres(ctx, rt.Config.DatabaseURL, rt.Config.IsDevelopment())
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, sqlDB.Close)
		return repository.NewItemRepository(db, map[string]string{
			rt.Config.WebhookSecretTable: repository.ProjectNameAttr,
		}), nil
	default:
		return nil, fmt.Errorf("unknown secret store %q", rt.Config.SecretStore)
	}
}

// InstanceOptions maps the instance settings of cfg.
func InstanceOptions(cfg *config.Config) []network.InstanceOption {
	var opts []network.InstanceOption
	if cfg.InstanceAMI != "" {
		opts = append(opts, network.WithImage(cfg.InstanceAMI))
	}
	if cfg.InstanceType != "" {
		opts = append(opts, network.WithInstanceType(cfg.InstanceType))
	}
	return opts
}
