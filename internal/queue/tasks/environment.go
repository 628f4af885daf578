package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/environment"
	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

// Orchestrator is the part of the lifecycle orchestrator the worker drives.
type Orchestrator interface {
	CreatePR(ctx context.Context, projectID, pr string, app environment.AppDefinition, ssh environment.SSHData) (*environment.Environment, error)
	DestroyPR(ctx context.Context, projectID, pr string) error
	CreateDeployment(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error)
	UpdateDeployment(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error)
	DestroyDeployment(ctx context.Context, projectID, deployment string) error
}

// EnvironmentTaskHandler runs pull request and deployment tasks.
type EnvironmentTaskHandler struct {
	orch Orchestrator
}

func NewEnvironmentTaskHandler(orch Orchestrator) *EnvironmentTaskHandler {
	return &EnvironmentTaskHandler{orch: orch}
}

// Register mounts every handler on mux.
func (h *EnvironmentTaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePRCreate, h.HandlePRCreate)
	mux.HandleFunc(TypePRDestroy, h.HandlePRDestroy)
	mux.HandleFunc(TypeDeploymentCreate, h.HandleDeploymentCreate)
	mux.HandleFunc(TypeDeploymentUpdate, h.HandleDeploymentUpdate)
	mux.HandleFunc(TypeDeploymentDestroy, h.HandleDeploymentDestroy)
}

func (h *EnvironmentTaskHandler) HandlePRCreate(ctx context.Context, t *asynq.Task) error {
	var p PRPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	log := logger.L().With(zap.String("task", t.Type()), zap.String("project_id", p.ProjectID), zap.String("pr", p.PR))
	log.Info("handling task")

	if p.Replace {
		if err := h.orch.DestroyPR(ctx, p.ProjectID, p.PR); err != nil {
			log.Error("replacing pull request environment failed", zap.Error(err))
			return classify(err)
		}
	}
	env, err := h.orch.CreatePR(ctx, p.ProjectID, p.PR, p.App, p.SSH)
	if err != nil {
		log.Error("create pull request environment failed", zap.Error(err))
		return classify(err)
	}
	log.Info("pull request environment ready", zap.String("public_ip", env.PublicIP), zap.String("subdomain", env.Subdomain))
	return nil
}

func (h *EnvironmentTaskHandler) HandlePRDestroy(ctx context.Context, t *asynq.Task) error {
	var p PRPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	log := logger.L().With(zap.String("task", t.Type()), zap.String("project_id", p.ProjectID), zap.String("pr", p.PR))
	log.Info("handling task")

	if err := h.orch.DestroyPR(ctx, p.ProjectID, p.PR); err != nil {
		log.Error("destroy pull request environment failed", zap.Error(err))
		return classify(err)
	}
	return nil
}

func (h *EnvironmentTaskHandler) HandleDeploymentCreate(ctx context.Context, t *asynq.Task) error {
	return h.deployment(ctx, t, h.orch.CreateDeployment)
}

func (h *EnvironmentTaskHandler) HandleDeploymentUpdate(ctx context.Context, t *asynq.Task) error {
	return h.deployment(ctx, t, h.orch.UpdateDeployment)
}

func (h *EnvironmentTaskHandler) HandleDeploymentDestroy(ctx context.Context, t *asynq.Task) error {
	var p DeploymentPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	log := logger.L().With(zap.String("task", t.Type()), zap.String("project_id", p.ProjectID), zap.String("deployment", p.Deployment))
	log.Info("handling task")

	if err := h.orch.DestroyDeployment(ctx, p.ProjectID, p.Deployment); err != nil {
		log.Error("destroy deployment failed", zap.Error(err))
		return classify(err)
	}
	return nil
}

type deployFunc func(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error)

func (h *EnvironmentTaskHandler) deployment(ctx context.Context, t *asynq.Task, run deployFunc) error {
	var p DeploymentPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	log := logger.L().With(zap.String("task", t.Type()), zap.String("project_id", p.ProjectID),
		zap.String("deployment", p.Deployment), zap.String("sha", p.SHA))
	log.Info("handling task")

	env, err := run(ctx, p.ProjectID, p.Deployment, p.SHA, p.App)
	if err != nil {
		log.Error("deployment task failed", zap.Error(err))
		return classify(err)
	}
	log.Info("deployment ready", zap.String("instance_id", env.InstanceID), zap.String("subdomain", env.Subdomain))
	return nil
}

func decode(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		logger.L().Error("invalid task payload", zap.String("task", t.Type()), zap.Error(err))
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

// classify marks errors that cannot succeed on a later attempt.
func classify(err error) error {
	if errors.Is(err, tagging.ErrNotOwned) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	switch appErr.CodeOf(err) {
	case appErr.CodeInvalid, appErr.CodeFailedPrecondition, appErr.CodeNotFound:
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
