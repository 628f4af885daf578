package services

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/environment"
	"github.com/iac-studio/envforge/internal/queue/tasks"
	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Job describes an enqueued environment task. ID is empty when no queue
// is configured.
type Job struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type"`
	Queue string `json:"queue,omitempty"`
}

// EnvironmentService validates pull request and deployment requests and
// hands them to the worker.
type EnvironmentService interface {
	CreatePR(ctx context.Context, projectID, pr string, app environment.AppDefinition, ssh environment.SSHData) (*Job, error)
	ReplacePR(ctx context.Context, projectID, pr string, app environment.AppDefinition, ssh environment.SSHData) (*Job, error)
	DestroyPR(ctx context.Context, projectID, pr string) (*Job, error)
	CreateDeployment(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*Job, error)
	UpdateDeployment(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*Job, error)
	DestroyDeployment(ctx context.Context, projectID, deployment string) (*Job, error)
}

type environmentService struct {
	client Enqueuer
}

func NewEnvironmentService(client Enqueuer) EnvironmentService {
	return &environmentService{client: client}
}

var _ EnvironmentService = (*environmentService)(nil)

func (s *environmentService) CreatePR(ctx context.Context, projectID, pr string, app environment.AppDefinition, ssh environment.SSHData) (*Job, error) {
	return s.enqueuePR(ctx, tasks.TypePRCreate, tasks.PRPayload{ProjectID: projectID, PR: pr, App: app, SSH: ssh})
}

func (s *environmentService) ReplacePR(ctx context.Context, projectID, pr string, app environment.AppDefinition, ssh environment.SSHData) (*Job, error) {
	return s.enqueuePR(ctx, tasks.TypePRCreate, tasks.PRPayload{ProjectID: projectID, PR: pr, App: app, SSH: ssh, Replace: true})
}

func (s *environmentService) DestroyPR(ctx context.Context, projectID, pr string) (*Job, error) {
	return s.enqueuePR(ctx, tasks.TypePRDestroy, tasks.PRPayload{ProjectID: projectID, PR: pr})
}

func (s *environmentService) CreateDeployment(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*Job, error) {
	return s.enqueueDeployment(ctx, tasks.TypeDeploymentCreate, tasks.DeploymentPayload{ProjectID: projectID, Deployment: deployment, SHA: sha, App: app})
}

func (s *environmentService) UpdateDeployment(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*Job, error) {
	return s.enqueueDeployment(ctx, tasks.TypeDeploymentUpdate, tasks.DeploymentPayload{ProjectID: projectID, Deployment: deployment, SHA: sha, App: app})
}

func (s *environmentService) DestroyDeployment(ctx context.Context, projectID, deployment string) (*Job, error) {
	return s.enqueueDeployment(ctx, tasks.TypeDeploymentDestroy, tasks.DeploymentPayload{ProjectID: projectID, Deployment: deployment})
}

func (s *environmentService) enqueuePR(ctx context.Context, typ string, p tasks.PRPayload) (*Job, error) {
	if p.PR == "" {
		return nil, appErr.New(appErr.CodeInvalid, "pull request number is required")
	}
	if err := tagging.PROwner(p.ProjectID, p.PR).Validate(); err != nil {
		return nil, err
	}
	if typ == tasks.TypePRCreate {
		if err := p.App.Validate(); err != nil {
			return nil, err
		}
	}
	task, err := tasks.NewPRTask(typ, p)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "build task failed")
	}
	return s.enqueue(ctx, task, zap.String("project_id", p.ProjectID), zap.String("pr", p.PR))
}

func (s *environmentService) enqueueDeployment(ctx context.Context, typ string, p tasks.DeploymentPayload) (*Job, error) {
	if p.Deployment == "" {
		return nil, appErr.New(appErr.CodeInvalid, "deployment name is required")
	}
	if err := tagging.DeploymentOwner(p.ProjectID, p.Deployment).Validate(); err != nil {
		return nil, err
	}
	if typ != tasks.TypeDeploymentDestroy {
		if p.SHA == "" {
			return nil, appErr.New(appErr.CodeInvalid, "commit sha is required")
		}
		if err := p.App.Validate(); err != nil {
			return nil, err
		}
	}
	task, err := tasks.NewDeploymentTask(typ, p)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "build task failed")
	}
	return s.enqueue(ctx, task, zap.String("project_id", p.ProjectID), zap.String("deployment", p.Deployment))
}

func (s *environmentService) enqueue(ctx context.Context, task *asynq.Task, fields ...zap.Field) (*Job, error) {
	log := logger.L().With(fields...).With(zap.String("task", task.Type()))
	job := &Job{Type: task.Type()}
	if s.client == nil {
		log.Warn("asynq client not configured, skipping enqueue")
		return job, nil
	}
	info, err := s.client.EnqueueContext(ctx, task)
	if err != nil {
		log.Error("enqueue task failed", zap.Error(err))
		return nil, appErr.Wrap(err, appErr.CodeUnavailable, "enqueue task failed")
	}
	job.ID = info.ID
	job.Queue = info.Queue
	log.Info("task enqueued", zap.String("task_id", info.ID))
	return job, nil
}
