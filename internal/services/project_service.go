package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/provisioner"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

// Projects is the project side of the lifecycle orchestrator.
type Projects interface {
	FindOrCreateProject(ctx context.Context, projectID string) (*provisioner.Project, error)
	Destroy(ctx context.Context, projectID string) error
	DescribeProject(ctx context.Context, projectID string) (*provisioner.Description, error)
	ListProjects(ctx context.Context) ([]string, error)
	InitializeWebhookSecret(ctx context.Context, projectID string) (string, error)
}

// SecretRemover drops a project's stored webhook secret.
type SecretRemover interface {
	Delete(ctx context.Context, projectID string) error
}

type ProjectService interface {
	CreateProject(ctx context.Context, projectID string) (*provisioner.Project, error)
	GetProject(ctx context.Context, projectID string) (*provisioner.Description, error)
	ListProjects(ctx context.Context) ([]string, error)
	DestroyProject(ctx context.Context, projectID string) error
	InitWebhookSecret(ctx context.Context, projectID string) (string, error)
}

type projectService struct {
	projects Projects
	secrets  SecretRemover
}

// NewProjectService builds the service. secrets may be nil, in which case
// stored webhook secrets outlive destroyed projects.
func NewProjectService(projects Projects, secrets SecretRemover) ProjectService {
	return &projectService{projects: projects, secrets: secrets}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) CreateProject(ctx context.Context, projectID string) (*provisioner.Project, error) {
	logger.L().Info("create project", zap.String("project_id", projectID))
	return s.projects.FindOrCreateProject(ctx, projectID)
}

func (s *projectService) GetProject(ctx context.Context, projectID string) (*provisioner.Description, error) {
	return s.projects.DescribeProject(ctx, projectID)
}

func (s *projectService) ListProjects(ctx context.Context) ([]string, error) {
	return s.projects.ListProjects(ctx)
}

func (s *projectService) DestroyProject(ctx context.Context, projectID string) error {
	logger.L().Info("destroy project requested", zap.String("project_id", projectID))
	if err := s.projects.Destroy(ctx, projectID); err != nil {
		return err
	}
	if s.secrets == nil {
		return nil
	}
	if err := s.secrets.Delete(ctx, projectID); err != nil && !appErr.IsCode(err, appErr.CodeNotFound) {
		// the cloud resources are already gone
		logger.L().Warn("delete webhook secret failed", zap.String("project_id", projectID), zap.Error(err))
	}
	return nil
}

func (s *projectService) InitWebhookSecret(ctx context.Context, projectID string) (string, error) {
	logger.L().Info("init webhook secret", zap.String("project_id", projectID))
	return s.projects.InitializeWebhookSecret(ctx, projectID)
}
