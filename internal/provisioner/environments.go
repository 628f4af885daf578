package provisioner

import (
	"context"

	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/environment"
)

// CreatePR ensures the project exists, then creates the pull request
// environment.
func (o *Orchestrator) CreatePR(ctx context.Context, projectID, pr string, app environment.AppDefinition, ssh environment.SSHData) (*environment.Environment, error) {
	c, err := o.ensure(ctx, projectID)
	if err != nil {
		return nil, err
	}
	o.log.Info("creating pull request environment", zap.String("project_id", projectID), zap.String("pr", pr))
	return c.PRs.Create(ctx, projectID, pr, app, ssh)
}

// DestroyPR tears the pull request environment down. The project is not
// looked up first.
func (o *Orchestrator) DestroyPR(ctx context.Context, projectID, pr string) error {
	c, err := o.ready()
	if err != nil {
		return err
	}
	o.log.Info("destroying pull request environment", zap.String("project_id", projectID), zap.String("pr", pr))
	return c.PRs.Destroy(ctx, projectID, pr)
}

func (o *Orchestrator) CreateDeployment(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error) {
	c, err := o.ensure(ctx, projectID)
	if err != nil {
		return nil, err
	}
	o.log.Info("creating deployment", zap.String("project_id", projectID), zap.String("deployment", deployment), zap.String("sha", sha))
	return c.Deployments.Create(ctx, projectID, deployment, sha, app)
}

func (o *Orchestrator) UpdateDeployment(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error) {
	c, err := o.ensure(ctx, projectID)
	if err != nil {
		return nil, err
	}
	o.log.Info("updating deployment", zap.String("project_id", projectID), zap.String("deployment", deployment), zap.String("sha", sha))
	return c.Deployments.Update(ctx, projectID, deployment, sha, app)
}

func (o *Orchestrator) DestroyDeployment(ctx context.Context, projectID, deployment string) error {
	c, err := o.ensure(ctx, projectID)
	if err != nil {
		return err
	}
	o.log.Info("destroying deployment", zap.String("project_id", projectID), zap.String("deployment", deployment))
	return c.Deployments.Destroy(ctx, projectID, deployment)
}

func (o *Orchestrator) ensure(ctx context.Context, projectID string) (*Collaborators, error) {
	c, err := o.ready()
	if err != nil {
		return nil, err
	}
	if _, err := o.FindOrCreateProject(ctx, projectID); err != nil {
		return nil, err
	}
	return c, nil
}
