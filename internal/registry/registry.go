// Package registry provisions the ECR repository each project pushes its
// application images to.
package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/pkg/logger"
)

const repositoryLabel = "repository"

// ECRAPI is the subset of the ECR client used by Manager.
type ECRAPI interface {
	CreateRepository(context.Context, *ecr.CreateRepositoryInput, ...func(*ecr.Options)) (*ecr.CreateRepositoryOutput, error)
	DescribeRepositories(context.Context, *ecr.DescribeRepositoriesInput, ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	ListTagsForResource(context.Context, *ecr.ListTagsForResourceInput, ...func(*ecr.Options)) (*ecr.ListTagsForResourceOutput, error)
	DeleteRepository(context.Context, *ecr.DeleteRepositoryInput, ...func(*ecr.Options)) (*ecr.DeleteRepositoryOutput, error)
}

var _ ECRAPI = (*ecr.Client)(nil)

// Repository is the part of an ECR repository callers need.
type Repository struct {
	ARN  string
	Name string
	URI  string
}

// Manager creates and destroys project repositories.
type Manager struct {
	client ECRAPI
}

func NewManager(client ECRAPI) *Manager {
	return &Manager{client: client}
}

// RepositoryName maps a project to a valid ECR repository name. ECR does
// not allow consecutive separators, so the identifier's "--" becomes a
// namespace slash.
func RepositoryName(projectID string) (string, error) {
	rid, err := tagging.ResourceID(tagging.ProjectOwner(projectID))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.ReplaceAll(rid, "--", "/")), nil
}

// Create makes the tagged repository of projectID.
func (m *Manager) Create(ctx context.Context, projectID string) (*Repository, error) {
	name, err := RepositoryName(projectID)
	if err != nil {
		return nil, err
	}
	out, err := m.client.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName:             aws.String(name),
		ImageTagMutability:         types.ImageTagMutabilityMutable,
		ImageScanningConfiguration: &types.ImageScanningConfiguration{ScanOnPush: true},
		Tags:                       ecrTags(tagging.ProjectOwner(projectID).Tags()),
	})
	if err != nil {
		return nil, err
	}
	repo := toRepository(out.Repository)
	logger.L().Info("repository created", zap.String("project_id", projectID), zap.String("arn", repo.ARN))
	return repo, nil
}

// Destroy deletes the repository of projectID, images included, once its
// tags prove ownership.
func (m *Manager) Destroy(ctx context.Context, projectID string) error {
	owner := tagging.ProjectOwner(projectID)
	name, err := RepositoryName(projectID)
	if err != nil {
		return err
	}
	out, err := m.client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{RepositoryNames: []string{name}})
	if err != nil {
		var nf *types.RepositoryNotFoundException
		if errors.As(err, &nf) {
			return tagging.NewOwnershipError(owner, repositoryLabel, name)
		}
		return err
	}
	if len(out.Repositories) == 0 {
		return tagging.NewOwnershipError(owner, repositoryLabel, name)
	}
	repo := toRepository(&out.Repositories[0])

	tags, err := m.client.ListTagsForResource(ctx, &ecr.ListTagsForResourceInput{ResourceArn: aws.String(repo.ARN)})
	if err != nil {
		return err
	}
	if err := tagging.AssertOwned(fromECRTags(tags.Tags), owner, repositoryLabel, repo.ARN); err != nil {
		return err
	}
	if _, err := m.client.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: aws.String(name),
		Force:          true,
	}); err != nil {
		return err
	}
	logger.L().Info("repository deleted", zap.String("project_id", projectID), zap.String("arn", repo.ARN))
	return nil
}

func toRepository(r *types.Repository) *Repository {
	if r == nil {
		return &Repository{}
	}
	return &Repository{
		ARN:  aws.ToString(r.RepositoryArn),
		Name: aws.ToString(r.RepositoryName),
		URI:  aws.ToString(r.RepositoryUri),
	}
}

func ecrTags(tags tagging.Tags) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return out
}

func fromECRTags(tags []types.Tag) tagging.Tags {
	out := make(tagging.Tags, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagging.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return out
}
