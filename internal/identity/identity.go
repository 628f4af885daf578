// Package identity provisions the IAM user and access key a project's CI
// uses to push images to its repository.
package identity

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/pkg/logger"
)

const (
	userPath   = "/envforge/"
	policyName = "envforge-registry-access"
	userLabel  = "iam user"
)

// IAMAPI is the subset of the IAM client used by Manager.
type IAMAPI interface {
	CreateUser(context.Context, *iam.CreateUserInput, ...func(*iam.Options)) (*iam.CreateUserOutput, error)
	GetUser(context.Context, *iam.GetUserInput, ...func(*iam.Options)) (*iam.GetUserOutput, error)
	DeleteUser(context.Context, *iam.DeleteUserInput, ...func(*iam.Options)) (*iam.DeleteUserOutput, error)
	PutUserPolicy(context.Context, *iam.PutUserPolicyInput, ...func(*iam.Options)) (*iam.PutUserPolicyOutput, error)
	ListUserPolicies(context.Context, *iam.ListUserPoliciesInput, ...func(*iam.Options)) (*iam.ListUserPoliciesOutput, error)
	DeleteUserPolicy(context.Context, *iam.DeleteUserPolicyInput, ...func(*iam.Options)) (*iam.DeleteUserPolicyOutput, error)
	CreateAccessKey(context.Context, *iam.CreateAccessKeyInput, ...func(*iam.Options)) (*iam.CreateAccessKeyOutput, error)
	ListAccessKeys(context.Context, *iam.ListAccessKeysInput, ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
	DeleteAccessKey(context.Context, *iam.DeleteAccessKeyInput, ...func(*iam.Options)) (*iam.DeleteAccessKeyOutput, error)
}

var _ IAMAPI = (*iam.Client)(nil)

// Credentials are the long-lived keys handed to a project's pipeline.
type Credentials struct {
	UserName        string `json:"userName"`
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
}

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

// registryPolicy grants push and pull on one repository.
func registryPolicy(repositoryARN string) (string, error) {
	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{
			{
				Effect:   "Allow",
				Action:   []string{"ecr:GetAuthorizationToken"},
				Resource: []string{"*"},
			},
			{
				Effect: "Allow",
				Action: []string{
					"ecr:BatchCheckLayerAvailability",
					"ecr:BatchGetImage",
					"ecr:CompleteLayerUpload",
					"ecr:GetDownloadUrlForLayer",
					"ecr:InitiateLayerUpload",
					"ecr:PutImage",
					"ecr:UploadLayerPart",
				},
				Resource: []string{repositoryARN},
			},
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Manager creates and destroys project users.
type Manager struct {
	client IAMAPI
}

func NewManager(client IAMAPI) *Manager {
	return &Manager{client: client}
}

// UserName is the IAM user name of projectID.
func UserName(projectID string) (string, error) {
	return tagging.ResourceID(tagging.ProjectOwner(projectID))
}

// CreateProjectUser creates the tagged user of projectID, scopes it to
// repositoryARN and returns a fresh access key.
func (m *Manager) CreateProjectUser(ctx context.Context, projectID, repositoryARN string) (*Credentials, error) {
	name, err := UserName(projectID)
	if err != nil {
		return nil, err
	}
	policy, err := registryPolicy(repositoryARN)
	if err != nil {
		return nil, err
	}

	if _, err := m.client.CreateUser(ctx, &iam.CreateUserInput{
		UserName: aws.String(name),
		Path:     aws.String(userPath),
		Tags:     iamTags(tagging.ProjectOwner(projectID).Tags()),
	}); err != nil {
		return nil, err
	}
	if _, err := m.client.PutUserPolicy(ctx, &iam.PutUserPolicyInput{
		UserName:       aws.String(name),
		PolicyName:     aws.String(policyName),
		PolicyDocument: aws.String(policy),
	}); err != nil {
		return nil, err
	}
	key, err := m.client.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{UserName: aws.String(name)})
	if err != nil {
		return nil, err
	}

	logger.L().Info("project user created", zap.String("project_id", projectID), zap.String("user", name))
	return &Credentials{
		UserName:        name,
		AccessKeyID:     aws.ToString(key.AccessKey.AccessKeyId),
		SecretAccessKey: aws.ToString(key.AccessKey.SecretAccessKey),
	}, nil
}

// DestroyProjectUser removes the keys, inline policies and user of
// projectID once the user's tags prove ownership.
func (m *Manager) DestroyProjectUser(ctx context.Context, projectID string) error {
	owner := tagging.ProjectOwner(projectID)
	name, err := UserName(projectID)
	if err != nil {
		return err
	}

	out, err := m.client.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(name)})
	if err != nil {
		var nse *types.NoSuchEntityException
		if errors.As(err, &nse) {
			return tagging.NewOwnershipError(owner, userLabel, name)
		}
		return err
	}
	if err := tagging.AssertOwned(fromIAMTags(out.User.Tags), owner, userLabel, name); err != nil {
		return err
	}

	keys := iam.NewListAccessKeysPaginator(m.client, &iam.ListAccessKeysInput{UserName: aws.String(name)})
	for keys.HasMorePages() {
		page, err := keys.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, k := range page.AccessKeyMetadata {
			if _, err := m.client.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
				UserName:    aws.String(name),
				AccessKeyId: k.AccessKeyId,
			}); err != nil {
				return err
			}
		}
	}

	policies := iam.NewListUserPoliciesPaginator(m.client, &iam.ListUserPoliciesInput{UserName: aws.String(name)})
	for policies.HasMorePages() {
		page, err := policies.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, p := range page.PolicyNames {
			if _, err := m.client.DeleteUserPolicy(ctx, &iam.DeleteUserPolicyInput{
				UserName:   aws.String(name),
				PolicyName: aws.String(p),
			}); err != nil {
				return err
			}
		}
	}

	if _, err := m.client.DeleteUser(ctx, &iam.DeleteUserInput{UserName: aws.String(name)}); err != nil {
		return err
	}
	logger.L().Info("project user deleted", zap.String("project_id", projectID), zap.String("user", name))
	return nil
}

func iamTags(tags tagging.Tags) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return out
}

func fromIAMTags(tags []types.Tag) tagging.Tags {
	out := make(tagging.Tags, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagging.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return out
}
