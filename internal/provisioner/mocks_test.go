package provisioner

import (
	"context"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/mock"

	"github.com/iac-studio/envforge/internal/environment"
	"github.com/iac-studio/envforge/internal/identity"
	"github.com/iac-studio/envforge/internal/registry"
)

type mockSubnets struct{ mock.Mock }

func (m *mockSubnets) Create(ctx context.Context, projectID, routeTableID, aclID string) (*ec2types.Subnet, error) {
	args := m.Called(ctx, projectID, routeTableID, aclID)
	if v := args.Get(0); v != nil {
		return v.(*ec2types.Subnet), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubnets) Destroy(ctx context.Context, projectID string) error {
	return m.Called(ctx, projectID).Error(0)
}

func (m *mockSubnets) Describe(ctx context.Context) ([]ec2types.Subnet, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]ec2types.Subnet), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSubnets) FindProject(ctx context.Context, projectID string) (*ec2types.Subnet, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.(*ec2types.Subnet), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockACLs struct{ mock.Mock }

func (m *mockACLs) Create(ctx context.Context, projectID string) (string, error) {
	args := m.Called(ctx, projectID)
	return args.String(0), args.Error(1)
}

func (m *mockACLs) Destroy(ctx context.Context, projectID string) error {
	return m.Called(ctx, projectID).Error(0)
}

type mockRoutes struct{ mock.Mock }

func (m *mockRoutes) FindDefault(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type mockRegistry struct{ mock.Mock }

func (m *mockRegistry) Create(ctx context.Context, projectID string) (*registry.Repository, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.(*registry.Repository), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockIdentity struct{ mock.Mock }

func (m *mockIdentity) CreateProjectUser(ctx context.Context, projectID, repositoryARN string) (*identity.Credentials, error) {
	args := m.Called(ctx, projectID, repositoryARN)
	if v := args.Get(0); v != nil {
		return v.(*identity.Credentials), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockInstances struct{ mock.Mock }

func (m *mockInstances) DescribeProject(ctx context.Context, projectID string) ([]ec2types.Instance, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.([]ec2types.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockInstances) DescribeDeployments(ctx context.Context, projectID string) ([]ec2types.Instance, error) {
	args := m.Called(ctx, projectID)
	if v := args.Get(0); v != nil {
		return v.([]ec2types.Instance), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPRs struct{ mock.Mock }

func (m *mockPRs) Create(ctx context.Context, projectID, pr string, app environment.AppDefinition, ssh environment.SSHData) (*environment.Environment, error) {
	args := m.Called(ctx, projectID, pr, app, ssh)
	if v := args.Get(0); v != nil {
		return v.(*environment.Environment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPRs) Destroy(ctx context.Context, projectID, pr string) error {
	return m.Called(ctx, projectID, pr).Error(0)
}

type mockDeployments struct{ mock.Mock }

func (m *mockDeployments) Create(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error) {
	args := m.Called(ctx, projectID, deployment, sha, app)
	if v := args.Get(0); v != nil {
		return v.(*environment.Environment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeployments) Update(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error) {
	args := m.Called(ctx, projectID, deployment, sha, app)
	if v := args.Get(0); v != nil {
		return v.(*environment.Environment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDeployments) Destroy(ctx context.Context, projectID, deployment string) error {
	return m.Called(ctx, projectID, deployment).Error(0)
}

type mockGenerator struct{ mock.Mock }

func (m *mockGenerator) Generate() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

type mockSecrets struct{ mock.Mock }

func (m *mockSecrets) Put(ctx context.Context, projectID, secret string) error {
	return m.Called(ctx, projectID, secret).Error(0)
}

type mockVPCs struct{ mock.Mock }

func (m *mockVPCs) FindManaged(ctx context.Context) (*ec2types.Vpc, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*ec2types.Vpc), args.Error(1)
	}
	return nil, args.Error(1)
}
