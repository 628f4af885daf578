package network

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

const instanceLabel = "instance"

var liveStates = []string{
	string(types.InstanceStateNamePending),
	string(types.InstanceStateNameRunning),
	string(types.InstanceStateNameStopping),
	string(types.InstanceStateNameStopped),
}

// RunSpec describes one environment instance.
type RunSpec struct {
	Owner            tagging.Owner
	SHA              string
	SubnetID         string
	SecurityGroupIDs []string
	UserData         string
}

// InstanceManager runs and terminates the instances serving pull requests
// and deployments.
type InstanceManager struct {
	client       InstanceAPI
	vpcID        string
	imageID      string
	instanceType types.InstanceType
	waitTimeout  time.Duration
}

type InstanceOption func(*InstanceManager)

func WithImage(id string) InstanceOption {
	return func(m *InstanceManager) { m.imageID = id }
}

func WithInstanceType(t string) InstanceOption {
	return func(m *InstanceManager) { m.instanceType = types.InstanceType(t) }
}

func WithWaitTimeout(d time.Duration) InstanceOption {
	return func(m *InstanceManager) { m.waitTimeout = d }
}

func NewInstanceManager(client InstanceAPI, vpcID string, opts ...InstanceOption) *InstanceManager {
	m := &InstanceManager{
		client:       client,
		vpcID:        vpcID,
		instanceType: types.InstanceTypeT3Micro,
		waitTimeout:  5 * time.Minute,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// DescribeProject lists the live pull request instances of projectID.
// A non-empty result means the project still has open pull requests.
func (m *InstanceManager) DescribeProject(ctx context.Context, projectID string) ([]types.Instance, error) {
	return m.describe(ctx,
		markerFilter(),
		tagFilter(tagging.ProjectTag, projectID),
		filter("tag-key", tagging.PRTag))
}

// DescribeDeployments lists the live deployment instances of projectID.
func (m *InstanceManager) DescribeDeployments(ctx context.Context, projectID string) ([]types.Instance, error) {
	return m.describe(ctx,
		markerFilter(),
		tagFilter(tagging.ProjectTag, projectID),
		filter("tag-key", tagging.DeploymentTag))
}

// DescribePR lists the live instances of one pull request.
func (m *InstanceManager) DescribePR(ctx context.Context, projectID, pr string) ([]types.Instance, error) {
	return m.describe(ctx, ownerFilters(tagging.PROwner(projectID, pr))...)
}

// DescribeDeployment lists the live instances of one deployment.
func (m *InstanceManager) DescribeDeployment(ctx context.Context, projectID, deployment string) ([]types.Instance, error) {
	return m.describe(ctx, ownerFilters(tagging.DeploymentOwner(projectID, deployment))...)
}

// Run starts one tagged instance described by spec.
func (m *InstanceManager) Run(ctx context.Context, spec RunSpec) (*types.Instance, error) {
	rid, err := tagging.ResourceID(spec.Owner)
	if err != nil {
		return nil, err
	}
	if m.imageID == "" {
		return nil, appErr.New(appErr.CodeFailedPrecondition, "no instance image configured")
	}
	tags := append(spec.Owner.Tags(), nameTag(rid))
	if spec.SHA != "" {
		tags = append(tags, tagging.Tag{Key: tagging.SHATag, Value: spec.SHA})
	}

	out, err := m.client.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String(m.imageID),
		InstanceType: m.instanceType,
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
		UserData:     aws.String(base64.StdEncoding.EncodeToString([]byte(spec.UserData))),
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              aws.Int32(0),
			SubnetId:                 aws.String(spec.SubnetID),
			Groups:                   spec.SecurityGroupIDs,
			AssociatePublicIpAddress: aws.Bool(true),
		}},
		TagSpecifications: tagSpec(types.ResourceTypeInstance, tags),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Instances) == 0 {
		return nil, appErr.New(appErr.CodeInternal, "run instances returned no instance")
	}
	in := out.Instances[0]
	logger.L().Info("instance started",
		zap.String("owner", spec.Owner.String()),
		zap.String("instance_id", aws.ToString(in.InstanceId)))
	return &in, nil
}

// WaitForPublicIP blocks until the instance is running and returns its
// public address.
func (m *InstanceManager) WaitForPublicIP(ctx context.Context, instanceID string) (string, error) {
	in := &ec2.DescribeInstancesInput{InstanceIds: []string{instanceID}}
	if err := ec2.NewInstanceRunningWaiter(m.client).Wait(ctx, in, m.waitTimeout); err != nil {
		return "", err
	}
	out, err := m.client.DescribeInstances(ctx, in)
	if err != nil {
		return "", err
	}
	for _, r := range out.Reservations {
		for _, i := range r.Instances {
			if ip := aws.ToString(i.PublicIpAddress); ip != "" {
				return ip, nil
			}
		}
	}
	return "", appErr.Newf(appErr.CodeNotFound, "instance %s has no public ip", instanceID)
}

// Terminate stops every live instance tagged for o and returns their ids.
// Each instance's tags are checked before it is terminated.
func (m *InstanceManager) Terminate(ctx context.Context, o tagging.Owner) ([]string, error) {
	return m.terminate(ctx, o, "")
}

// TerminateOthers is Terminate sparing the instance keepID.
func (m *InstanceManager) TerminateOthers(ctx context.Context, o tagging.Owner, keepID string) ([]string, error) {
	return m.terminate(ctx, o, keepID)
}

// WaitTerminated blocks until every instance in ids reached the terminated
// state.
func (m *InstanceManager) WaitTerminated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	in := &ec2.DescribeInstancesInput{InstanceIds: ids}
	return ec2.NewInstanceTerminatedWaiter(m.client).Wait(ctx, in, m.waitTimeout)
}

func (m *InstanceManager) terminate(ctx context.Context, o tagging.Owner, keepID string) ([]string, error) {
	instances, err := m.describe(ctx, ownerFilters(o)...)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(instances))
	for _, in := range instances {
		id := aws.ToString(in.InstanceId)
		if id == keepID {
			continue
		}
		if err := tagging.AssertOwned(FromEC2Tags(in.Tags), o, instanceLabel, id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := m.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
		return nil, err
	}
	logger.L().Info("instances terminated", zap.String("owner", o.String()), zap.Strings("instance_ids", ids))
	return ids, nil
}

func (m *InstanceManager) describe(ctx context.Context, filters ...types.Filter) ([]types.Instance, error) {
	filters = append(filters, vpcFilter(m.vpcID), filter("instance-state-name", liveStates...))
	var out []types.Instance
	p := ec2.NewDescribeInstancesPaginator(m.client, &ec2.DescribeInstancesInput{Filters: filters})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Reservations {
			out = append(out, r.Instances...)
		}
	}
	return out, nil
}
