package network

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/pkg/logger"
)

const securityGroupLabel = "security group"

// SecurityGroupManager creates and destroys the security group of each
// pull request or deployment. Destroy only proceeds once the group's tags
// prove the caller's identity.
type SecurityGroupManager struct {
	client SecurityGroupAPI
	vpcID  string
}

func NewSecurityGroupManager(client SecurityGroupAPI, vpcID string) *SecurityGroupManager {
	return &SecurityGroupManager{client: client, vpcID: vpcID}
}

// Describe lists the managed security groups of the VPC.
func (m *SecurityGroupManager) Describe(ctx context.Context) ([]types.SecurityGroup, error) {
	out, err := m.client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		DryRun:  aws.Bool(false),
		Filters: []types.Filter{markerFilter(), vpcFilter(m.vpcID)},
	})
	if err != nil {
		return nil, err
	}
	return out.SecurityGroups, nil
}

// DescribeOwned lists the managed groups whose tags match o.
func (m *SecurityGroupManager) DescribeOwned(ctx context.Context, o tagging.Owner) ([]types.SecurityGroup, error) {
	groups, err := m.Describe(ctx)
	if err != nil {
		return nil, err
	}
	var owned []types.SecurityGroup
	for _, g := range groups {
		if tagging.IsOwnedBy(FromEC2Tags(g.Tags), o) {
			owned = append(owned, g)
		}
	}
	return owned, nil
}

// Create makes the security group of a pull request.
func (m *SecurityGroupManager) Create(ctx context.Context, projectID, pr string) (*ec2.CreateSecurityGroupOutput, error) {
	return m.create(ctx, tagging.PROwner(projectID, pr),
		fmt.Sprintf("Created by envforge for %s, PR: %s", projectID, pr))
}

// CreateForDeployment makes the security group of a deployment.
func (m *SecurityGroupManager) CreateForDeployment(ctx context.Context, projectID, deployment string) (*ec2.CreateSecurityGroupOutput, error) {
	return m.create(ctx, tagging.DeploymentOwner(projectID, deployment),
		fmt.Sprintf("Created by envforge for %s, deployment: %s", projectID, deployment))
}

func (m *SecurityGroupManager) create(ctx context.Context, o tagging.Owner, description string) (*ec2.CreateSecurityGroupOutput, error) {
	rid, err := tagging.ResourceID(o)
	if err != nil {
		return nil, err
	}
	out, err := m.client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(rid),
		Description: aws.String(description),
		VpcId:       aws.String(m.vpcID),
	})
	if err != nil {
		return nil, err
	}
	if _, err := m.client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{aws.ToString(out.GroupId)},
		Tags:      ToEC2Tags(o.Tags()),
	}); err != nil {
		return nil, err
	}
	logger.L().Info("security group created",
		zap.String("owner", o.String()),
		zap.String("group_id", aws.ToString(out.GroupId)))
	return out, nil
}

// AuthorizeIngress opens the given tcp ports to the world.
func (m *SecurityGroupManager) AuthorizeIngress(ctx context.Context, groupID string, ports []int32) error {
	if len(ports) == 0 {
		return nil
	}
	perms := make([]types.IpPermission, 0, len(ports))
	for _, p := range ports {
		perms = append(perms, types.IpPermission{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(p),
			ToPort:     aws.Int32(p),
			IpRanges:   []types.IpRange{{CidrIp: aws.String("0.0.0.0/0")}},
		})
	}
	_, err := m.client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       aws.String(groupID),
		IpPermissions: perms,
	})
	return err
}

// Destroy deletes the group of a pull request. A missing group and a
// group tagged for anybody else fail with the same ownership error.
func (m *SecurityGroupManager) Destroy(ctx context.Context, groupID, projectID, pr string) error {
	return m.destroy(ctx, groupID, tagging.PROwner(projectID, pr))
}

// DestroyForDeployment is Destroy for a deployment's group.
func (m *SecurityGroupManager) DestroyForDeployment(ctx context.Context, groupID, projectID, deployment string) error {
	return m.destroy(ctx, groupID, tagging.DeploymentOwner(projectID, deployment))
}

func (m *SecurityGroupManager) destroy(ctx context.Context, groupID string, o tagging.Owner) error {
	groups, err := m.Describe(ctx)
	if err != nil {
		return err
	}
	var found *types.SecurityGroup
	for i := range groups {
		if aws.ToString(groups[i].GroupId) == groupID {
			found = &groups[i]
			break
		}
	}
	if found == nil {
		return tagging.NewOwnershipError(o, securityGroupLabel, groupID)
	}
	if err := tagging.AssertOwned(FromEC2Tags(found.Tags), o, securityGroupLabel, groupID); err != nil {
		return err
	}
	if _, err := m.client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(groupID),
	}); err != nil {
		return err
	}
	logger.L().Info("security group deleted", zap.String("owner", o.String()), zap.String("group_id", groupID))
	return nil
}
