package network

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

// SubnetManager owns the one subnet each project gets inside the VPC.
type SubnetManager struct {
	client SubnetAPI
	vpcID  string
}

func NewSubnetManager(client SubnetAPI, vpcID string) *SubnetManager {
	return &SubnetManager{client: client, vpcID: vpcID}
}

// Describe lists every managed subnet in the VPC.
func (m *SubnetManager) Describe(ctx context.Context) ([]types.Subnet, error) {
	return m.describe(ctx, markerFilter())
}

// DescribeProject lists the managed subnets tagged for projectID.
func (m *SubnetManager) DescribeProject(ctx context.Context, projectID string) ([]types.Subnet, error) {
	return m.describe(ctx, ownerFilters(tagging.ProjectOwner(projectID))...)
}

// FindProject returns the subnet of an already provisioned project.
func (m *SubnetManager) FindProject(ctx context.Context, projectID string) (*types.Subnet, error) {
	subnets, err := m.DescribeProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(subnets) == 0 {
		return nil, appErr.Newf(appErr.CodeNotFound, "no subnet found for project %s", projectID)
	}
	sn := subnets[0]
	return &sn, nil
}

// Create allocates the next free block of the VPC to projectID, tags it,
// attaches it to routeTableID and moves it onto aclID.
func (m *SubnetManager) Create(ctx context.Context, projectID, routeTableID, aclID string) (*types.Subnet, error) {
	owner := tagging.ProjectOwner(projectID)
	rid, err := tagging.ResourceID(owner)
	if err != nil {
		return nil, err
	}

	vpcs, err := m.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{Filters: []types.Filter{vpcFilter(m.vpcID)}})
	if err != nil {
		return nil, err
	}
	if len(vpcs.Vpcs) == 0 {
		return nil, appErr.Newf(appErr.CodeNotFound, "vpc %s not found", m.vpcID)
	}
	existing, err := m.describe(ctx)
	if err != nil {
		return nil, err
	}
	used := make([]string, 0, len(existing))
	for _, sn := range existing {
		used = append(used, aws.ToString(sn.CidrBlock))
	}
	cidr, err := nextFreePrefix(aws.ToString(vpcs.Vpcs[0].CidrBlock), used)
	if err != nil {
		return nil, err
	}

	out, err := m.client.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:             aws.String(m.vpcID),
		CidrBlock:         aws.String(cidr.String()),
		TagSpecifications: tagSpec(types.ResourceTypeSubnet, append(owner.Tags(), nameTag(rid))),
	})
	if err != nil {
		return nil, err
	}
	subnetID := aws.ToString(out.Subnet.SubnetId)

	if _, err := m.client.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: aws.String(routeTableID),
		SubnetId:     aws.String(subnetID),
	}); err != nil {
		return nil, err
	}
	if err := m.associateACL(ctx, subnetID, aclID); err != nil {
		return nil, err
	}

	logger.L().Info("subnet created",
		zap.String("project_id", projectID),
		zap.String("subnet_id", subnetID),
		zap.String("cidr", cidr.String()))
	return out.Subnet, nil
}

// Destroy deletes every subnet tagged for projectID after checking its
// ownership tags.
func (m *SubnetManager) Destroy(ctx context.Context, projectID string) error {
	owner := tagging.ProjectOwner(projectID)
	subnets, err := m.DescribeProject(ctx, projectID)
	if err != nil {
		return err
	}
	if len(subnets) == 0 {
		return tagging.NewOwnershipError(owner, "subnet", "")
	}
	for _, sn := range subnets {
		id := aws.ToString(sn.SubnetId)
		if err := tagging.AssertOwned(FromEC2Tags(sn.Tags), owner, "subnet", id); err != nil {
			return err
		}
		if _, err := m.client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)}); err != nil {
			return err
		}
		logger.L().Info("subnet deleted", zap.String("project_id", projectID), zap.String("subnet_id", id))
	}
	return nil
}

// associateACL replaces the subnet's current ACL association, which on a
// fresh subnet points at the VPC default ACL.
func (m *SubnetManager) associateACL(ctx context.Context, subnetID, aclID string) error {
	out, err := m.client.DescribeNetworkAcls(ctx, &ec2.DescribeNetworkAclsInput{
		Filters: []types.Filter{vpcFilter(m.vpcID), filter("association.subnet-id", subnetID)},
	})
	if err != nil {
		return err
	}
	for _, acl := range out.NetworkAcls {
		for _, a := range acl.Associations {
			if aws.ToString(a.SubnetId) != subnetID {
				continue
			}
			_, err := m.client.ReplaceNetworkAclAssociation(ctx, &ec2.ReplaceNetworkAclAssociationInput{
				AssociationId: a.NetworkAclAssociationId,
				NetworkAclId:  aws.String(aclID),
			})
			return err
		}
	}
	return appErr.Newf(appErr.CodeNotFound, "no acl association found for subnet %s", subnetID)
}

func (m *SubnetManager) describe(ctx context.Context, filters ...types.Filter) ([]types.Subnet, error) {
	out, err := m.client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: append([]types.Filter{vpcFilter(m.vpcID)}, filters...),
	})
	if err != nil {
		return nil, err
	}
	return out.Subnets, nil
}
