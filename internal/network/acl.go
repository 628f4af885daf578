package network

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/pkg/logger"
)

type aclRule struct {
	number int32
	egress bool
	from   int32
	to     int32
	proto  string
}

// Project ACLs admit ssh, http(s) and return traffic, and let everything out.
var defaultACLRules = []aclRule{
	{number: 100, proto: "6", from: 22, to: 22},
	{number: 110, proto: "6", from: 80, to: 80},
	{number: 120, proto: "6", from: 443, to: 443},
	{number: 130, proto: "6", from: 1024, to: 65535},
	{number: 100, egress: true, proto: "-1"},
}

// ACLManager owns the network ACL guarding each project subnet.
type ACLManager struct {
	client ACLAPI
	vpcID  string
}

func NewACLManager(client ACLAPI, vpcID string) *ACLManager {
	return &ACLManager{client: client, vpcID: vpcID}
}

// Create makes a tagged ACL for projectID with the default rule set and
// returns its id. An ACL already tagged for the project is returned as is.
func (m *ACLManager) Create(ctx context.Context, projectID string) (string, error) {
	owner := tagging.ProjectOwner(projectID)
	rid, err := tagging.ResourceID(owner)
	if err != nil {
		return "", err
	}

	existing, err := m.describe(ctx, ownerFilters(owner)...)
	if err != nil {
		return "", err
	}
	for _, acl := range existing {
		id := aws.ToString(acl.NetworkAclId)
		if tagging.AssertOwned(FromEC2Tags(acl.Tags), owner, "network acl", id) == nil {
			logger.L().Debug("network acl exists", zap.String("project_id", projectID), zap.String("acl_id", id))
			return id, nil
		}
	}

	out, err := m.client.CreateNetworkAcl(ctx, &ec2.CreateNetworkAclInput{
		VpcId:             aws.String(m.vpcID),
		TagSpecifications: tagSpec(types.ResourceTypeNetworkAcl, append(owner.Tags(), nameTag(rid))),
	})
	if err != nil {
		return "", err
	}
	aclID := aws.ToString(out.NetworkAcl.NetworkAclId)

	for _, r := range defaultACLRules {
		in := &ec2.CreateNetworkAclEntryInput{
			NetworkAclId: aws.String(aclID),
			RuleNumber:   aws.Int32(r.number),
			Egress:       aws.Bool(r.egress),
			Protocol:     aws.String(r.proto),
			RuleAction:   types.RuleActionAllow,
			CidrBlock:    aws.String("0.0.0.0/0"),
		}
		if r.proto != "-1" {
			in.PortRange = &types.PortRange{From: aws.Int32(r.from), To: aws.Int32(r.to)}
		}
		if _, err := m.client.CreateNetworkAclEntry(ctx, in); err != nil {
			return "", err
		}
	}

	logger.L().Info("network acl created", zap.String("project_id", projectID), zap.String("acl_id", aclID))
	return aclID, nil
}

// Describe lists the managed ACLs in the VPC.
func (m *ACLManager) Describe(ctx context.Context) ([]types.NetworkAcl, error) {
	return m.describe(ctx, markerFilter())
}

// Destroy deletes the ACLs tagged for projectID after checking ownership.
func (m *ACLManager) Destroy(ctx context.Context, projectID string) error {
	owner := tagging.ProjectOwner(projectID)
	acls, err := m.describe(ctx, ownerFilters(owner)...)
	if err != nil {
		return err
	}
	if len(acls) == 0 {
		return tagging.NewOwnershipError(owner, "network acl", "")
	}
	for _, acl := range acls {
		id := aws.ToString(acl.NetworkAclId)
		if err := tagging.AssertOwned(FromEC2Tags(acl.Tags), owner, "network acl", id); err != nil {
			return err
		}
		if _, err := m.client.DeleteNetworkAcl(ctx, &ec2.DeleteNetworkAclInput{NetworkAclId: aws.String(id)}); err != nil {
			return err
		}
		logger.L().Info("network acl deleted", zap.String("project_id", projectID), zap.String("acl_id", id))
	}
	return nil
}

func (m *ACLManager) describe(ctx context.Context, filters ...types.Filter) ([]types.NetworkAcl, error) {
	out, err := m.client.DescribeNetworkAcls(ctx, &ec2.DescribeNetworkAclsInput{
		Filters: append([]types.Filter{vpcFilter(m.vpcID)}, filters...),
	})
	if err != nil {
		return nil, err
	}
	return out.NetworkAcls, nil
}
