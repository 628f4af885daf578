package awsfake

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// EC2Server implements an EC2 simulator covering VPCs, subnets, network
// ACLs, route tables, security groups and instances.
type EC2Server struct {
	ops

	mu          sync.Mutex
	seq         idSeq
	vpcs        map[string]*types.Vpc
	subnets     map[string]*types.Subnet
	acls        map[string]*types.NetworkAcl
	routeTables map[string]*types.RouteTable
	groups      map[string]*types.SecurityGroup
	instances   map[string]*types.Instance
}

func NewEC2Server() *EC2Server {
	srv := &EC2Server{}
	srv.Reset()
	return srv
}

func (s *EC2Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetOps()
	s.seq = idSeq{}
	s.vpcs = make(map[string]*types.Vpc)
	s.subnets = make(map[string]*types.Subnet)
	s.acls = make(map[string]*types.NetworkAcl)
	s.routeTables = make(map[string]*types.RouteTable)
	s.groups = make(map[string]*types.SecurityGroup)
	s.instances = make(map[string]*types.Instance)
}

// AddVPC registers a VPC together with its main route table and default
// network ACL, and returns the VPC id.
func (s *EC2Server) AddVPC(cidr string, tags ...types.Tag) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.seq.next("vpc")
	s.vpcs[id] = &types.Vpc{VpcId: aws.String(id), CidrBlock: aws.String(cidr), Tags: tags}

	rt := s.seq.next("rtb")
	s.routeTables[rt] = &types.RouteTable{
		RouteTableId: aws.String(rt),
		VpcId:        aws.String(id),
		Associations: []types.RouteTableAssociation{{
			Main:                    aws.Bool(true),
			RouteTableId:            aws.String(rt),
			RouteTableAssociationId: aws.String(s.seq.next("rtbassoc")),
		}},
	}

	acl := s.seq.next("acl")
	s.acls[acl] = &types.NetworkAcl{NetworkAclId: aws.String(acl), VpcId: aws.String(id), IsDefault: aws.Bool(true)}
	return id
}

// AddRouteTable registers a non-main route table in vpcID.
func (s *EC2Server) AddRouteTable(vpcID string, tags ...types.Tag) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.seq.next("rtb")
	s.routeTables[id] = &types.RouteTable{RouteTableId: aws.String(id), VpcId: aws.String(vpcID), Tags: tags}
	return id
}

// AddSecurityGroup registers a group as is, assigning an id if missing.
func (s *EC2Server) AddSecurityGroup(g types.SecurityGroup) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.GroupId == nil {
		g.GroupId = aws.String(s.seq.next("sg"))
	}
	s.groups[*g.GroupId] = &g
	return *g.GroupId
}

// SecurityGroup returns a copy of the group with id.
func (s *EC2Server) SecurityGroup(id string) (types.SecurityGroup, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return types.SecurityGroup{}, false
	}
	return *g, true
}

// Subnet returns a copy of the subnet with id.
func (s *EC2Server) Subnet(id string) (types.Subnet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sn, ok := s.subnets[id]
	if !ok {
		return types.Subnet{}, false
	}
	return *sn, true
}

// NetworkACL returns a copy of the ACL with id.
func (s *EC2Server) NetworkACL(id string) (types.NetworkAcl, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.acls[id]
	if !ok {
		return types.NetworkAcl{}, false
	}
	return *a, true
}

// Instance returns a copy of the instance with id.
func (s *EC2Server) Instance(id string) (types.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.instances[id]
	if !ok {
		return types.Instance{}, false
	}
	return *in, true
}

func (s *EC2Server) DescribeVpcs(
	ctx context.Context,
	input *ec2.DescribeVpcsInput,
	opts ...func(*ec2.Options),
) (*ec2.DescribeVpcsOutput, error) {
	if err := s.enter("DescribeVpcs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ec2.DescribeVpcsOutput{}
	for _, id := range sortedKeys(s.vpcs) {
		v := s.vpcs[id]
		if matchFilters(input.Filters, v.Tags, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{*v.VpcId}
			case "cidr":
				return []string{aws.ToString(v.CidrBlock)}
			}
			return nil
		}) {
			out.Vpcs = append(out.Vpcs, *v)
		}
	}
	return out, nil
}

func (s *EC2Server) DescribeSubnets(
	ctx context.Context,
	input *ec2.DescribeSubnetsInput,
	opts ...func(*ec2.Options),
) (*ec2.DescribeSubnetsOutput, error) {
	if err := s.enter("DescribeSubnets"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ec2.DescribeSubnetsOutput{}
	for _, id := range sortedKeys(s.subnets) {
		sn := s.subnets[id]
		if len(input.SubnetIds) > 0 && !contains(input.SubnetIds, id) {
			continue
		}
		if matchFilters(input.Filters, sn.Tags, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(sn.VpcId)}
			case "subnet-id":
				return []string{id}
			}
			return nil
		}) {
			out.Subnets = append(out.Subnets, *sn)
		}
	}
	return out, nil
}

func (s *EC2Server) CreateSubnet(
	ctx context.Context,
	input *ec2.CreateSubnetInput,
	opts ...func(*ec2.Options),
) (*ec2.CreateSubnetOutput, error) {
	if err := s.enter("CreateSubnet"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	vpcID := aws.ToString(input.VpcId)
	vpc, ok := s.vpcs[vpcID]
	if !ok {
		return nil, APIError("InvalidVpcID.NotFound", "vpc %q does not exist", vpcID)
	}
	cidr, err := netip.ParsePrefix(aws.ToString(input.CidrBlock))
	if err != nil {
		return nil, APIError("InvalidParameterValue", "invalid cidr %q", aws.ToString(input.CidrBlock))
	}
	if parent := netip.MustParsePrefix(aws.ToString(vpc.CidrBlock)); !parent.Contains(cidr.Addr()) {
		return nil, APIError("InvalidSubnet.Range", "cidr %s is outside %s", cidr, parent)
	}
	for _, existing := range s.subnets {
		if aws.ToString(existing.VpcId) != vpcID {
			continue
		}
		if netip.MustParsePrefix(aws.ToString(existing.CidrBlock)).Overlaps(cidr) {
			return nil, APIError("InvalidSubnet.Conflict", "cidr %s conflicts with %s", cidr, aws.ToString(existing.SubnetId))
		}
	}

	id := s.seq.next("subnet")
	sn := &types.Subnet{
		SubnetId:  aws.String(id),
		VpcId:     aws.String(vpcID),
		CidrBlock: aws.String(cidr.String()),
		Tags:      specTags(input.TagSpecifications, types.ResourceTypeSubnet),
	}
	s.subnets[id] = sn

	// New subnets join the VPC's default ACL.
	for _, acl := range s.acls {
		if aws.ToString(acl.VpcId) == vpcID && aws.ToBool(acl.IsDefault) {
			acl.Associations = append(acl.Associations, types.NetworkAclAssociation{
				NetworkAclAssociationId: aws.String(s.seq.next("aclassoc")),
				NetworkAclId:            acl.NetworkAclId,
				SubnetId:                aws.String(id),
			})
		}
	}
	cp := *sn
	return &ec2.CreateSubnetOutput{Subnet: &cp}, nil
}

func (s *EC2Server) DeleteSubnet(
	ctx context.Context,
	input *ec2.DeleteSubnetInput,
	opts ...func(*ec2.Options),
) (*ec2.DeleteSubnetOutput, error) {
	if err := s.enter("DeleteSubnet"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := aws.ToString(input.SubnetId)
	if _, ok := s.subnets[id]; !ok {
		return nil, APIError("InvalidSubnetID.NotFound", "subnet %q does not exist", id)
	}
	for _, in := range s.instances {
		if aws.ToString(in.SubnetId) == id && in.State.Name != types.InstanceStateNameTerminated {
			return nil, APIError("DependencyViolation", "subnet %q has dependencies", id)
		}
	}
	delete(s.subnets, id)
	for _, acl := range s.acls {
		acl.Associations = removeACLAssociations(acl.Associations, id)
	}
	for _, rt := range s.routeTables {
		kept := rt.Associations[:0]
		for _, a := range rt.Associations {
			if aws.ToString(a.SubnetId) != id {
				kept = append(kept, a)
			}
		}
		rt.Associations = kept
	}
	return &ec2.DeleteSubnetOutput{}, nil
}

func (s *EC2Server) DescribeRouteTables(
	ctx context.Context,
	input *ec2.DescribeRouteTablesInput,
	opts ...func(*ec2.Options),
) (*ec2.DescribeRouteTablesOutput, error) {
	if err := s.enter("DescribeRouteTables"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ec2.DescribeRouteTablesOutput{}
	for _, id := range sortedKeys(s.routeTables) {
		rt := s.routeTables[id]
		if matchFilters(input.Filters, rt.Tags, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(rt.VpcId)}
			case "association.main":
				for _, a := range rt.Associations {
					if aws.ToBool(a.Main) {
						return []string{"true"}
					}
				}
				return []string{"false"}
			case "association.subnet-id":
				var ids []string
				for _, a := range rt.Associations {
					if a.SubnetId != nil {
						ids = append(ids, *a.SubnetId)
					}
				}
				return ids
			}
			return nil
		}) {
			out.RouteTables = append(out.RouteTables, *rt)
		}
	}
	return out, nil
}

func (s *EC2Server) AssociateRouteTable(
	ctx context.Context,
	input *ec2.AssociateRouteTableInput,
	opts ...func(*ec2.Options),
) (*ec2.AssociateRouteTableOutput, error) {
	if err := s.enter("AssociateRouteTable"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.routeTables[aws.ToString(input.RouteTableId)]
	if !ok {
		return nil, APIError("InvalidRouteTableID.NotFound", "route table %q does not exist", aws.ToString(input.RouteTableId))
	}
	if _, ok := s.subnets[aws.ToString(input.SubnetId)]; !ok {
		return nil, APIError("InvalidSubnetID.NotFound", "subnet %q does not exist", aws.ToString(input.SubnetId))
	}
	assoc := s.seq.next("rtbassoc")
	rt.Associations = append(rt.Associations, types.RouteTableAssociation{
		Main:                    aws.Bool(false),
		RouteTableAssociationId: aws.String(assoc),
		RouteTableId:            rt.RouteTableId,
		SubnetId:                input.SubnetId,
	})
	return &ec2.AssociateRouteTableOutput{AssociationId: aws.String(assoc)}, nil
}

func (s *EC2Server) DescribeNetworkAcls(
	ctx context.Context,
	input *ec2.DescribeNetworkAclsInput,
	opts ...func(*ec2.Options),
) (*ec2.DescribeNetworkAclsOutput, error) {
	if err := s.enter("DescribeNetworkAcls"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ec2.DescribeNetworkAclsOutput{}
	for _, id := range sortedKeys(s.acls) {
		acl := s.acls[id]
		if matchFilters(input.Filters, acl.Tags, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(acl.VpcId)}
			case "default":
				return []string{strconv.FormatBool(aws.ToBool(acl.IsDefault))}
			case "network-acl-id":
				return []string{id}
			case "association.subnet-id":
				var ids []string
				for _, a := range acl.Associations {
					ids = append(ids, aws.ToString(a.SubnetId))
				}
				return ids
			}
			return nil
		}) {
			out.NetworkAcls = append(out.NetworkAcls, *acl)
		}
	}
	return out, nil
}

func (s *EC2Server) CreateNetworkAcl(
	ctx context.Context,
	input *ec2.CreateNetworkAclInput,
	opts ...func(*ec2.Options),
) (*ec2.CreateNetworkAclOutput, error) {
	if err := s.enter("CreateNetworkAcl"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vpcs[aws.ToString(input.VpcId)]; !ok {
		return nil, APIError("InvalidVpcID.NotFound", "vpc %q does not exist", aws.ToString(input.VpcId))
	}
	id := s.seq.next("acl")
	acl := &types.NetworkAcl{
		NetworkAclId: aws.String(id),
		VpcId:        input.VpcId,
		IsDefault:    aws.Bool(false),
		Tags:         specTags(input.TagSpecifications, types.ResourceTypeNetworkAcl),
	}
	s.acls[id] = acl
	cp := *acl
	return &ec2.CreateNetworkAclOutput{NetworkAcl: &cp}, nil
}

func (s *EC2Server) CreateNetworkAclEntry(
	ctx context.Context,
	input *ec2.CreateNetworkAclEntryInput,
	opts ...func(*ec2.Options),
) (*ec2.CreateNetworkAclEntryOutput, error) {
	if err := s.enter("CreateNetworkAclEntry"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acl, ok := s.acls[aws.ToString(input.NetworkAclId)]
	if !ok {
		return nil, APIError("InvalidNetworkAclID.NotFound", "acl %q does not exist", aws.ToString(input.NetworkAclId))
	}
	for _, e := range acl.Entries {
		if aws.ToInt32(e.RuleNumber) == aws.ToInt32(input.RuleNumber) && aws.ToBool(e.Egress) == aws.ToBool(input.Egress) {
			return nil, APIError("NetworkAclEntryAlreadyExists", "rule %d already exists", aws.ToInt32(input.RuleNumber))
		}
	}
	acl.Entries = append(acl.Entries, types.NetworkAclEntry{
		CidrBlock:  input.CidrBlock,
		Egress:     input.Egress,
		PortRange:  input.PortRange,
		Protocol:   input.Protocol,
		RuleAction: input.RuleAction,
		RuleNumber: input.RuleNumber,
	})
	return &ec2.CreateNetworkAclEntryOutput{}, nil
}

func (s *EC2Server) ReplaceNetworkAclAssociation(
	ctx context.Context,
	input *ec2.ReplaceNetworkAclAssociationInput,
	opts ...func(*ec2.Options),
) (*ec2.ReplaceNetworkAclAssociationOutput, error) {
	if err := s.enter("ReplaceNetworkAclAssociation"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.acls[aws.ToString(input.NetworkAclId)]
	if !ok {
		return nil, APIError("InvalidNetworkAclID.NotFound", "acl %q does not exist", aws.ToString(input.NetworkAclId))
	}
	for _, acl := range s.acls {
		for i, a := range acl.Associations {
			if aws.ToString(a.NetworkAclAssociationId) != aws.ToString(input.AssociationId) {
				continue
			}
			acl.Associations = append(acl.Associations[:i:i], acl.Associations[i+1:]...)
			id := s.seq.next("aclassoc")
			target.Associations = append(target.Associations, types.NetworkAclAssociation{
				NetworkAclAssociationId: aws.String(id),
				NetworkAclId:            target.NetworkAclId,
				SubnetId:                a.SubnetId,
			})
			return &ec2.ReplaceNetworkAclAssociationOutput{NewAssociationId: aws.String(id)}, nil
		}
	}
	return nil, APIError("InvalidAssociationID.NotFound", "association %q does not exist", aws.ToString(input.AssociationId))
}

func (s *EC2Server) DeleteNetworkAcl(
	ctx context.Context,
	input *ec2.DeleteNetworkAclInput,
	opts ...func(*ec2.Options),
) (*ec2.DeleteNetworkAclOutput, error) {
	if err := s.enter("DeleteNetworkAcl"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := aws.ToString(input.NetworkAclId)
	acl, ok := s.acls[id]
	if !ok {
		return nil, APIError("InvalidNetworkAclID.NotFound", "acl %q does not exist", id)
	}
	if len(acl.Associations) > 0 {
		return nil, APIError("DependencyViolation", "acl %q is associated with subnets", id)
	}
	delete(s.acls, id)
	return &ec2.DeleteNetworkAclOutput{}, nil
}

func (s *EC2Server) DescribeSecurityGroups(
	ctx context.Context,
	input *ec2.DescribeSecurityGroupsInput,
	opts ...func(*ec2.Options),
) (*ec2.DescribeSecurityGroupsOutput, error) {
	if err := s.enter("DescribeSecurityGroups"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ec2.DescribeSecurityGroupsOutput{}
	for _, id := range sortedKeys(s.groups) {
		g := s.groups[id]
		if len(input.GroupIds) > 0 && !contains(input.GroupIds, id) {
			continue
		}
		if matchFilters(input.Filters, g.Tags, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(g.VpcId)}
			case "group-id":
				return []string{id}
			case "group-name":
				return []string{aws.ToString(g.GroupName)}
			}
			return nil
		}) {
			out.SecurityGroups = append(out.SecurityGroups, *g)
		}
	}
	return out, nil
}

func (s *EC2Server) CreateSecurityGroup(
	ctx context.Context,
	input *ec2.CreateSecurityGroupInput,
	opts ...func(*ec2.Options),
) (*ec2.CreateSecurityGroupOutput, error) {
	if err := s.enter("CreateSecurityGroup"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := aws.ToString(input.GroupName)
	for _, g := range s.groups {
		if aws.ToString(g.GroupName) == name && aws.ToString(g.VpcId) == aws.ToString(input.VpcId) {
			return nil, APIError("InvalidGroup.Duplicate", "security group %q already exists", name)
		}
	}
	id := s.seq.next("sg")
	s.groups[id] = &types.SecurityGroup{
		GroupId:     aws.String(id),
		GroupName:   input.GroupName,
		Description: input.Description,
		VpcId:       input.VpcId,
		Tags:        specTags(input.TagSpecifications, types.ResourceTypeSecurityGroup),
	}
	return &ec2.CreateSecurityGroupOutput{GroupId: aws.String(id)}, nil
}

func (s *EC2Server) AuthorizeSecurityGroupIngress(
	ctx context.Context,
	input *ec2.AuthorizeSecurityGroupIngressInput,
	opts ...func(*ec2.Options),
) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	if err := s.enter("AuthorizeSecurityGroupIngress"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[aws.ToString(input.GroupId)]
	if !ok {
		return nil, APIError("InvalidGroup.NotFound", "security group %q does not exist", aws.ToString(input.GroupId))
	}
	g.IpPermissions = append(g.IpPermissions, input.IpPermissions...)
	return &ec2.AuthorizeSecurityGroupIngressOutput{Return: aws.Bool(true)}, nil
}

func (s *EC2Server) DeleteSecurityGroup(
	ctx context.Context,
	input *ec2.DeleteSecurityGroupInput,
	opts ...func(*ec2.Options),
) (*ec2.DeleteSecurityGroupOutput, error) {
	if err := s.enter("DeleteSecurityGroup"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := aws.ToString(input.GroupId)
	if _, ok := s.groups[id]; !ok {
		return nil, APIError("InvalidGroup.NotFound", "security group %q does not exist", id)
	}
	for _, in := range s.instances {
		if in.State.Name == types.InstanceStateNameTerminated {
			continue
		}
		for _, g := range in.SecurityGroups {
			if aws.ToString(g.GroupId) == id {
				return nil, APIError("DependencyViolation", "resource %s has a dependent object", id)
			}
		}
	}
	delete(s.groups, id)
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (s *EC2Server) CreateTags(
	ctx context.Context,
	input *ec2.CreateTagsInput,
	opts ...func(*ec2.Options),
) (*ec2.CreateTagsOutput, error) {
	if err := s.enter("CreateTags"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range input.Resources {
		var target *[]types.Tag
		switch {
		case strings.HasPrefix(id, "sg-"):
			if g, ok := s.groups[id]; ok {
				target = &g.Tags
			}
		case strings.HasPrefix(id, "subnet-"):
			if sn, ok := s.subnets[id]; ok {
				target = &sn.Tags
			}
		case strings.HasPrefix(id, "acl-"):
			if a, ok := s.acls[id]; ok {
				target = &a.Tags
			}
		case strings.HasPrefix(id, "i-"):
			if in, ok := s.instances[id]; ok {
				target = &in.Tags
			}
		case strings.HasPrefix(id, "vpc-"):
			if v, ok := s.vpcs[id]; ok {
				target = &v.Tags
			}
		}
		if target == nil {
			return nil, APIError("InvalidID", "resource %q does not exist", id)
		}
		*target = mergeTags(*target, input.Tags)
	}
	return &ec2.CreateTagsOutput{}, nil
}

func (s *EC2Server) DescribeInstances(
	ctx context.Context,
	input *ec2.DescribeInstancesInput,
	opts ...func(*ec2.Options),
) (*ec2.DescribeInstancesOutput, error) {
	if err := s.enter("DescribeInstances"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ec2.DescribeInstancesOutput{}
	for _, id := range sortedKeys(s.instances) {
		in := s.instances[id]
		if len(input.InstanceIds) > 0 && !contains(input.InstanceIds, id) {
			continue
		}
		if matchFilters(input.Filters, in.Tags, func(name string) []string {
			switch name {
			case "vpc-id":
				return []string{aws.ToString(in.VpcId)}
			case "subnet-id":
				return []string{aws.ToString(in.SubnetId)}
			case "instance-id":
				return []string{id}
			case "instance-state-name":
				return []string{string(in.State.Name)}
			}
			return nil
		}) {
			cp := *in
			out.Reservations = append(out.Reservations, types.Reservation{
				ReservationId: aws.String("r-" + strings.TrimPrefix(id, "i-")),
				Instances:     []types.Instance{cp},
			})
		}
	}
	return out, nil
}

func (s *EC2Server) RunInstances(
	ctx context.Context,
	input *ec2.RunInstancesInput,
	opts ...func(*ec2.Options),
) (*ec2.RunInstancesOutput, error) {
	if err := s.enter("RunInstances"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	subnetID := aws.ToString(input.SubnetId)
	groups := input.SecurityGroupIds
	if len(input.NetworkInterfaces) > 0 {
		subnetID = aws.ToString(input.NetworkInterfaces[0].SubnetId)
		groups = input.NetworkInterfaces[0].Groups
	}
	sn, ok := s.subnets[subnetID]
	if !ok {
		return nil, APIError("InvalidSubnetID.NotFound", "subnet %q does not exist", subnetID)
	}
	var sgs []types.GroupIdentifier
	for _, g := range groups {
		if _, ok := s.groups[g]; !ok {
			return nil, APIError("InvalidGroup.NotFound", "security group %q does not exist", g)
		}
		sgs = append(sgs, types.GroupIdentifier{GroupId: aws.String(g)})
	}

	count := int(aws.ToInt32(input.MinCount))
	if count < 1 {
		count = 1
	}
	out := &ec2.RunInstancesOutput{ReservationId: aws.String(s.seq.next("r"))}
	for i := 0; i < count; i++ {
		id := s.seq.next("i")
		in := &types.Instance{
			InstanceId:       aws.String(id),
			ImageId:          input.ImageId,
			InstanceType:     input.InstanceType,
			SubnetId:         aws.String(subnetID),
			VpcId:            sn.VpcId,
			SecurityGroups:   sgs,
			PrivateIpAddress: aws.String(fmt.Sprintf("10.0.0.%d", s.seq.n%250+2)),
			PublicIpAddress:  aws.String(fmt.Sprintf("203.0.113.%d", s.seq.n%250+2)),
			State:            &types.InstanceState{Code: aws.Int32(16), Name: types.InstanceStateNameRunning},
			Tags:             specTags(input.TagSpecifications, types.ResourceTypeInstance),
		}
		s.instances[id] = in
		out.Instances = append(out.Instances, *in)
	}
	return out, nil
}

func (s *EC2Server) TerminateInstances(
	ctx context.Context,
	input *ec2.TerminateInstancesInput,
	opts ...func(*ec2.Options),
) (*ec2.TerminateInstancesOutput, error) {
	if err := s.enter("TerminateInstances"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ec2.TerminateInstancesOutput{}
	for _, id := range input.InstanceIds {
		in, ok := s.instances[id]
		if !ok {
			return nil, APIError("InvalidInstanceID.NotFound", "instance %q does not exist", id)
		}
		prev := *in.State
		in.State = &types.InstanceState{Code: aws.Int32(48), Name: types.InstanceStateNameTerminated}
		in.PublicIpAddress = nil
		out.TerminatingInstances = append(out.TerminatingInstances, types.InstanceStateChange{
			InstanceId:    aws.String(id),
			PreviousState: &prev,
			CurrentState:  in.State,
		})
	}
	return out, nil
}

// matchFilters applies EC2 filter semantics: every filter must match, and
// a filter matches when any of its values equals any attribute value.
func matchFilters(filters []types.Filter, tags []types.Tag, attr func(string) []string) bool {
	for _, f := range filters {
		name := aws.ToString(f.Name)
		var have []string
		switch {
		case strings.HasPrefix(name, "tag:"):
			key := strings.TrimPrefix(name, "tag:")
			for _, t := range tags {
				if aws.ToString(t.Key) == key {
					have = append(have, aws.ToString(t.Value))
				}
			}
		case name == "tag-key":
			for _, t := range tags {
				have = append(have, aws.ToString(t.Key))
			}
		default:
			have = attr(name)
		}
		matched := false
		for _, v := range f.Values {
			if contains(have, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func specTags(specs []types.TagSpecification, rt types.ResourceType) []types.Tag {
	var tags []types.Tag
	for _, spec := range specs {
		if spec.ResourceType == rt {
			tags = append(tags, spec.Tags...)
		}
	}
	return tags
}

func mergeTags(existing, add []types.Tag) []types.Tag {
	for _, t := range add {
		replaced := false
		for i := range existing {
			if aws.ToString(existing[i].Key) == aws.ToString(t.Key) {
				existing[i].Value = t.Value
				replaced = true
			}
		}
		if !replaced {
			existing = append(existing, t)
		}
	}
	return existing
}

func removeACLAssociations(assocs []types.NetworkAclAssociation, subnetID string) []types.NetworkAclAssociation {
	kept := assocs[:0]
	for _, a := range assocs {
		if aws.ToString(a.SubnetId) != subnetID {
			kept = append(kept, a)
		}
	}
	return kept
}
