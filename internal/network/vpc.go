package network

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// VPCManager finds the VPC envforge provisions into.
type VPCManager struct {
	client VPCAPI
}

func NewVPCManager(client VPCAPI) *VPCManager {
	return &VPCManager{client: client}
}

// FindManaged returns the first VPC carrying the managed marker.
func (m *VPCManager) FindManaged(ctx context.Context) (*types.Vpc, error) {
	out, err := m.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{markerFilter()},
	})
	if err != nil {
		return nil, err
	}
	if len(out.Vpcs) == 0 {
		return nil, appErr.New(appErr.CodeNotFound, "no managed vpc found")
	}
	vpc := out.Vpcs[0]
	return &vpc, nil
}
