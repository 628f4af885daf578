package network

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// RouteTableManager resolves the route table new subnets are attached to.
type RouteTableManager struct {
	client RouteTableAPI
	vpcID  string
}

func NewRouteTableManager(client RouteTableAPI, vpcID string) *RouteTableManager {
	return &RouteTableManager{client: client, vpcID: vpcID}
}

// FindDefault returns the id of the marker-tagged route table in the VPC,
// falling back to the VPC's main route table.
func (m *RouteTableManager) FindDefault(ctx context.Context) (string, error) {
	out, err := m.client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []types.Filter{vpcFilter(m.vpcID), markerFilter()},
	})
	if err != nil {
		return "", err
	}
	if len(out.RouteTables) > 0 {
		return aws.ToString(out.RouteTables[0].RouteTableId), nil
	}

	out, err = m.client.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []types.Filter{vpcFilter(m.vpcID), filter("association.main", "true")},
	})
	if err != nil {
		return "", err
	}
	if len(out.RouteTables) == 0 {
		return "", appErr.Newf(appErr.CodeNotFound, "no route table found in vpc %s", m.vpcID)
	}
	return aws.ToString(out.RouteTables[0].RouteTableId), nil
}
