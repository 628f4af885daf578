package provisioner

import (
	"context"

	"github.com/iac-studio/envforge/internal/dns"
	"github.com/iac-studio/envforge/internal/environment"
	"github.com/iac-studio/envforge/internal/identity"
	"github.com/iac-studio/envforge/internal/network"
	"github.com/iac-studio/envforge/internal/registry"
	"github.com/iac-studio/envforge/internal/secrets"
	"github.com/iac-studio/envforge/pkg/awsclient"
)

// APIs are the provider clients the AWS managers are built on.
type APIs struct {
	EC2     network.EC2API
	Route53 dns.Route53API
	ECR     registry.ECRAPI
	IAM     identity.IAMAPI
}

func APIsFrom(c *awsclient.Clients) APIs {
	return APIs{EC2: c.EC2, Route53: c.Route53, ECR: c.ECR, IAM: c.IAM}
}

// NewForAWS wires an orchestrator to the AWS managers.
func NewForAWS(apis APIs, store SecretStore, instanceOpts []network.InstanceOption, opts ...Option) *Orchestrator {
	zones := func(ctx context.Context) (string, error) {
		return dns.FindHostedZoneID(ctx, apis.Route53)
	}
	return New(network.NewVPCManager(apis.EC2), zones, AWSBuilder(apis, store, instanceOpts...), opts...)
}

// AWSBuilder builds the managers for a resolved binding.
func AWSBuilder(apis APIs, store SecretStore, instanceOpts ...network.InstanceOption) Builder {
	return func(b Binding) (*Collaborators, error) {
		subnets := network.NewSubnetManager(apis.EC2, b.VPCID)
		groups := network.NewSecurityGroupManager(apis.EC2, b.VPCID)
		instances := network.NewInstanceManager(apis.EC2, b.VPCID, instanceOpts...)
		records := dns.NewManager(apis.Route53, b.HostedZoneID)
		return &Collaborators{
			Subnets:     subnets,
			ACLs:        network.NewACLManager(apis.EC2, b.VPCID),
			Routes:      network.NewRouteTableManager(apis.EC2, b.VPCID),
			Registry:    registry.NewManager(apis.ECR),
			Identity:    identity.NewManager(apis.IAM),
			Instances:   instances,
			PRs:         environment.NewPRManager(subnets, groups, instances, records),
			Deployments: environment.NewDeploymentManager(subnets, groups, instances, records),
			Generator:   secrets.NewGenerator(),
			Secrets:     store,
		}, nil
	}
}
