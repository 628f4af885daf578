// Package provisioner is the environment lifecycle orchestrator. It binds
// itself to the managed VPC and hosted zone once, then composes the
// network, registry, identity and environment managers into project, pull
// request and deployment operations.
package provisioner

import (
	"context"
	"sync"

	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iac-studio/envforge/internal/environment"
	"github.com/iac-studio/envforge/internal/identity"
	"github.com/iac-studio/envforge/internal/registry"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

// ErrNotReady is returned by every operation issued before Resolve
// completed.
var ErrNotReady = appErr.New(appErr.CodeNotReady, "orchestrator is not ready")

// State of an Orchestrator.
type State int

const (
	Uninitialized State = iota
	Resolving
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Resolving:
		return "resolving"
	case Ready:
		return "ready"
	}
	return "unknown"
}

type VPCFinder interface {
	FindManaged(ctx context.Context) (*ec2types.Vpc, error)
}

// ZoneLookup returns the id of the managed hosted zone.
type ZoneLookup func(ctx context.Context) (string, error)

type Subnets interface {
	Create(ctx context.Context, projectID, routeTableID, aclID string) (*ec2types.Subnet, error)
	Destroy(ctx context.Context, projectID string) error
	Describe(ctx context.Context) ([]ec2types.Subnet, error)
	FindProject(ctx context.Context, projectID string) (*ec2types.Subnet, error)
}

type ACLs interface {
	Create(ctx context.Context, projectID string) (string, error)
	Destroy(ctx context.Context, projectID string) error
}

type Routes interface {
	FindDefault(ctx context.Context) (string, error)
}

type Registry interface {
	Create(ctx context.Context, projectID string) (*registry.Repository, error)
}

type Identity interface {
	CreateProjectUser(ctx context.Context, projectID, repositoryARN string) (*identity.Credentials, error)
}

// Instances reports the live pull request and deployment instances of a
// project.
type Instances interface {
	DescribeProject(ctx context.Context, projectID string) ([]ec2types.Instance, error)
	DescribeDeployments(ctx context.Context, projectID string) ([]ec2types.Instance, error)
}

type PRs interface {
	Create(ctx context.Context, projectID, pr string, app environment.AppDefinition, ssh environment.SSHData) (*environment.Environment, error)
	Destroy(ctx context.Context, projectID, pr string) error
}

type Deployments interface {
	Create(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error)
	Update(ctx context.Context, projectID, deployment, sha string, app environment.AppDefinition) (*environment.Environment, error)
	Destroy(ctx context.Context, projectID, deployment string) error
}

type SecretGenerator interface {
	Generate() (string, error)
}

// SecretStore persists webhook secrets by project id.
type SecretStore interface {
	Put(ctx context.Context, projectID, secret string) error
}

// Binding is what Resolve discovers.
type Binding struct {
	VPCID        string
	VPCCIDR      string
	HostedZoneID string
}

// Collaborators are the managers an orchestrator delegates to.
type Collaborators struct {
	Subnets     Subnets
	ACLs        ACLs
	Routes      Routes
	Registry    Registry
	Identity    Identity
	Instances   Instances
	PRs         PRs
	Deployments Deployments
	Generator   SecretGenerator
	Secrets     SecretStore
}

// Builder constructs the collaborators bound to b.
type Builder func(b Binding) (*Collaborators, error)

// Orchestrator drives the lifecycle of projects, pull requests and
// deployments inside one VPC.
type Orchestrator struct {
	vpcs   VPCFinder
	zones  ZoneLookup
	build  Builder
	strict bool
	log    *zap.Logger

	mu      sync.RWMutex
	state   State
	binding Binding
	c       *Collaborators
}

type Option func(*Orchestrator)

// WithStrictLookup limits the FindOrCreateProject fallback to provider
// errors saying the resource already exists.
func WithStrictLookup(strict bool) Option {
	return func(o *Orchestrator) { o.strict = strict }
}

func New(vpcs VPCFinder, zones ZoneLookup, build Builder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		vpcs:  vpcs,
		zones: zones,
		build: build,
		log:   logger.Named("provisioner"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Binding returns the resolved VPC and hosted zone.
func (o *Orchestrator) Binding() (Binding, error) {
	if _, err := o.ready(); err != nil {
		return Binding{}, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.binding, nil
}

// Resolve looks up the managed VPC and hosted zone concurrently and builds
// the collaborators. A failed Resolve leaves the orchestrator uninitialized.
func (o *Orchestrator) Resolve(ctx context.Context) error {
	o.mu.Lock()
	if o.state != Uninitialized {
		st := o.state
		o.mu.Unlock()
		return appErr.Newf(appErr.CodeFailedPrecondition, "orchestrator is %s", st)
	}
	o.state = Resolving
	o.mu.Unlock()

	b, c, err := o.resolve(ctx)

	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.state = Uninitialized
		return err
	}
	o.binding, o.c, o.state = b, c, Ready
	o.log.Info("orchestrator ready",
		zap.String("vpc_id", b.VPCID),
		zap.String("vpc_cidr", b.VPCCIDR),
		zap.String("hosted_zone_id", b.HostedZoneID))
	return nil
}

func (o *Orchestrator) resolve(ctx context.Context) (Binding, *Collaborators, error) {
	var (
		b   Binding
		vpc *ec2types.Vpc
		g   errgroup.Group
	)
	g.Go(func() error {
		v, err := o.vpcs.FindManaged(ctx)
		vpc = v
		return err
	})
	g.Go(func() error {
		id, err := o.zones(ctx)
		b.HostedZoneID = id
		return err
	})
	if err := g.Wait(); err != nil {
		return Binding{}, nil, err
	}
	if vpc.VpcId != nil {
		b.VPCID = *vpc.VpcId
	}
	if vpc.CidrBlock != nil {
		b.VPCCIDR = *vpc.CidrBlock
	}

	c, err := o.build(b)
	if err != nil {
		return Binding{}, nil, err
	}
	return b, c, nil
}

func (o *Orchestrator) ready() (*Collaborators, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.state != Ready {
		return nil, ErrNotReady
	}
	return o.c, nil
}
