package provisioner

import (
	"context"
	"errors"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iac-studio/envforge/internal/identity"
	"github.com/iac-studio/envforge/internal/network"
	"github.com/iac-studio/envforge/internal/registry"
	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// ErrOpenPullRequests is returned by Destroy while PR instances are live.
var ErrOpenPullRequests = appErr.New(appErr.CodeFailedPrecondition, "cannot destroy project while open pull requests exist")

// ErrLiveDeployments is returned by Destroy while deployment instances are live.
var ErrLiveDeployments = appErr.New(appErr.CodeFailedPrecondition, "cannot destroy project while deployments are running")

// Provider error codes meaning the resource is already there.
var alreadyExistsCodes = map[string]bool{
	"InvalidGroup.Duplicate":           true,
	"InvalidSubnet.Conflict":           true,
	"RepositoryAlreadyExistsException": true,
	"EntityAlreadyExists":              true,
}

// Project is the result of creating or finding a project. Credentials are
// only known right after creation.
type Project struct {
	ProjectID     string                `json:"project_id"`
	VPCID         string                `json:"vpc_id"`
	SubnetID      string                `json:"subnet_id"`
	CIDR          string                `json:"cidr,omitempty"`
	RouteTableID  string                `json:"route_table_id,omitempty"`
	ACLID         string                `json:"acl_id,omitempty"`
	RepositoryARN string                `json:"repository_arn,omitempty"`
	RepositoryURI string                `json:"repository_uri,omitempty"`
	Credentials   *identity.Credentials `json:"credentials,omitempty"`
}

// Description is the observed state of a project.
type Description struct {
	ProjectID string   `json:"project_id"`
	SubnetID  string   `json:"subnet_id"`
	CIDR      string   `json:"cidr"`
	OpenPRs   []string `json:"open_prs"`
}

// Create provisions a project in two joins. The route table lookup, the
// ACL and the repository come first; the subnet and the IAM user follow.
// Resources created before a failure are left in place and logged.
func (o *Orchestrator) Create(ctx context.Context, projectID string) (*Project, error) {
	c, err := o.ready()
	if err != nil {
		return nil, err
	}
	if err := tagging.ProjectOwner(projectID).Validate(); err != nil {
		return nil, err
	}
	log := o.log.With(zap.String("project_id", projectID))
	log.Info("creating project")

	var (
		routeID string
		aclID   string
		repo    *registry.Repository
		first   errgroup.Group
	)
	first.Go(func() (err error) {
		routeID, err = c.Routes.FindDefault(ctx)
		return err
	})
	first.Go(func() (err error) {
		aclID, err = c.ACLs.Create(ctx, projectID)
		return err
	})
	first.Go(func() (err error) {
		repo, err = c.Registry.Create(ctx, projectID)
		return err
	})
	if err := first.Wait(); err != nil {
		logLeaked(log, "acl", aclID, "repository", arnOf(repo))
		return nil, err
	}

	var (
		subnetID string
		cidr     string
		creds    *identity.Credentials
		second   errgroup.Group
	)
	second.Go(func() error {
		sn, err := c.Subnets.Create(ctx, projectID, routeID, aclID)
		if err != nil {
			return err
		}
		subnetID, cidr = aws.ToString(sn.SubnetId), aws.ToString(sn.CidrBlock)
		return nil
	})
	second.Go(func() (err error) {
		creds, err = c.Identity.CreateProjectUser(ctx, projectID, repo.ARN)
		return err
	})
	if err := second.Wait(); err != nil {
		user := ""
		if creds != nil {
			user = creds.UserName
		}
		logLeaked(log, "acl", aclID, "repository", repo.ARN, "subnet", subnetID, "iam_user", user)
		return nil, err
	}

	log.Info("project created", zap.String("subnet_id", subnetID), zap.String("cidr", cidr))
	return &Project{
		ProjectID:     projectID,
		VPCID:         o.binding.VPCID,
		SubnetID:      subnetID,
		CIDR:          cidr,
		RouteTableID:  routeID,
		ACLID:         aclID,
		RepositoryARN: repo.ARN,
		RepositoryURI: repo.URI,
		Credentials:   creds,
	}, nil
}

// FindOrCreateProject creates the project and falls back to its existing
// subnet when creation fails. In strict mode only "already exists"
// provider errors fall back.
func (o *Orchestrator) FindOrCreateProject(ctx context.Context, projectID string) (*Project, error) {
	c, err := o.ready()
	if err != nil {
		return nil, err
	}
	p, err := o.Create(ctx, projectID)
	if err == nil {
		return p, nil
	}
	if o.strict && !IsAlreadyExists(err) {
		return nil, err
	}
	o.log.Warn("project create failed, looking up existing subnet",
		zap.String("project_id", projectID),
		zap.Bool("strict", o.strict),
		zap.Error(err))

	sn, ferr := c.Subnets.FindProject(ctx, projectID)
	if ferr != nil {
		return nil, ferr
	}
	return &Project{
		ProjectID: projectID,
		VPCID:     o.binding.VPCID,
		SubnetID:  aws.ToString(sn.SubnetId),
		CIDR:      aws.ToString(sn.CidrBlock),
	}, nil
}

// Destroy removes the project's subnet and then its ACL. It refuses while
// the project has open pull requests or running deployments. The
// repository and IAM user are kept.
func (o *Orchestrator) Destroy(ctx context.Context, projectID string) error {
	c, err := o.ready()
	if err != nil {
		return err
	}
	if err := tagging.ProjectOwner(projectID).Validate(); err != nil {
		return err
	}
	open, err := c.Instances.DescribeProject(ctx, projectID)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return ErrOpenPullRequests
	}
	deps, err := c.Instances.DescribeDeployments(ctx, projectID)
	if err != nil {
		return err
	}
	if len(deps) > 0 {
		return ErrLiveDeployments
	}
	if err := c.Subnets.Destroy(ctx, projectID); err != nil {
		return err
	}
	if err := c.ACLs.Destroy(ctx, projectID); err != nil {
		return err
	}
	o.log.Info("project destroyed", zap.String("project_id", projectID))
	return nil
}

// DescribeProject reports the project's subnet and open pull requests.
func (o *Orchestrator) DescribeProject(ctx context.Context, projectID string) (*Description, error) {
	c, err := o.ready()
	if err != nil {
		return nil, err
	}
	sn, err := c.Subnets.FindProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	open, err := c.Instances.DescribeProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	prs := []string{}
	for _, in := range open {
		pr, ok := network.FromEC2Tags(in.Tags).Get(tagging.PRTag)
		if ok && !seen[pr] {
			seen[pr] = true
			prs = append(prs, pr)
		}
	}
	sort.Strings(prs)
	return &Description{
		ProjectID: projectID,
		SubnetID:  aws.ToString(sn.SubnetId),
		CIDR:      aws.ToString(sn.CidrBlock),
		OpenPRs:   prs,
	}, nil
}

// ListProjects returns the project ids found on managed subnets, in
// listing order and without duplicates.
func (o *Orchestrator) ListProjects(ctx context.Context) ([]string, error) {
	c, err := o.ready()
	if err != nil {
		return nil, err
	}
	subnets, err := c.Subnets.Describe(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := []string{}
	for _, sn := range subnets {
		pid, ok := network.FromEC2Tags(sn.Tags).Get(tagging.ProjectTag)
		if !ok || seen[pid] {
			continue
		}
		seen[pid] = true
		out = append(out, pid)
	}
	return out, nil
}

// InitializeWebhookSecret generates a new webhook secret for the project
// and stores it, replacing any previous one.
func (o *Orchestrator) InitializeWebhookSecret(ctx context.Context, projectID string) (string, error) {
	c, err := o.ready()
	if err != nil {
		return "", err
	}
	if err := tagging.ProjectOwner(projectID).Validate(); err != nil {
		return "", err
	}
	secret, err := c.Generator.Generate()
	if err != nil {
		return "", err
	}
	if err := c.Secrets.Put(ctx, projectID, secret); err != nil {
		return "", err
	}
	o.log.Info("webhook secret initialized", zap.String("project_id", projectID))
	return secret, nil
}

// IsAlreadyExists reports whether err is a provider error saying the
// resource already exists.
func IsAlreadyExists(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return alreadyExistsCodes[ae.ErrorCode()]
	}
	return false
}

func arnOf(r *registry.Repository) string {
	if r == nil {
		return ""
	}
	return r.ARN
}

// logLeaked warns about the non-empty resources in kv.
func logLeaked(log *zap.Logger, kv ...string) {
	fields := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			fields = append(fields, zap.String(kv[i], kv[i+1]))
		}
	}
	if len(fields) == 0 {
		return
	}
	log.Warn("provisioning failed, created resources left in place", fields...)
}
