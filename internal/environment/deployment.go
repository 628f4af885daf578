package environment

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/network"
	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/pkg/logger"
)

// DeploymentManager runs the persistent environments of named deployments.
type DeploymentManager struct {
	subnets   Subnets
	groups    SecurityGroups
	instances Instances
	records   Records
}

func NewDeploymentManager(subnets Subnets, groups SecurityGroups, instances Instances, records Records) *DeploymentManager {
	return &DeploymentManager{subnets: subnets, groups: groups, instances: instances, records: records}
}

// Create starts the deployment at commit sha and points its subdomain at it.
func (m *DeploymentManager) Create(ctx context.Context, projectID, deployment, sha string, app AppDefinition) (*Environment, error) {
	o := tagging.DeploymentOwner(projectID, deployment)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}

	sg, err := m.groups.CreateForDeployment(ctx, projectID, deployment)
	if err != nil {
		return nil, err
	}
	groupID := aws.ToString(sg.GroupId)
	if err := m.groups.AuthorizeIngress(ctx, groupID, ingressPorts(app, SSHData{})); err != nil {
		return nil, err
	}

	env, err := m.launch(ctx, o, sha, groupID, app)
	if err != nil {
		return nil, err
	}
	if _, err := m.records.CreateDeploymentRecord(ctx, projectID, deployment, env.PublicIP); err != nil {
		return nil, err
	}
	logger.Named("environment").Info("deployment created",
		zap.String("owner", o.String()),
		zap.String("sha", sha),
		zap.String("instance_id", env.InstanceID))
	return env, nil
}

// Update replaces the deployment's instance with one running sha and moves
// the record to the new address. A deployment without a security group is
// created instead.
func (m *DeploymentManager) Update(ctx context.Context, projectID, deployment, sha string, app AppDefinition) (*Environment, error) {
	o := tagging.DeploymentOwner(projectID, deployment)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	log := logger.Named("environment").With(zap.String("owner", o.String()))

	groups, err := m.groups.DescribeOwned(ctx, o)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		log.Info("deployment has no security group, creating it")
		return m.Create(ctx, projectID, deployment, sha, app)
	}
	group := groups[0]
	groupID := aws.ToString(group.GroupId)

	open := authorizedPorts(group)
	var missing []int32
	for _, p := range ingressPorts(app, SSHData{}) {
		if !open[p] {
			missing = append(missing, p)
		}
	}
	if err := m.groups.AuthorizeIngress(ctx, groupID, missing); err != nil {
		return nil, err
	}

	previous, err := m.instances.DescribeDeployment(ctx, projectID, deployment)
	if err != nil {
		return nil, err
	}
	oldIP := publicIP(previous)

	env, err := m.launch(ctx, o, sha, groupID, app)
	if err != nil {
		return nil, err
	}
	if oldIP != env.PublicIP {
		if oldIP != "" {
			if _, err := m.records.DestroyDeploymentRecord(ctx, projectID, deployment, oldIP); err != nil {
				return nil, err
			}
		}
		if _, err := m.records.CreateDeploymentRecord(ctx, projectID, deployment, env.PublicIP); err != nil {
			return nil, err
		}
	}

	replaced, err := m.instances.TerminateOthers(ctx, o, env.InstanceID)
	if err != nil {
		return nil, err
	}
	log.Info("deployment updated",
		zap.String("sha", sha),
		zap.String("instance_id", env.InstanceID),
		zap.Strings("replaced", replaced))
	return env, nil
}

// Destroy tears the deployment down the same way a pull request is.
func (m *DeploymentManager) Destroy(ctx context.Context, projectID, deployment string) error {
	o := tagging.DeploymentOwner(projectID, deployment)
	if err := o.Validate(); err != nil {
		return err
	}
	log := logger.Named("environment").With(zap.String("owner", o.String()))

	live, err := m.instances.DescribeDeployment(ctx, projectID, deployment)
	if err != nil {
		return err
	}
	ip := publicIP(live)

	ids, err := m.instances.Terminate(ctx, o)
	if err != nil {
		return err
	}
	if ip != "" {
		if _, err := m.records.DestroyDeploymentRecord(ctx, projectID, deployment, ip); err != nil {
			return err
		}
	} else {
		log.Warn("no live instance address, record left in place")
	}
	if err := m.instances.WaitTerminated(ctx, ids); err != nil {
		return err
	}

	groups, err := m.groups.DescribeOwned(ctx, o)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := m.groups.DestroyForDeployment(ctx, aws.ToString(g.GroupId), projectID, deployment); err != nil {
			return err
		}
	}
	log.Info("deployment destroyed", zap.Strings("instance_ids", ids))
	return nil
}

func (m *DeploymentManager) launch(ctx context.Context, o tagging.Owner, sha, groupID string, app AppDefinition) (*Environment, error) {
	subdomain, err := tagging.DeploymentSubdomain(o.ProjectID, o.Deployment)
	if err != nil {
		return nil, err
	}
	subnet, err := m.subnets.FindProject(ctx, o.ProjectID)
	if err != nil {
		return nil, err
	}
	userData, err := UserData(o, sha, app, SSHData{})
	if err != nil {
		return nil, err
	}
	in, err := m.instances.Run(ctx, network.RunSpec{
		Owner:            o,
		SHA:              sha,
		SubnetID:         aws.ToString(subnet.SubnetId),
		SecurityGroupIDs: []string{groupID},
		UserData:         userData,
	})
	if err != nil {
		return nil, err
	}
	instanceID := aws.ToString(in.InstanceId)
	ip, err := m.instances.WaitForPublicIP(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return &Environment{
		ProjectID:       o.ProjectID,
		Deployment:      o.Deployment,
		SHA:             sha,
		InstanceID:      instanceID,
		SecurityGroupID: groupID,
		PublicIP:        ip,
		Subdomain:       subdomain,
	}, nil
}
