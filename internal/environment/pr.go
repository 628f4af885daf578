package environment

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/network"
	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/pkg/logger"
)

// PRManager creates and destroys the throwaway environment of one pull
// request.
type PRManager struct {
	subnets   Subnets
	groups    SecurityGroups
	instances Instances
	records   Records
}

func NewPRManager(subnets Subnets, groups SecurityGroups, instances Instances, records Records) *PRManager {
	return &PRManager{subnets: subnets, groups: groups, instances: instances, records: records}
}

// Create runs the pull request's app in the project subnet and points
// <pid>-pr-<pr> at it.
func (m *PRManager) Create(ctx context.Context, projectID, pr string, app AppDefinition, ssh SSHData) (*Environment, error) {
	o := tagging.PROwner(projectID, pr)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	subdomain, err := tagging.PRSubdomain(projectID, pr)
	if err != nil {
		return nil, err
	}
	log := logger.Named("environment").With(zap.String("owner", o.String()))

	subnet, err := m.subnets.FindProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sg, err := m.groups.Create(ctx, projectID, pr)
	if err != nil {
		return nil, err
	}
	groupID := aws.ToString(sg.GroupId)
	if err := m.groups.AuthorizeIngress(ctx, groupID, ingressPorts(app, ssh)); err != nil {
		return nil, err
	}

	userData, err := UserData(o, "", app, ssh)
	if err != nil {
		return nil, err
	}
	in, err := m.instances.Run(ctx, network.RunSpec{
		Owner:            o,
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
	if _, err := m.records.CreatePRRecord(ctx, projectID, pr, ip); err != nil {
		return nil, err
	}

	log.Info("pull request environment created", zap.String("instance_id", instanceID), zap.String("public_ip", ip))
	return &Environment{
		ProjectID:       projectID,
		PR:              pr,
		InstanceID:      instanceID,
		SecurityGroupID: groupID,
		PublicIP:        ip,
		Subdomain:       subdomain,
	}, nil
}

// Destroy terminates the pull request's instances, removes its record and
// deletes its security groups. Every destructive step is ownership checked.
func (m *PRManager) Destroy(ctx context.Context, projectID, pr string) error {
	o := tagging.PROwner(projectID, pr)
	if err := o.Validate(); err != nil {
		return err
	}
	log := logger.Named("environment").With(zap.String("owner", o.String()))

	live, err := m.instances.DescribePR(ctx, projectID, pr)
	if err != nil {
		return err
	}
	ip := publicIP(live)

	ids, err := m.instances.Terminate(ctx, o)
	if err != nil {
		return err
	}
	if ip != "" {
		if _, err := m.records.DestroyPRRecord(ctx, projectID, pr, ip); err != nil {
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
		if err := m.groups.Destroy(ctx, aws.ToString(g.GroupId), projectID, pr); err != nil {
			return err
		}
	}

	log.Info("pull request environment destroyed", zap.Strings("instance_ids", ids), zap.Int("security_groups", len(groups)))
	return nil
}
