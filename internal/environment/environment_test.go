package environment

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iac-studio/envforge/internal/dns"
	"github.com/iac-studio/envforge/internal/network"
	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/internal/testing/awsfake"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

func TestMain(m *testing.M) {
	_, _ = logger.Init("error", "json")
	os.Exit(m.Run())
}

type fixture struct {
	ec2    *awsfake.EC2Server
	r53    *awsfake.Route53Server
	zoneID string
	groups *network.SecurityGroupManager
	prs    *PRManager
	deps   *DeploymentManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	ec2srv := awsfake.NewEC2Server()
	vpcID := ec2srv.AddVPC("10.0.0.0/16", network.ToEC2Tags(tagging.Tags{{Key: tagging.MarkerTag, Value: tagging.MarkerValue}})...)
	routeID, err := network.NewRouteTableManager(ec2srv, vpcID).FindDefault(ctx)
	require.NoError(t, err)
	aclID, err := network.NewACLManager(ec2srv, vpcID).Create(ctx, "acme")
	require.NoError(t, err)
	subnets := network.NewSubnetManager(ec2srv, vpcID)
	_, err = subnets.Create(ctx, "acme", routeID, aclID)
	require.NoError(t, err)

	r53 := awsfake.NewRoute53Server()
	zone := r53.AddZone("example.com.", r53types.Tag{Key: aws.String(tagging.MarkerTag), Value: aws.String(tagging.MarkerValue)})
	records := dns.NewManager(r53, dns.ZonePrefix+zone)

	groups := network.NewSecurityGroupManager(ec2srv, vpcID)
	instances := network.NewInstanceManager(ec2srv, vpcID, network.WithImage("ami-0123456789"))
	return &fixture{
		ec2:    ec2srv,
		r53:    r53,
		zoneID: records.ZoneID(),
		groups: groups,
		prs:    NewPRManager(subnets, groups, instances, records),
		deps:   NewDeploymentManager(subnets, groups, instances, records),
	}
}

var app = AppDefinition{Image: "ghcr.io/acme/web:latest", Ports: []int32{80, 8080}, Env: map[string]string{"MODE": "preview"}}

func TestPREnvironmentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env, err := f.prs.Create(ctx, "acme", "42", app, SSHData{PublicKeys: []string{"ssh-ed25519 AAAA dev@acme"}})
	require.NoError(t, err)
	assert.Equal(t, "acme-pr-42", env.Subdomain)
	assert.NotEmpty(t, env.PublicIP)

	rrs, ok := f.r53.Record(f.zoneID, "acme-pr-42.example.com.", r53types.RRTypeA)
	require.True(t, ok)
	assert.Equal(t, env.PublicIP, aws.ToString(rrs.ResourceRecords[0].Value))

	sg, ok := f.ec2.SecurityGroup(env.SecurityGroupID)
	require.True(t, ok)
	var ports []int32
	for _, p := range sg.IpPermissions {
		ports = append(ports, aws.ToInt32(p.FromPort))
	}
	assert.Equal(t, []int32{22, 80, 8080}, ports)

	in, ok := f.ec2.Instance(env.InstanceID)
	require.True(t, ok)
	assert.True(t, tagging.IsOwnedByProjectAndPR(network.FromEC2Tags(in.Tags), "acme", "42"))

	require.NoError(t, f.prs.Destroy(ctx, "acme", "42"))

	_, ok = f.r53.Record(f.zoneID, "acme-pr-42.example.com.", r53types.RRTypeA)
	assert.False(t, ok)
	_, ok = f.ec2.SecurityGroup(env.SecurityGroupID)
	assert.False(t, ok)
	in, _ = f.ec2.Instance(env.InstanceID)
	assert.Equal(t, ec2types.InstanceStateNameTerminated, in.State.Name)
}

func TestPRCreateRequiresProjectSubnet(t *testing.T) {
	f := newFixture(t)

	_, err := f.prs.Create(context.Background(), "globex", "1", app, SSHData{})
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
	assert.Zero(t, f.ec2.Calls("CreateSecurityGroup"))
}

func TestPRCreateRejectsInvalidApp(t *testing.T) {
	f := newFixture(t)

	_, err := f.prs.Create(context.Background(), "acme", "1", AppDefinition{}, SSHData{})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	_, err = f.prs.Create(context.Background(), "acme", "1", AppDefinition{Image: "x", Ports: []int32{0}}, SSHData{})
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	assert.Zero(t, f.ec2.Calls("CreateSecurityGroup"))
}

func TestPRDestroyLeavesOtherPRsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.prs.Create(ctx, "acme", "1", app, SSHData{})
	require.NoError(t, err)
	second, err := f.prs.Create(ctx, "acme", "2", app, SSHData{})
	require.NoError(t, err)

	require.NoError(t, f.prs.Destroy(ctx, "acme", "1"))

	in, _ := f.ec2.Instance(second.InstanceID)
	assert.Equal(t, ec2types.InstanceStateNameRunning, in.State.Name)
	_, ok := f.ec2.SecurityGroup(second.SecurityGroupID)
	assert.True(t, ok)
	_, ok = f.ec2.SecurityGroup(first.SecurityGroupID)
	assert.False(t, ok)
}

func TestPRDestroyProviderErrorVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.prs.Create(ctx, "acme", "3", app, SSHData{})
	require.NoError(t, err)

	boom := awsfake.APIError("RequestLimitExceeded", "throttled")
	f.ec2.Fail("TerminateInstances", boom)
	err = f.prs.Destroy(ctx, "acme", "3")
	assert.Same(t, boom, err)
	assert.Equal(t, 1, f.r53.Calls("ChangeResourceRecordSets"))
}

func TestDeploymentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env, err := f.deps.Create(ctx, "acme", "master", "aaa111", app)
	require.NoError(t, err)
	assert.Equal(t, "acme", env.Subdomain)
	_, ok := f.r53.Record(f.zoneID, "acme.example.com.", r53types.RRTypeA)
	require.True(t, ok)

	in, _ := f.ec2.Instance(env.InstanceID)
	sha, _ := network.FromEC2Tags(in.Tags).Get(tagging.SHATag)
	assert.Equal(t, "aaa111", sha)

	updated, err := f.deps.Update(ctx, "acme", "master", "bbb222", AppDefinition{Image: app.Image, Ports: []int32{80, 9090}})
	require.NoError(t, err)
	assert.NotEqual(t, env.InstanceID, updated.InstanceID)
	assert.Equal(t, env.SecurityGroupID, updated.SecurityGroupID)

	old, _ := f.ec2.Instance(env.InstanceID)
	assert.Equal(t, ec2types.InstanceStateNameTerminated, old.State.Name)
	rrs, ok := f.r53.Record(f.zoneID, "acme.example.com.", r53types.RRTypeA)
	require.True(t, ok)
	assert.Equal(t, updated.PublicIP, aws.ToString(rrs.ResourceRecords[0].Value))

	sg, _ := f.ec2.SecurityGroup(updated.SecurityGroupID)
	assert.Len(t, sg.IpPermissions, 3)

	require.NoError(t, f.deps.Destroy(ctx, "acme", "master"))
	assert.Zero(t, f.r53.Records(f.zoneID))
	_, ok = f.ec2.SecurityGroup(updated.SecurityGroupID)
	assert.False(t, ok)
}

func TestDeploymentUpdateWithoutGroupCreates(t *testing.T) {
	f := newFixture(t)

	env, err := f.deps.Update(context.Background(), "acme", "staging", "ccc333", app)
	require.NoError(t, err)
	assert.Equal(t, "acme-staging", env.Subdomain)
	assert.Equal(t, 1, f.ec2.Calls("CreateSecurityGroup"))
}

func TestDeploymentDestroyWithoutResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.prs.Create(ctx, "acme", "5", app, SSHData{})
	require.NoError(t, err)

	require.NoError(t, f.deps.Destroy(ctx, "acme", "staging"))
	assert.Zero(t, f.ec2.Calls("TerminateInstances"))
	assert.Zero(t, f.ec2.Calls("DeleteSecurityGroup"))
}

func TestUserData(t *testing.T) {
	script, err := UserData(tagging.DeploymentOwner("acme", "staging"), "abc", AppDefinition{
		Image: "nginx:1.27",
		Ports: []int32{80},
		Env:   map[string]string{"B": "2", "A": "it's"},
	}, SSHData{PublicKeys: []string{"ssh-rsa KEY"}})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(script, "#!/bin/bash\n"))
	assert.Contains(t, script, "echo 'ssh-rsa KEY' >> /home/ec2-user/.ssh/authorized_keys")
	assert.Contains(t, script, "-p 80:80 -e 'A=it'\\''s' -e 'B=2' -e 'ENVFORGE_PROJECT=acme' -e 'ENVFORGE_DEPLOYMENT=staging' -e 'ENVFORGE_SHA=abc' 'nginx:1.27'")
}

func TestIngressPorts(t *testing.T) {
	assert.Equal(t, []int32{80}, ingressPorts(AppDefinition{Ports: []int32{80, 80}}, SSHData{}))
	assert.Equal(t, []int32{22, 443}, ingressPorts(AppDefinition{Ports: []int32{443}}, SSHData{PublicKeys: []string{"k"}}))
	assert.Empty(t, ingressPorts(AppDefinition{}, SSHData{}))
}
