package provisioner

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	r53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iac-studio/envforge/internal/environment"
	"github.com/iac-studio/envforge/internal/network"
	"github.com/iac-studio/envforge/internal/repository"
	"github.com/iac-studio/envforge/internal/secrets"
	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/internal/testing/awsfake"
)

const secretTable = "envforge-github-auth-tokens"

type fakeAccount struct {
	ec2     *awsfake.EC2Server
	route53 *awsfake.Route53Server
	ecr     *awsfake.ECRServer
	iam     *awsfake.IAMServer
	dynamo  *awsfake.DynamoDBServer
	zoneID  string
}

func newFakeAccount() *fakeAccount {
	a := &fakeAccount{
		ec2:     awsfake.NewEC2Server(),
		route53: awsfake.NewRoute53Server(),
		ecr:     awsfake.NewECRServer(),
		iam:     awsfake.NewIAMServer(),
		dynamo:  awsfake.NewDynamoDBServer(),
	}
	a.ec2.AddVPC("10.0.0.0/16", network.ToEC2Tags(tagging.Tags{{Key: tagging.MarkerTag, Value: tagging.MarkerValue}})...)
	a.route53.AddZone("unmanaged.org.")
	a.zoneID = a.route53.AddZone("example.com.", r53types.Tag{Key: aws.String(tagging.MarkerTag), Value: aws.String(tagging.MarkerValue)})
	a.dynamo.CreateTable(secretTable, repository.ProjectNameAttr)
	return a
}

func (a *fakeAccount) orchestrator(t *testing.T) (*Orchestrator, *repository.WebhookSecrets) {
	t.Helper()
	store := repository.NewWebhookSecrets(repository.NewDynamoItemStore(a.dynamo), secretTable)
	o := NewForAWS(APIs{EC2: a.ec2, Route53: a.route53, ECR: a.ecr, IAM: a.iam}, store,
		[]network.InstanceOption{network.WithImage("ami-0123456789")})
	require.NoError(t, o.Resolve(context.Background()))
	return o, store
}

func TestProjectLifecycleOnFakeAccount(t *testing.T) {
	a := newFakeAccount()
	o, _ := a.orchestrator(t)
	ctx := context.Background()

	b, err := o.Binding()
	require.NoError(t, err)
	assert.Equal(t, "/hostedzone/"+a.zoneID, b.HostedZoneID)
	assert.Equal(t, "10.0.0.0/16", b.VPCCIDR)

	p, err := o.Create(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, p.Credentials)
	assert.NotEmpty(t, p.Credentials.AccessKeyID)
	assert.Equal(t, "10.0.0.0/24", p.CIDR)
	assert.Equal(t, b.VPCID, p.VPCID)

	again, err := o.FindOrCreateProject(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, p.SubnetID, again.SubnetID)
	assert.Nil(t, again.Credentials)

	_, err = o.Create(ctx, "globex")
	require.NoError(t, err)
	ids, err := o.ListProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, ids)

	app := environment.AppDefinition{Image: "nginx:1.27", Ports: []int32{80}}
	env, err := o.CreatePR(ctx, "acme", "7", app, environment.SSHData{})
	require.NoError(t, err)
	_, ok := a.route53.Record(a.zoneID, "acme-pr-7.example.com.", r53types.RRTypeA)
	assert.True(t, ok)

	d, err := o.DescribeProject(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, d.OpenPRs)

	err = o.Destroy(ctx, "acme")
	require.ErrorIs(t, err, ErrOpenPullRequests)
	_, still := a.ec2.Subnet(p.SubnetID)
	assert.True(t, still)

	require.NoError(t, o.DestroyPR(ctx, "acme", env.PR))
	require.NoError(t, o.Destroy(ctx, "acme"))
	_, still = a.ec2.Subnet(p.SubnetID)
	assert.False(t, still)

	ids, err = o.ListProjects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"globex"}, ids)
}

func TestEnsureReusesProjectACLOnFakeAccount(t *testing.T) {
	a := newFakeAccount()
	o, _ := a.orchestrator(t)
	ctx := context.Background()

	_, err := o.Create(ctx, "acme")
	require.NoError(t, err)

	app := environment.AppDefinition{Image: "nginx:1.27", Ports: []int32{80}}
	_, err = o.CreateDeployment(ctx, "acme", "master", "aaa111", app)
	require.NoError(t, err)
	for _, sha := range []string{"bbb222", "ccc333"} {
		_, err = o.UpdateDeployment(ctx, "acme", "master", sha, app)
		require.NoError(t, err)
	}

	b, err := o.Binding()
	require.NoError(t, err)
	managed, err := network.NewACLManager(a.ec2, b.VPCID).Describe(ctx)
	require.NoError(t, err)
	assert.Len(t, managed, 1)
	assert.Equal(t, 1, a.ec2.Calls("CreateNetworkAcl"))
}

func TestDestroyForeignProjectOnFakeAccount(t *testing.T) {
	a := newFakeAccount()
	o, _ := a.orchestrator(t)

	err := o.Destroy(context.Background(), "nobody")
	require.ErrorIs(t, err, tagging.ErrNotOwned)
	assert.Zero(t, a.ec2.Calls("DeleteSubnet"))
	assert.Zero(t, a.ec2.Calls("DeleteNetworkAcl"))
}

func TestWebhookSecretOnFakeAccount(t *testing.T) {
	a := newFakeAccount()
	o, store := a.orchestrator(t)
	ctx := context.Background()

	first, err := o.InitializeWebhookSecret(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, first, secrets.EncodedLen(secrets.SecretBytes))

	second, err := o.InitializeWebhookSecret(ctx, "acme")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	stored, err := store.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, second, stored)
	assert.Equal(t, 1, a.dynamo.Len(secretTable))
}

func TestDestroyRefusesRunningDeploymentOnFakeAccount(t *testing.T) {
	a := newFakeAccount()
	o, _ := a.orchestrator(t)
	ctx := context.Background()

	p, err := o.Create(ctx, "acme")
	require.NoError(t, err)
	app := environment.AppDefinition{Image: "nginx:1.27", Ports: []int32{80}}
	_, err = o.CreateDeployment(ctx, "acme", "master", "aaa111", app)
	require.NoError(t, err)

	require.ErrorIs(t, o.Destroy(ctx, "acme"), ErrLiveDeployments)
	assert.Zero(t, a.ec2.Calls("DeleteSubnet"))

	require.NoError(t, o.DestroyDeployment(ctx, "acme", "master"))
	require.NoError(t, o.Destroy(ctx, "acme"))
	_, still := a.ec2.Subnet(p.SubnetID)
	assert.False(t, still)
}
