package dns

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/stretchr/testify/require"

	"github.com/iac-studio/envforge/internal/tagging"
	"github.com/iac-studio/envforge/internal/testing/awsfake"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

func TestMain(m *testing.M) {
	_, _ = logger.Init("error", "json")
	os.Exit(m.Run())
}

func marker() types.Tag {
	return types.Tag{Key: aws.String(tagging.MarkerTag), Value: aws.String(tagging.MarkerValue)}
}

func managedZone(t *testing.T) (*awsfake.Route53Server, *Manager) {
	t.Helper()
	srv := awsfake.NewRoute53Server()
	id := srv.AddZone("example.com.", marker())
	return srv, NewManager(srv, ZonePrefix+id)
}

func TestBuildChangeBatch(t *testing.T) {
	m := NewManager(nil, "/hostedzone/Z1")

	in, err := m.BuildChangeBatch(ActionCreate, "acme-pr-1", "203.0.113.7", "example.com.")
	require.NoError(t, err)
	require.Equal(t, "/hostedzone/Z1", aws.ToString(in.HostedZoneId))
	require.Len(t, in.ChangeBatch.Changes, 1)

	c := in.ChangeBatch.Changes[0]
	require.Equal(t, types.ChangeActionCreate, c.Action)
	require.Equal(t, "acme-pr-1.example.com.", aws.ToString(c.ResourceRecordSet.Name))
	require.Equal(t, types.RRTypeA, c.ResourceRecordSet.Type)
	require.Equal(t, DefaultTTL, aws.ToInt64(c.ResourceRecordSet.TTL))
	require.Equal(t, "203.0.113.7", aws.ToString(c.ResourceRecordSet.ResourceRecords[0].Value))
}

func TestBuildChangeBatchOptions(t *testing.T) {
	m := NewManager(nil, "/hostedzone/Z1")

	in, err := m.BuildChangeBatch(ActionDelete, "acme", "203.0.113.7", "example.com",
		WithComment("teardown"), WithTTL(300), WithHostedZoneID("/hostedzone/Z2"))
	require.NoError(t, err)
	require.Equal(t, "/hostedzone/Z2", aws.ToString(in.HostedZoneId))
	require.Equal(t, "teardown", aws.ToString(in.ChangeBatch.Comment))
	require.Equal(t, int64(300), aws.ToInt64(in.ChangeBatch.Changes[0].ResourceRecordSet.TTL))
	require.Equal(t, types.ChangeActionDelete, in.ChangeBatch.Changes[0].Action)
}

func TestBuildChangeBatchIsFreshPerCall(t *testing.T) {
	m := NewManager(nil, "/hostedzone/Z1")

	a, err := m.BuildChangeBatch(ActionCreate, "a", "203.0.113.1", "example.com", WithComment("a"))
	require.NoError(t, err)
	b, err := m.BuildChangeBatch(ActionCreate, "b", "203.0.113.2", "example.com")
	require.NoError(t, err)
	require.NotSame(t, a.ChangeBatch, b.ChangeBatch)
	require.Nil(t, b.ChangeBatch.Comment)
}

func TestBuildChangeBatchRejectsUnknownAction(t *testing.T) {
	m := NewManager(nil, "/hostedzone/Z1")

	for _, action := range []string{"UPSERT", "create", "", "DROP"} {
		_, err := m.BuildChangeBatch(action, "acme", "203.0.113.7", "example.com")
		require.Error(t, err, action)
		require.True(t, appErr.IsCode(err, appErr.CodeFailedPrecondition), action)
	}
}

func TestBuildChangeBatchRejectsMissingParts(t *testing.T) {
	m := NewManager(nil, "/hostedzone/Z1")

	_, err := m.BuildChangeBatch(ActionCreate, "", "203.0.113.7", "example.com")
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	_, err = m.BuildChangeBatch(ActionCreate, "acme", "203.0.113.7", "")
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	_, err = m.BuildChangeBatch(ActionCreate, "acme", "", "example.com")
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestValidateRecordType(t *testing.T) {
	rt, err := ValidateRecordType("A")
	require.NoError(t, err)
	require.Equal(t, types.RRTypeA, rt)

	rt, err = ValidateRecordType("CNAME")
	require.NoError(t, err)
	require.Equal(t, types.RRTypeCname, rt)

	_, err = ValidateRecordType("BOGUS")
	require.Error(t, err)

	_, err = ValidateRecordType("a")
	require.Error(t, err)
}

func TestFindTopLevelDomain(t *testing.T) {
	srv, m := managedZone(t)

	tld, err := m.FindTopLevelDomain(context.Background())
	require.NoError(t, err)
	require.Equal(t, "example.com.", tld)

	_, err = m.FindTopLevelDomain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, srv.Calls("GetHostedZone"))
}

func TestPRRecordLifecycle(t *testing.T) {
	srv, m := managedZone(t)
	ctx := context.Background()

	_, err := m.CreatePRRecord(ctx, "acme", "12", "203.0.113.9")
	require.NoError(t, err)

	rrs, ok := srv.Record(m.ZoneID(), "acme-pr-12.example.com.", types.RRTypeA)
	require.True(t, ok)
	require.Equal(t, "203.0.113.9", aws.ToString(rrs.ResourceRecords[0].Value))

	_, err = m.DestroyPRRecord(ctx, "acme", "12", "203.0.113.9")
	require.NoError(t, err)
	require.Zero(t, srv.Records(m.ZoneID()))
}

func TestDeploymentRecordLifecycle(t *testing.T) {
	srv, m := managedZone(t)
	ctx := context.Background()

	_, err := m.CreateDeploymentRecord(ctx, "acme", "master", "203.0.113.10")
	require.NoError(t, err)
	_, err = m.CreateDeploymentRecord(ctx, "acme", "staging", "203.0.113.11")
	require.NoError(t, err)

	_, ok := srv.Record(m.ZoneID(), "acme.example.com.", types.RRTypeA)
	require.True(t, ok)
	_, ok = srv.Record(m.ZoneID(), "acme-staging.example.com.", types.RRTypeA)
	require.True(t, ok)

	_, err = m.DestroyDeploymentRecord(ctx, "acme", "staging", "203.0.113.11")
	require.NoError(t, err)
	require.Equal(t, 1, srv.Records(m.ZoneID()))
}

func TestRecordProviderErrorIsVerbatim(t *testing.T) {
	srv, m := managedZone(t)
	boom := awsfake.APIError("Throttling", "rate exceeded")
	srv.Fail("ChangeResourceRecordSets", boom)

	_, err := m.CreatePRRecord(context.Background(), "acme", "1", "203.0.113.1")
	require.Equal(t, boom, err)
}

func TestRecordRejectsBadOwner(t *testing.T) {
	srv, m := managedZone(t)

	_, err := m.CreatePRRecord(context.Background(), "", "1", "203.0.113.1")
	require.Error(t, err)
	require.Zero(t, srv.Calls("GetHostedZone"))
}

func TestFindHostedZoneID(t *testing.T) {
	srv := awsfake.NewRoute53Server()
	srv.AddZone("other.com.")
	id := srv.AddZone("example.com.", marker())

	got, err := FindHostedZoneID(context.Background(), srv)
	require.NoError(t, err)
	require.Equal(t, "/hostedzone/"+id, got)
}

func TestFindHostedZoneIDNoZones(t *testing.T) {
	srv := awsfake.NewRoute53Server()

	_, err := FindHostedZoneID(context.Background(), srv)
	require.ErrorIs(t, err, ErrNoHostedZones)
	require.Zero(t, srv.Calls("ListTagsForResources"))
}

func TestFindHostedZoneIDNoManagedZone(t *testing.T) {
	srv := awsfake.NewRoute53Server()
	srv.AddZone("a.com.")
	srv.AddZone("b.com.", types.Tag{Key: aws.String("team"), Value: aws.String("web")})

	_, err := FindHostedZoneID(context.Background(), srv)
	require.ErrorIs(t, err, ErrNoManagedZone)
}

func TestFindHostedZoneIDFirstMatchWins(t *testing.T) {
	srv := awsfake.NewRoute53Server()
	first := srv.AddZone("first.com.", marker())
	srv.AddZone("second.com.", marker())

	got, err := FindHostedZoneID(context.Background(), srv)
	require.NoError(t, err)
	require.Equal(t, "/hostedzone/"+first, got)
}

func TestFindHostedZoneIDBatchesTagLookups(t *testing.T) {
	srv := awsfake.NewRoute53Server()
	for i := 0; i < 23; i++ {
		srv.AddZone(fmt.Sprintf("z%d.com.", i))
	}
	last := srv.AddZone("managed.com.", marker())

	got, err := FindHostedZoneID(context.Background(), srv)
	require.NoError(t, err)
	require.Equal(t, "/hostedzone/"+last, got)
	require.Equal(t, 3, srv.Calls("ListTagsForResources"))
}

func TestBareZoneID(t *testing.T) {
	require.Equal(t, "Z1", BareZoneID("/hostedzone/Z1"))
	require.Equal(t, "Z1", BareZoneID("Z1"))
}
