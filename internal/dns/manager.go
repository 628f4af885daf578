package dns

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

// DefaultTTL is the TTL of every record unless WithTTL overrides it.
const DefaultTTL int64 = 60

// Change actions accepted by BuildChangeBatch.
const (
	ActionCreate = string(types.ChangeActionCreate)
	ActionDelete = string(types.ChangeActionDelete)
)

// ChangeOption adjusts a change request after it has been built.
type ChangeOption func(*route53.ChangeResourceRecordSetsInput)

// WithComment sets the change batch comment.
func WithComment(comment string) ChangeOption {
	return func(in *route53.ChangeResourceRecordSetsInput) {
		in.ChangeBatch.Comment = aws.String(comment)
	}
}

// WithTTL overrides the record TTL.
func WithTTL(seconds int64) ChangeOption {
	return func(in *route53.ChangeResourceRecordSetsInput) {
		for _, c := range in.ChangeBatch.Changes {
			c.ResourceRecordSet.TTL = aws.Int64(seconds)
		}
	}
}

// WithHostedZoneID sends the change to another zone.
func WithHostedZoneID(id string) ChangeOption {
	return func(in *route53.ChangeResourceRecordSetsInput) {
		in.HostedZoneId = aws.String(id)
	}
}

// Manager creates and deletes environment records in one hosted zone.
type Manager struct {
	client Route53API
	zoneID string
}

func NewManager(client Route53API, zoneID string) *Manager {
	return &Manager{client: client, zoneID: zoneID}
}

// ZoneID returns the hosted zone the manager is bound to.
func (m *Manager) ZoneID() string { return m.zoneID }

// FindTopLevelDomain returns the name of the bound hosted zone. It asks
// Route 53 every time.
func (m *Manager) FindTopLevelDomain(ctx context.Context) (string, error) {
	out, err := m.client.GetHostedZone(ctx, &route53.GetHostedZoneInput{Id: aws.String(m.zoneID)})
	if err != nil {
		return "", err
	}
	if out.HostedZone == nil || aws.ToString(out.HostedZone.Name) == "" {
		return "", appErr.Newf(appErr.CodeNotFound, "hosted zone %s has no name", m.zoneID)
	}
	return aws.ToString(out.HostedZone.Name), nil
}

// BuildChangeBatch builds a request holding a single change of one A
// record, <domain>.<tld> -> ip. Options are applied last.
func (m *Manager) BuildChangeBatch(action, domain, ip, tld string, opts ...ChangeOption) (*route53.ChangeResourceRecordSetsInput, error) {
	if action != ActionCreate && action != ActionDelete {
		return nil, appErr.Newf(appErr.CodeFailedPrecondition,
			"route53: invalid change action %q, must be one of %s, %s", action, ActionCreate, ActionDelete)
	}
	if strings.TrimSpace(domain) == "" || strings.TrimSpace(tld) == "" {
		return nil, appErr.New(appErr.CodeInvalid, "route53: record name requires a domain and a top level domain")
	}
	rrs, err := newRecordSet(domain+"."+tld, string(types.RRTypeA), ip)
	if err != nil {
		return nil, err
	}

	in := &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(m.zoneID),
		ChangeBatch: &types.ChangeBatch{
			Changes: []types.Change{{
				Action:            types.ChangeAction(action),
				ResourceRecordSet: rrs,
			}},
		},
	}
	for _, o := range opts {
		o(in)
	}
	return in, nil
}

// ValidateRecordType returns t as a Route 53 record type or fails.
func ValidateRecordType(t string) (types.RRType, error) {
	for _, v := range types.RRType("").Values() {
		if string(v) == t {
			return v, nil
		}
	}
	return "", appErr.Newf(appErr.CodeInvalid, "route53: unsupported record type %q", t)
}

func newRecordSet(name, recordType, value string) (*types.ResourceRecordSet, error) {
	rt, err := ValidateRecordType(recordType)
	if err != nil {
		return nil, err
	}
	if value == "" {
		return nil, appErr.New(appErr.CodeInvalid, "route53: record value is required")
	}
	return &types.ResourceRecordSet{
		Name:            aws.String(name),
		Type:            rt,
		TTL:             aws.Int64(DefaultTTL),
		ResourceRecords: []types.ResourceRecord{{Value: aws.String(value)}},
	}, nil
}

// CreatePRRecord points <pid>-pr-<pr>.<tld> at ip.
func (m *Manager) CreatePRRecord(ctx context.Context, projectID, pr, ip string, opts ...ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error) {
	sub, err := tagging.PRSubdomain(projectID, pr)
	if err != nil {
		return nil, err
	}
	return m.change(ctx, ActionCreate, sub, ip, opts)
}

// DestroyPRRecord deletes the record made by CreatePRRecord.
func (m *Manager) DestroyPRRecord(ctx context.Context, projectID, pr, ip string, opts ...ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error) {
	sub, err := tagging.PRSubdomain(projectID, pr)
	if err != nil {
		return nil, err
	}
	return m.change(ctx, ActionDelete, sub, ip, opts)
}

// CreateDeploymentRecord points the deployment subdomain at ip.
func (m *Manager) CreateDeploymentRecord(ctx context.Context, projectID, deployment, ip string, opts ...ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error) {
	sub, err := tagging.DeploymentSubdomain(projectID, deployment)
	if err != nil {
		return nil, err
	}
	return m.change(ctx, ActionCreate, sub, ip, opts)
}

// DestroyDeploymentRecord deletes the record made by CreateDeploymentRecord.
func (m *Manager) DestroyDeploymentRecord(ctx context.Context, projectID, deployment, ip string, opts ...ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error) {
	sub, err := tagging.DeploymentSubdomain(projectID, deployment)
	if err != nil {
		return nil, err
	}
	return m.change(ctx, ActionDelete, sub, ip, opts)
}

func (m *Manager) change(ctx context.Context, action, subdomain, ip string, opts []ChangeOption) (*route53.ChangeResourceRecordSetsOutput, error) {
	tld, err := m.FindTopLevelDomain(ctx)
	if err != nil {
		return nil, err
	}
	in, err := m.BuildChangeBatch(action, subdomain, ip, tld, opts...)
	if err != nil {
		return nil, err
	}
	out, err := m.client.ChangeResourceRecordSets(ctx, in)
	if err != nil {
		return nil, err
	}
	logger.L().Info("dns record changed",
		zap.String("action", action),
		zap.String("name", subdomain+"."+tld),
		zap.String("ip", ip))
	return out, nil
}
