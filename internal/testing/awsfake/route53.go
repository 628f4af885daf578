package awsfake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
)

const maxTagResources = 10

// Route53Server implements a Route 53 simulator holding hosted zones,
// their tags and their record sets.
type Route53Server struct {
	ops

	mu      sync.Mutex
	seq     idSeq
	order   []string
	zones   map[string]*types.HostedZone
	tags    map[string][]types.Tag
	records map[string]map[string]types.ResourceRecordSet
}

func NewRoute53Server() *Route53Server {
	srv := &Route53Server{}
	srv.Reset()
	return srv
}

func (s *Route53Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetOps()
	s.seq = idSeq{}
	s.order = nil
	s.zones = make(map[string]*types.HostedZone)
	s.tags = make(map[string][]types.Tag)
	s.records = make(map[string]map[string]types.ResourceRecordSet)
}

// AddZone registers a hosted zone and returns its bare id.
func (s *Route53Server) AddZone(name string, tags ...types.Tag) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.ToUpper(strings.ReplaceAll(s.seq.next("z"), "-", ""))
	s.order = append(s.order, id)
	s.zones[id] = &types.HostedZone{
		Id:              aws.String("/hostedzone/" + id),
		Name:            aws.String(name),
		CallerReference: aws.String(id),
	}
	s.tags[id] = tags
	s.records[id] = make(map[string]types.ResourceRecordSet)
	return id
}

// Record returns the record set name/type in zone id.
func (s *Route53Server) Record(zoneID, name string, rrType types.RRType) (types.ResourceRecordSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rrs, ok := s.records[bareID(zoneID)][recordKey(name, rrType)]
	return rrs, ok
}

// Records returns how many record sets zone id holds.
func (s *Route53Server) Records(zoneID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[bareID(zoneID)])
}

func (s *Route53Server) GetHostedZone(
	ctx context.Context,
	input *route53.GetHostedZoneInput,
	opts ...func(*route53.Options),
) (*route53.GetHostedZoneOutput, error) {
	if err := s.enter("GetHostedZone"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[bareID(aws.ToString(input.Id))]
	if !ok {
		return nil, &types.NoSuchHostedZone{Message: aws.String("no hosted zone " + aws.ToString(input.Id))}
	}
	cp := *z
	return &route53.GetHostedZoneOutput{HostedZone: &cp}, nil
}

func (s *Route53Server) ListHostedZones(
	ctx context.Context,
	input *route53.ListHostedZonesInput,
	opts ...func(*route53.Options),
) (*route53.ListHostedZonesOutput, error) {
	if err := s.enter("ListHostedZones"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &route53.ListHostedZonesOutput{}
	for _, id := range s.order {
		out.HostedZones = append(out.HostedZones, *s.zones[id])
	}
	return out, nil
}

func (s *Route53Server) ListTagsForResources(
	ctx context.Context,
	input *route53.ListTagsForResourcesInput,
	opts ...func(*route53.Options),
) (*route53.ListTagsForResourcesOutput, error) {
	if err := s.enter("ListTagsForResources"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(input.ResourceIds) > maxTagResources {
		return nil, &types.InvalidInput{Message: aws.String("at most 10 resource ids per request")}
	}
	if input.ResourceType != types.TagResourceTypeHostedzone {
		return nil, &types.InvalidInput{Message: aws.String("unsupported resource type")}
	}
	out := &route53.ListTagsForResourcesOutput{}
	for _, id := range input.ResourceIds {
		if _, ok := s.zones[id]; !ok {
			return nil, &types.NoSuchHostedZone{Message: aws.String("no hosted zone " + id)}
		}
		out.ResourceTagSets = append(out.ResourceTagSets, types.ResourceTagSet{
			ResourceId:   aws.String(id),
			ResourceType: types.TagResourceTypeHostedzone,
			Tags:         s.tags[id],
		})
	}
	return out, nil
}

func (s *Route53Server) ChangeResourceRecordSets(
	ctx context.Context,
	input *route53.ChangeResourceRecordSetsInput,
	opts ...func(*route53.Options),
) (*route53.ChangeResourceRecordSetsOutput, error) {
	if err := s.enter("ChangeResourceRecordSets"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	zone := bareID(aws.ToString(input.HostedZoneId))
	records, ok := s.records[zone]
	if !ok {
		return nil, &types.NoSuchHostedZone{Message: aws.String("no hosted zone " + zone)}
	}
	if input.ChangeBatch == nil || len(input.ChangeBatch.Changes) == 0 {
		return nil, &types.InvalidInput{Message: aws.String("empty change batch")}
	}
	for _, c := range input.ChangeBatch.Changes {
		rrs := c.ResourceRecordSet
		key := recordKey(aws.ToString(rrs.Name), rrs.Type)
		switch c.Action {
		case types.ChangeActionCreate:
			if _, exists := records[key]; exists {
				return nil, &types.InvalidChangeBatch{Message: aws.String("record " + key + " already exists")}
			}
			records[key] = *rrs
		case types.ChangeActionDelete:
			if _, exists := records[key]; !exists {
				return nil, &types.InvalidChangeBatch{Message: aws.String("record " + key + " not found")}
			}
			delete(records, key)
		case types.ChangeActionUpsert:
			records[key] = *rrs
		default:
			return nil, &types.InvalidInput{Message: aws.String("unknown action " + string(c.Action))}
		}
	}
	return &route53.ChangeResourceRecordSetsOutput{
		ChangeInfo: &types.ChangeInfo{
			Id:          aws.String("/change/" + s.seq.next("c")),
			Status:      types.ChangeStatusInsync,
			SubmittedAt: aws.Time(time.Now()),
			Comment:     input.ChangeBatch.Comment,
		},
	}, nil
}

func bareID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func recordKey(name string, t types.RRType) string {
	return strings.TrimSuffix(strings.ToLower(name), ".") + "|" + string(t)
}
