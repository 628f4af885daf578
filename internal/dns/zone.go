package dns

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"

	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// ZonePrefix is prepended to bare hosted zone ids.
const ZonePrefix = "/hostedzone/"

// ListTagsForResources accepts at most this many ids per call.
const tagBatchSize = 10

var (
	ErrNoHostedZones = appErr.New(appErr.CodeNotFound, "route53: no hosted zones found")
	ErrNoManagedZone = appErr.New(appErr.CodeNotFound, "route53: no managed hosted zone found")
)

// FindHostedZoneID returns the prefixed id of the first hosted zone that
// carries the managed marker tag.
func FindHostedZoneID(ctx context.Context, client Route53API) (string, error) {
	var ids []string
	p := route53.NewListHostedZonesPaginator(client, &route53.ListHostedZonesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", err
		}
		for _, z := range page.HostedZones {
			ids = append(ids, BareZoneID(aws.ToString(z.Id)))
		}
	}
	if len(ids) == 0 {
		return "", ErrNoHostedZones
	}

	for start := 0; start < len(ids); start += tagBatchSize {
		end := min(start+tagBatchSize, len(ids))
		out, err := client.ListTagsForResources(ctx, &route53.ListTagsForResourcesInput{
			ResourceType: types.TagResourceTypeHostedzone,
			ResourceIds:  ids[start:end],
		})
		if err != nil {
			return "", err
		}
		if id := firstMarked(ids[start:end], out.ResourceTagSets); id != "" {
			return ZonePrefix + id, nil
		}
	}
	return "", ErrNoManagedZone
}

// firstMarked walks ids in listing order so the first tagged zone wins.
func firstMarked(ids []string, sets []types.ResourceTagSet) string {
	marked := make(map[string]bool, len(sets))
	for _, set := range sets {
		for _, t := range set.Tags {
			if aws.ToString(t.Key) == tagging.MarkerTag {
				marked[BareZoneID(aws.ToString(set.ResourceId))] = true
			}
		}
	}
	for _, id := range ids {
		if marked[id] {
			return id
		}
	}
	return ""
}

// BareZoneID strips any path from a hosted zone id.
func BareZoneID(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}
