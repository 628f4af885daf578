package network

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/iac-studio/envforge/internal/tagging"
)

func filter(name string, values ...string) types.Filter {
	return types.Filter{Name: aws.String(name), Values: values}
}

func vpcFilter(vpcID string) types.Filter { return filter("vpc-id", vpcID) }

func tagFilter(key, value string) types.Filter { return filter("tag:"+key, value) }

func markerFilter() types.Filter { return tagFilter(tagging.MarkerTag, tagging.MarkerValue) }

// ownerFilters narrows a describe call to resources tagged for o.
func ownerFilters(o tagging.Owner) []types.Filter {
	filters := []types.Filter{markerFilter(), tagFilter(tagging.ProjectTag, o.ProjectID)}
	switch {
	case o.PR != "":
		filters = append(filters, tagFilter(tagging.PRTag, o.PR))
	case o.Deployment != "":
		filters = append(filters, tagFilter(tagging.DeploymentTag, o.Deployment))
	}
	return filters
}

// ToEC2Tags converts a tag set to the EC2 representation.
func ToEC2Tags(tags tagging.Tags) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, types.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return out
}

// FromEC2Tags converts EC2 tags to a tag set.
func FromEC2Tags(tags []types.Tag) tagging.Tags {
	out := make(tagging.Tags, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagging.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return out
}

func tagSpec(rt types.ResourceType, tags tagging.Tags) []types.TagSpecification {
	return []types.TagSpecification{{ResourceType: rt, Tags: ToEC2Tags(tags)}}
}

// nameTag is the console "Name" tag appended after the ownership tags.
func nameTag(name string) tagging.Tag { return tagging.Tag{Key: "Name", Value: name} }
