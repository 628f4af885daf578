// Package tagging derives the names and tag sets that bind cloud resources
// to a project and to one of its pull requests or deployments, and decides
// whether a tag set proves that binding.
package tagging

import (
	"strings"

	"github.com/iac-studio/envforge/pkg/errors"
)

// Tag keys written on every managed resource.
const (
	MarkerTag     = "envforge:managed"
	ProjectTag    = "envforge:project"
	PRTag         = "envforge:pr"
	DeploymentTag = "envforge:deployment"
	SHATag        = "envforge:sha"

	MarkerValue = "true"
)

// DefaultDeployment is the deployment served on the bare project subdomain.
const DefaultDeployment = "master"

// Tag is a provider-neutral key/value pair.
type Tag struct {
	Key   string
	Value string
}

// Tags is an ordered tag collection.
type Tags []Tag

// Get returns the value of key and whether it was present.
func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// Owner identifies the tenant a resource belongs to: a project, optionally
// narrowed to one pull request or one deployment.
type Owner struct {
	ProjectID  string
	PR         string
	Deployment string
}

// ProjectOwner is the owner of project-level resources.
func ProjectOwner(projectID string) Owner { return Owner{ProjectID: projectID} }

// PROwner is the owner of resources scoped to one pull request.
func PROwner(projectID, pr string) Owner { return Owner{ProjectID: projectID, PR: pr} }

// DeploymentOwner is the owner of resources scoped to one deployment.
func DeploymentOwner(projectID, name string) Owner {
	return Owner{ProjectID: projectID, Deployment: name}
}

// Validate rejects owners that cannot produce a stable identifier.
func (o Owner) Validate() error {
	if strings.TrimSpace(o.ProjectID) == "" {
		return errors.New(errors.CodeInvalid, "project id is required")
	}
	if strings.Contains(o.ProjectID, separator) {
		return errors.Newf(errors.CodeInvalid, "project id %q must not contain %q", o.ProjectID, separator)
	}
	if o.PR != "" && o.Deployment != "" {
		return errors.New(errors.CodeInvalid, "owner cannot be both a pull request and a deployment")
	}
	if strings.Contains(o.PR, separator) || strings.Contains(o.Deployment, separator) {
		return errors.Newf(errors.CodeInvalid, "pr/deployment must not contain %q", separator)
	}
	return nil
}

// Tags returns the canonical tag set for the owner: marker, project, then
// the PR or deployment tag when set.
func (o Owner) Tags() Tags {
	tags := Tags{
		{Key: MarkerTag, Value: MarkerValue},
		{Key: ProjectTag, Value: o.ProjectID},
	}
	switch {
	case o.PR != "":
		tags = append(tags, Tag{Key: PRTag, Value: o.PR})
	case o.Deployment != "":
		tags = append(tags, Tag{Key: DeploymentTag, Value: o.Deployment})
	}
	return tags
}

// String renders the owner for logs and error messages.
func (o Owner) String() string {
	switch {
	case o.PR != "":
		return "project " + o.ProjectID + " pr " + o.PR
	case o.Deployment != "":
		return "project " + o.ProjectID + " deployment " + o.Deployment
	default:
		return "project " + o.ProjectID
	}
}
