package tagging

import (
	"errors"
	"fmt"
)

// ErrNotOwned is matched by every OwnershipError.
var ErrNotOwned = errors.New("resource not owned")

// OwnershipError reports that no managed resource carrying the caller's
// identity exists. It is returned alike for a missing resource and for a
// tag mismatch so callers cannot probe tags.
type OwnershipError struct {
	Label      string
	ProjectID  string
	PR         string
	Deployment string
	ResourceID string
}

func (e *OwnershipError) Error() string {
	msg := fmt.Sprintf("no managed %s available for destruction for project %q", e.Label, e.ProjectID)
	if e.ResourceID != "" {
		msg += fmt.Sprintf(" id %q", e.ResourceID)
	}
	switch {
	case e.PR != "":
		msg += fmt.Sprintf(" pr %q", e.PR)
	case e.Deployment != "":
		msg += fmt.Sprintf(" deployment %q", e.Deployment)
	}
	return msg
}

func (e *OwnershipError) Unwrap() error { return ErrNotOwned }

// NewOwnershipError builds the error returned by AssertOwned.
func NewOwnershipError(o Owner, label, resourceID string) *OwnershipError {
	return &OwnershipError{
		Label:      label,
		ProjectID:  o.ProjectID,
		PR:         o.PR,
		Deployment: o.Deployment,
		ResourceID: resourceID,
	}
}

// IsOwnedByProject is true iff some tag carries the project key with a
// value equal to projectID.
func IsOwnedByProject(tags Tags, projectID string) bool {
	for _, t := range tags {
		if t.Key == ProjectTag && t.Value == projectID {
			return true
		}
	}
	return false
}

// IsOwnedByProjectAndPR is true iff both the project and the PR tags match.
func IsOwnedByProjectAndPR(tags Tags, projectID, pr string) bool {
	return IsOwnedByProject(tags, projectID) && hasTag(tags, PRTag, pr)
}

// IsOwnedByProjectAndDeployment is true iff both the project and the
// deployment tags match.
func IsOwnedByProjectAndDeployment(tags Tags, projectID, name string) bool {
	return IsOwnedByProject(tags, projectID) && hasTag(tags, DeploymentTag, name)
}

// IsMarked reports whether the resource carries the managed marker.
func IsMarked(tags Tags) bool {
	return hasTag(tags, MarkerTag, MarkerValue)
}

// IsOwnedBy checks the full tag set of o against tags: the marker, the
// project and, when o names one, the PR or deployment.
func IsOwnedBy(tags Tags, o Owner) bool {
	if o.ProjectID == "" || !IsMarked(tags) {
		return false
	}
	switch {
	case o.PR != "":
		return IsOwnedByProjectAndPR(tags, o.ProjectID, o.PR)
	case o.Deployment != "":
		return IsOwnedByProjectAndDeployment(tags, o.ProjectID, o.Deployment)
	default:
		return IsOwnedByProject(tags, o.ProjectID)
	}
}

// AssertOwned is the gate in front of every destructive call. It returns an
// *OwnershipError unless tags prove that o owns the resource.
func AssertOwned(tags Tags, o Owner, label, resourceID string) error {
	if IsOwnedBy(tags, o) {
		return nil
	}
	return NewOwnershipError(o, label, resourceID)
}

func hasTag(tags Tags, key, value string) bool {
	for _, t := range tags {
		if t.Key == key && t.Value == value {
			return true
		}
	}
	return false
}
