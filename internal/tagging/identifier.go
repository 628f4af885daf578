package tagging

import (
	"strings"

	"github.com/iac-studio/envforge/pkg/errors"
)

const (
	ridPrefix     = "ef"
	separator     = "--"
	segProject    = "pid-"
	segPR         = "pr-"
	segDeployment = "deployment-"
)

// ResourceID derives the deterministic name of the owner's resources. The
// same owner always yields the same identifier, which is what makes
// find-by-name lookups possible.
//
//	ef--pid-acme
//	ef--pid-acme--pr-42
//	ef--pid-acme--deployment-staging
func ResourceID(o Owner) (string, error) {
	if err := o.Validate(); err != nil {
		return "", err
	}
	parts := []string{ridPrefix, segProject + o.ProjectID}
	switch {
	case o.PR != "":
		parts = append(parts, segPR+o.PR)
	case o.Deployment != "":
		parts = append(parts, segDeployment+o.Deployment)
	}
	return strings.Join(parts, separator), nil
}

// ParseResourceID is the inverse of ResourceID.
func ParseResourceID(rid string) (Owner, error) {
	parts := strings.Split(rid, separator)
	if len(parts) < 2 || parts[0] != ridPrefix {
		return Owner{}, errors.Newf(errors.CodeInvalid, "%q is not an envforge resource id", rid)
	}
	var o Owner
	for _, p := range parts[1:] {
		switch {
		case strings.HasPrefix(p, segProject):
			o.ProjectID = strings.TrimPrefix(p, segProject)
		case strings.HasPrefix(p, segPR):
			o.PR = strings.TrimPrefix(p, segPR)
		case strings.HasPrefix(p, segDeployment):
			o.Deployment = strings.TrimPrefix(p, segDeployment)
		default:
			return Owner{}, errors.Newf(errors.CodeInvalid, "unknown segment %q in resource id %q", p, rid)
		}
	}
	if err := o.Validate(); err != nil {
		return Owner{}, err
	}
	return o, nil
}

// PRSubdomain is the DNS label serving a pull request environment.
func PRSubdomain(projectID, pr string) (string, error) {
	if projectID == "" || pr == "" {
		return "", errors.New(errors.CodeInvalid, "project id and pr are required")
	}
	return projectID + "-pr-" + pr, nil
}

// DeploymentSubdomain is the DNS label serving a deployment. The default
// deployment gets the bare project label.
func DeploymentSubdomain(projectID, name string) (string, error) {
	if projectID == "" || name == "" {
		return "", errors.New(errors.CodeInvalid, "project id and deployment name are required")
	}
	if name == DefaultDeployment {
		return projectID, nil
	}
	return projectID + "-" + name, nil
}
