package types

import "github.com/iac-studio/envforge/internal/environment"

type ProjectCreateRequest struct {
	ProjectID string `json:"project_id" validate:"required,max=64,excludes=--"`
}

type PRRequest struct {
	App environment.AppDefinition `json:"app"`
	SSH environment.SSHData       `json:"ssh"`
	// Replace tears an existing environment of the pull request down first.
	Replace bool `json:"replace"`
}

type DeploymentRequest struct {
	SHA string                    `json:"sha" validate:"required"`
	App environment.AppDefinition `json:"app"`
}
