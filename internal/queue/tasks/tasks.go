package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/iac-studio/envforge/internal/environment"
)

// Task types.
const (
	TypePRCreate          = "pr:create"
	TypePRDestroy         = "pr:destroy"
	TypeDeploymentCreate  = "deployment:create"
	TypeDeploymentUpdate  = "deployment:update"
	TypeDeploymentDestroy = "deployment:destroy"
)

// PRPayload is the payload of pr:* tasks. Replace makes pr:create tear
// down any existing environment of the pull request first.
type PRPayload struct {
	ProjectID string                    `json:"project_id"`
	PR        string                    `json:"pr"`
	App       environment.AppDefinition `json:"app"`
	SSH       environment.SSHData       `json:"ssh"`
	Replace   bool                      `json:"replace,omitempty"`
}

// DeploymentPayload is the payload of deployment:* tasks.
type DeploymentPayload struct {
	ProjectID  string                    `json:"project_id"`
	Deployment string                    `json:"deployment"`
	SHA        string                    `json:"sha"`
	App        environment.AppDefinition `json:"app"`
}

// Provider calls are never retried by the queue.
var defaultOpts = []asynq.Option{asynq.MaxRetry(0)}

func NewPRTask(typ string, p PRPayload) (*asynq.Task, error) {
	if typ != TypePRCreate && typ != TypePRDestroy {
		return nil, fmt.Errorf("not a pull request task type: %q", typ)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, b, defaultOpts...), nil
}

func NewDeploymentTask(typ string, p DeploymentPayload) (*asynq.Task, error) {
	switch typ {
	case TypeDeploymentCreate, TypeDeploymentUpdate, TypeDeploymentDestroy:
	default:
		return nil, fmt.Errorf("not a deployment task type: %q", typ)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, b, defaultOpts...), nil
}
