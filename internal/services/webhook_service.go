package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/environment"
	"github.com/iac-studio/envforge/internal/registry"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
	"github.com/iac-studio/envforge/pkg/signature"
)

// GitHub event names.
const (
	EventPing        = "ping"
	EventPullRequest = "pull_request"
	EventPush        = "push"
)

// PullRequestEvent is the subset of a GitHub pull_request payload in use.
type PullRequestEvent struct {
	Action      string      `json:"action"`
	Number      int         `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
	Repository  Repository  `json:"repository"`
}

type PullRequest struct {
	Head  Ref    `json:"head"`
	Base  Ref    `json:"base"`
	Title string `json:"title"`
	State string `json:"state"`
}

type Ref struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type Repository struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
}

// PushEvent is the subset of a GitHub push payload in use.
type PushEvent struct {
	Ref        string     `json:"ref"`
	After      string     `json:"after"`
	Deleted    bool       `json:"deleted"`
	Repository Repository `json:"repository"`
}

// SecretLookup returns the webhook secret stored for a project.
type SecretLookup interface {
	Get(ctx context.Context, projectID string) (string, error)
}

type WebhookConfig struct {
	// RegistryHost prefixes image references, which are
	// <host>/<repository>:<sha>.
	RegistryHost string
	AppPort      int32
	// DeploymentBranches lists the branches whose pushes are deployed.
	DeploymentBranches []string
}

// WebhookResult tells the caller what a delivery turned into.
type WebhookResult struct {
	Event   string `json:"event"`
	Action  string `json:"action,omitempty"`
	Job     *Job   `json:"job,omitempty"`
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason,omitempty"`
}

type WebhookService interface {
	// Handle verifies a delivery against the project's secret and queues
	// the environment operation it maps to.
	Handle(ctx context.Context, projectID, event, sig string, body []byte) (*WebhookResult, error)
}

type webhookService struct {
	secrets SecretLookup
	envs    EnvironmentService
	cfg     WebhookConfig
}

func NewWebhookService(secrets SecretLookup, envs EnvironmentService, cfg WebhookConfig) WebhookService {
	return &webhookService{secrets: secrets, envs: envs, cfg: cfg}
}

var _ WebhookService = (*webhookService)(nil)

func (s *webhookService) Handle(ctx context.Context, projectID, event, sig string, body []byte) (*WebhookResult, error) {
	log := logger.L().With(zap.String("project_id", projectID), zap.String("event", event))

	secret, err := s.secrets.Get(ctx, projectID)
	if err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			return nil, appErr.Wrap(err, appErr.CodeUnauthorized, "webhook secret not initialized")
		}
		return nil, err
	}
	if !signature.Verify([]byte(secret), body, sig) {
		log.Warn("webhook signature mismatch")
		return nil, appErr.New(appErr.CodeUnauthorized, "invalid webhook signature")
	}

	switch event {
	case EventPing:
		return &WebhookResult{Event: event, Ignored: true, Reason: "ping"}, nil
	case EventPullRequest:
		var ev PullRequestEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid pull_request payload")
		}
		return s.pullRequest(ctx, log, projectID, ev)
	case EventPush:
		var ev PushEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInvalid, "invalid push payload")
		}
		return s.push(ctx, log, projectID, ev)
	default:
		return &WebhookResult{Event: event, Ignored: true, Reason: "unsupported event"}, nil
	}
}

func (s *webhookService) pullRequest(ctx context.Context, log *zap.Logger, projectID string, ev PullRequestEvent) (*WebhookResult, error) {
	res := &WebhookResult{Event: EventPullRequest, Action: ev.Action}
	if ev.Number <= 0 {
		return nil, appErr.New(appErr.CodeInvalid, "pull request number missing")
	}
	pr := strconv.Itoa(ev.Number)

	var (
		job *Job
		err error
	)
	switch ev.Action {
	case "opened", "reopened", "synchronize":
		app, aerr := s.app(projectID, ev.PullRequest.Head.SHA)
		if aerr != nil {
			return nil, aerr
		}
		if ev.Action == "synchronize" {
			job, err = s.envs.ReplacePR(ctx, projectID, pr, app, environment.SSHData{})
		} else {
			job, err = s.envs.CreatePR(ctx, projectID, pr, app, environment.SSHData{})
		}
	case "closed":
		job, err = s.envs.DestroyPR(ctx, projectID, pr)
	default:
		res.Ignored = true
		res.Reason = "unhandled action"
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info("pull request event queued", zap.String("action", ev.Action), zap.String("pr", pr), zap.String("task", job.Type))
	res.Job = job
	return res, nil
}

func (s *webhookService) push(ctx context.Context, log *zap.Logger, projectID string, ev PushEvent) (*WebhookResult, error) {
	res := &WebhookResult{Event: EventPush}
	branch, ok := strings.CutPrefix(ev.Ref, "refs/heads/")
	if !ok {
		res.Ignored = true
		res.Reason = "not a branch"
		return res, nil
	}
	if !slices.Contains(s.cfg.DeploymentBranches, branch) {
		res.Ignored = true
		res.Reason = "not a deployment branch"
		return res, nil
	}
	deployment := DeploymentName(branch)

	var (
		job *Job
		err error
	)
	if ev.Deleted {
		res.Action = "deleted"
		job, err = s.envs.DestroyDeployment(ctx, projectID, deployment)
	} else {
		res.Action = "pushed"
		app, aerr := s.app(projectID, ev.After)
		if aerr != nil {
			return nil, aerr
		}
		job, err = s.envs.UpdateDeployment(ctx, projectID, deployment, ev.After, app)
	}
	if err != nil {
		return nil, err
	}
	log.Info("push event queued", zap.String("deployment", deployment), zap.String("task", job.Type))
	res.Job = job
	return res, nil
}

func (s *webhookService) app(projectID, sha string) (environment.AppDefinition, error) {
	if s.cfg.RegistryHost == "" {
		return environment.AppDefinition{}, appErr.New(appErr.CodeFailedPrecondition, "registry host not configured")
	}
	if sha == "" {
		return environment.AppDefinition{}, appErr.New(appErr.CodeInvalid, "commit sha missing")
	}
	repo, err := registry.RepositoryName(projectID)
	if err != nil {
		return environment.AppDefinition{}, err
	}
	return environment.AppDefinition{
		Image: fmt.Sprintf("%s/%s:%s", s.cfg.RegistryHost, repo, sha),
		Ports: []int32{s.cfg.AppPort},
	}, nil
}

// DeploymentName maps a branch to the deployment it feeds.
func DeploymentName(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}
