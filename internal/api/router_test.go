package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iac-studio/envforge/internal/api/types"
	"github.com/iac-studio/envforge/internal/environment"
	"github.com/iac-studio/envforge/internal/provisioner"
	"github.com/iac-studio/envforge/internal/services"
	"github.com/iac-studio/envforge/internal/tagging"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/iac-studio/envforge/pkg/logger"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

type tokens struct{}

func (tokens) Parse(token string) (string, error) {
	if token != "valid" {
		return "", appErr.New(appErr.CodeUnauthorized, "invalid token")
	}
	return "ci-bot", nil
}

type fakeProjects struct {
	ids        []string
	destroyErr error
}

func (f *fakeProjects) CreateProject(_ context.Context, projectID string) (*provisioner.Project, error) {
	return &provisioner.Project{ProjectID: projectID, SubnetID: "subnet-1"}, nil
}

func (f *fakeProjects) GetProject(_ context.Context, projectID string) (*provisioner.Description, error) {
	if projectID == "missing" {
		return nil, appErr.New(appErr.CodeNotFound, "no subnet for project")
	}
	return &provisioner.Description{ProjectID: projectID, OpenPRs: []string{"1"}}, nil
}

func (f *fakeProjects) ListProjects(context.Context) ([]string, error) { return f.ids, nil }

func (f *fakeProjects) DestroyProject(context.Context, string) error { return f.destroyErr }

func (f *fakeProjects) InitWebhookSecret(context.Context, string) (string, error) {
	return "generated", nil
}

type call struct {
	method, project, key, sha string
	app                       environment.AppDefinition
}

type fakeEnvironments struct {
	calls []call
}

func (f *fakeEnvironments) job(typ string) *services.Job { return &services.Job{ID: "job-1", Type: typ} }

func (f *fakeEnvironments) CreatePR(_ context.Context, pid, pr string, app environment.AppDefinition, _ environment.SSHData) (*services.Job, error) {
	f.calls = append(f.calls, call{method: "CreatePR", project: pid, key: pr, app: app})
	return f.job("pr:create"), nil
}

func (f *fakeEnvironments) ReplacePR(_ context.Context, pid, pr string, app environment.AppDefinition, _ environment.SSHData) (*services.Job, error) {
	f.calls = append(f.calls, call{method: "ReplacePR", project: pid, key: pr, app: app})
	return f.job("pr:create"), nil
}

func (f *fakeEnvironments) DestroyPR(_ context.Context, pid, pr string) (*services.Job, error) {
	f.calls = append(f.calls, call{method: "DestroyPR", project: pid, key: pr})
	return f.job("pr:destroy"), nil
}

func (f *fakeEnvironments) CreateDeployment(_ context.Context, pid, dep, sha string, app environment.AppDefinition) (*services.Job, error) {
	f.calls = append(f.calls, call{method: "CreateDeployment", project: pid, key: dep, sha: sha, app: app})
	return f.job("deployment:create"), nil
}

func (f *fakeEnvironments) UpdateDeployment(_ context.Context, pid, dep, sha string, app environment.AppDefinition) (*services.Job, error) {
	f.calls = append(f.calls, call{method: "UpdateDeployment", project: pid, key: dep, sha: sha, app: app})
	return f.job("deployment:update"), nil
}

func (f *fakeEnvironments) DestroyDeployment(_ context.Context, pid, dep string) (*services.Job, error) {
	f.calls = append(f.calls, call{method: "DestroyDeployment", project: pid, key: dep})
	return f.job("deployment:destroy"), nil
}

type fakeWebhooks struct {
	event, sig, project string
}

func (f *fakeWebhooks) Handle(_ context.Context, projectID, event, sig string, _ []byte) (*services.WebhookResult, error) {
	f.project, f.event, f.sig = projectID, event, sig
	if sig == "" {
		return nil, appErr.New(appErr.CodeUnauthorized, "invalid webhook signature")
	}
	return &services.WebhookResult{Event: event, Ignored: event == "ping"}, nil
}

type fixture struct {
	handler  http.Handler
	projects *fakeProjects
	envs     *fakeEnvironments
	webhooks *fakeWebhooks
	ready    error
}

func newFixture() *fixture {
	f := &fixture{projects: &fakeProjects{ids: []string{"acme", "globex"}}, envs: &fakeEnvironments{}, webhooks: &fakeWebhooks{}}
	f.handler = NewRouter(Dependencies{
		Tokens:       tokens{},
		Ready:        func() error { return f.ready },
		Projects:     f.projects,
		Environments: f.envs,
		Webhooks:     f.webhooks,
	})
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

var auth = map[string]string{"Authorization": "Bearer valid"}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) types.APIResponse {
	t.Helper()
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/readyz", "", nil).Code)

	f.ready = provisioner.ErrNotReady
	rr := f.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "not_ready", decodeResponse(t, rr).Error.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/projects", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/projects", "", map[string]string{"Authorization": "Bearer nope"}).Code)
}

func TestProjectRoutes(t *testing.T) {
	f := newFixture()

	rr := f.do(http.MethodGet, "/api/v1/projects", "", auth)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeResponse(t, rr)
	assert.True(t, resp.Success)
	assert.EqualValues(t, 2, resp.Meta.Total)

	rr = f.do(http.MethodPost, "/api/v1/projects", `{"project_id":"acme"}`, auth)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = f.do(http.MethodPost, "/api/v1/projects", `{"project_id":"bad--id"}`, auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, "/api/v1/projects", `{"name":"acme"}`, auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/v1/projects/acme", "", auth).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/v1/projects/missing", "", auth).Code)

	rr = f.do(http.MethodPost, "/api/v1/projects/acme/webhook-secret", "", auth)
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Body.String(), `"secret":"generated"`)
}

func TestProjectDestroyStatuses(t *testing.T) {
	f := newFixture()
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/v1/projects/acme", "", auth).Code)

	f.projects.destroyErr = provisioner.ErrOpenPullRequests
	assert.Equal(t, http.StatusConflict, f.do(http.MethodDelete, "/api/v1/projects/acme", "", auth).Code)

	f.projects.destroyErr = tagging.NewOwnershipError(tagging.ProjectOwner("acme"), "subnet", "subnet-9")
	rr := f.do(http.MethodDelete, "/api/v1/projects/acme", "", auth)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotContains(t, rr.Body.String(), "subnet-9")

	f.projects.destroyErr = errors.New("DependencyViolation: subnet in use")
	rr = f.do(http.MethodDelete, "/api/v1/projects/acme", "", auth)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "DependencyViolation")
}

func TestEnvironmentRoutes(t *testing.T) {
	f := newFixture()

	rr := f.do(http.MethodPut, "/api/v1/projects/acme/prs/42", `{"app":{"image":"acme/web:1","ports":[80]}}`, auth)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = f.do(http.MethodPut, "/api/v1/projects/acme/prs/42", `{"app":{"image":"acme/web:2"},"replace":true}`, auth)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = f.do(http.MethodPut, "/api/v1/projects/acme/prs/43", `{"app":{"ports":[80]}}`, auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	require.Equal(t, http.StatusAccepted, f.do(http.MethodDelete, "/api/v1/projects/acme/prs/42", "", auth).Code)

	rr = f.do(http.MethodPost, "/api/v1/projects/acme/deployments/staging", `{"sha":"abc","app":{"image":"acme/web:abc"}}`, auth)
	require.Equal(t, http.StatusAccepted, rr.Code)
	rr = f.do(http.MethodPut, "/api/v1/projects/acme/deployments/staging", `{"sha":"def","app":{"image":"acme/web:def"}}`, auth)
	require.Equal(t, http.StatusAccepted, rr.Code)
	rr = f.do(http.MethodPut, "/api/v1/projects/acme/deployments/staging", `{"app":{"image":"acme/web:def"}}`, auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, http.StatusAccepted, f.do(http.MethodDelete, "/api/v1/projects/acme/deployments/staging", "", auth).Code)

	methods := make([]string, 0, len(f.envs.calls))
	for _, c := range f.envs.calls {
		methods = append(methods, c.method)
	}
	assert.Equal(t, []string{"CreatePR", "ReplacePR", "DestroyPR", "CreateDeployment", "UpdateDeployment", "DestroyDeployment"}, methods)
	assert.Equal(t, call{method: "UpdateDeployment", project: "acme", key: "staging", sha: "def", app: environment.AppDefinition{Image: "acme/web:def"}}, f.envs.calls[4])
}

func TestGitHubWebhookRoute(t *testing.T) {
	f := newFixture()

	rr := f.do(http.MethodPost, "/webhooks/github/acme", `{"zen":"hi"}`, map[string]string{
		"X-GitHub-Event":      "ping",
		"X-Hub-Signature-256": "sha256=00",
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "acme", f.webhooks.project)
	assert.Equal(t, "sha256=00", f.webhooks.sig)

	rr = f.do(http.MethodPost, "/webhooks/github/acme", `{}`, map[string]string{
		"X-GitHub-Event":      "pull_request",
		"X-Hub-Signature-256": "sha256=00",
	})
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = f.do(http.MethodPost, "/webhooks/github/acme", `{}`, map[string]string{"X-GitHub-Event": "push"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, "/webhooks/github/acme", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRateLimitClientAddress(t *testing.T) {
	hit := func(h http.Handler, n int) []int {
		codes := make([]int, 0, n)
		for i := 0; i < n; i++ {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.RemoteAddr = "10.0.0.2:40000"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			codes = append(codes, rr.Code)
		}
		return codes
	}

	direct := newFixture()
	codes := hit(direct.handler, 25)
	assert.Equal(t, http.StatusTooManyRequests, codes[len(codes)-1])

	proxied := newFixture()
	proxied.handler = NewRouter(Dependencies{Tokens: tokens{}, Ready: func() error { return nil }, TrustProxy: true})
	for _, c := range hit(proxied.handler, 25) {
		assert.Equal(t, http.StatusOK, c)
	}
}
