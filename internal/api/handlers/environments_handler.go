package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iac-studio/envforge/internal/api/types"
	"github.com/iac-studio/envforge/internal/services"
)

// EnvironmentsHandler queues pull request and deployment operations. All
// responses are 202 with the queued job.
type EnvironmentsHandler struct {
	svc services.EnvironmentService
}

func NewEnvironmentsHandler(svc services.EnvironmentService) *EnvironmentsHandler {
	return &EnvironmentsHandler{svc: svc}
}

func (h *EnvironmentsHandler) CreatePR(w http.ResponseWriter, r *http.Request) {
	var req types.PRRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	pid, pr := chi.URLParam(r, "project"), chi.URLParam(r, "pr")
	run := h.svc.CreatePR
	if req.Replace {
		run = h.svc.ReplacePR
	}
	job, err := run(r.Context(), pid, pr, req.App, req.SSH)
	h.accepted(w, r, job, err)
}

func (h *EnvironmentsHandler) DestroyPR(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.DestroyPR(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "pr"))
	h.accepted(w, r, job, err)
}

func (h *EnvironmentsHandler) CreateDeployment(w http.ResponseWriter, r *http.Request) {
	var req types.DeploymentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.svc.CreateDeployment(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "deployment"), req.SHA, req.App)
	h.accepted(w, r, job, err)
}

func (h *EnvironmentsHandler) UpdateDeployment(w http.ResponseWriter, r *http.Request) {
	var req types.DeploymentRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	job, err := h.svc.UpdateDeployment(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "deployment"), req.SHA, req.App)
	h.accepted(w, r, job, err)
}

func (h *EnvironmentsHandler) DestroyDeployment(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.DestroyDeployment(r.Context(), chi.URLParam(r, "project"), chi.URLParam(r, "deployment"))
	h.accepted(w, r, job, err)
}

func (h *EnvironmentsHandler) accepted(w http.ResponseWriter, r *http.Request, job *services.Job, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusAccepted, job)
}
