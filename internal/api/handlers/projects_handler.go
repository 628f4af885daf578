package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/iac-studio/envforge/internal/api/middleware"
	"github.com/iac-studio/envforge/internal/api/types"
	"github.com/iac-studio/envforge/internal/services"
	"github.com/iac-studio/envforge/pkg/logger"
)

type ProjectsHandler struct {
	svc services.ProjectService
}

func NewProjectsHandler(svc services.ProjectService) *ProjectsHandler {
	return &ProjectsHandler{svc: svc}
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Data:    types.ProjectList{Projects: ids},
		Meta:    &types.Meta{RequestID: middleware.GetRequestID(r.Context()), Total: int64(len(ids))},
	})
}

// Create provisions the project, or returns the existing one.
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.ProjectCreateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	logger.L().Info("project create requested", zap.String("project_id", req.ProjectID), zap.String("subject", middleware.GetSubject(r.Context())))
	p, err := h.svc.CreateProject(r.Context(), req.ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, p)
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetProject(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, d)
}

func (h *ProjectsHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "project")
	logger.L().Info("project destroy requested", zap.String("project_id", pid), zap.String("subject", middleware.GetSubject(r.Context())))
	if err := h.svc.DestroyProject(r.Context(), pid); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InitWebhookSecret rotates the project's webhook secret and returns it
// once.
func (h *ProjectsHandler) InitWebhookSecret(w http.ResponseWriter, r *http.Request) {
	pid := chi.URLParam(r, "project")
	secret, err := h.svc.InitWebhookSecret(r.Context(), pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeData(w, r, http.StatusCreated, types.WebhookSecretResponse{ProjectID: pid, Secret: secret})
}
