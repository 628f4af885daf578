package handlers

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iac-studio/envforge/internal/services"
	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// GitHub caps webhook payloads at 25MB.
const maxWebhookBytes = 25 << 20

type WebhooksHandler struct {
	svc services.WebhookService
}

func NewWebhooksHandler(svc services.WebhookService) *WebhooksHandler {
	return &WebhooksHandler{svc: svc}
}

// GitHub receives a delivery for the project in the URL. The signature is
// checked over the raw body.
func (h *WebhooksHandler) GitHub(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, r, appErr.Wrap(err, appErr.CodeInvalid, "read body failed"))
		return
	}
	event := r.Header.Get("X-GitHub-Event")
	if event == "" {
		writeError(w, r, appErr.New(appErr.CodeInvalid, "missing X-GitHub-Event header"))
		return
	}
	res, err := h.svc.Handle(r.Context(), chi.URLParam(r, "project"), event, r.Header.Get("X-Hub-Signature-256"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusAccepted
	if res.Ignored {
		status = http.StatusOK
	}
	writeData(w, r, status, res)
}
