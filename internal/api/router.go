package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/iac-studio/envforge/internal/api/handlers"
	mw "github.com/iac-studio/envforge/internal/api/middleware"
	"github.com/iac-studio/envforge/internal/services"
)

type Dependencies struct {
	Tokens       mw.TokenParser
	Ready        handlers.ReadinessCheck
	Projects     services.ProjectService
	Environments services.EnvironmentService
	Webhooks     services.WebhookService

	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Only set it behind a proxy that overwrites them.
	TrustProxy bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	if dep.TrustProxy {
		r.Use(chimid.RealIP)
	}
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	hh := handlers.NewHealthHandler(dep.Ready)
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	// Signature authenticated.
	wh := handlers.NewWebhooksHandler(dep.Webhooks)
	r.Post("/webhooks/github/{project}", wh.GitHub)

	ph := handlers.NewProjectsHandler(dep.Projects)
	eh := handlers.NewEnvironmentsHandler(dep.Environments)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(mw.Auth(dep.Tokens))

		api.Route("/projects", func(pr chi.Router) {
			pr.Get("/", ph.List)
			pr.Post("/", ph.Create)

			pr.Route("/{project}", func(p chi.Router) {
				p.Get("/", ph.Get)
				p.Delete("/", ph.Destroy)
				p.Post("/webhook-secret", ph.InitWebhookSecret)

				p.Put("/prs/{pr}", eh.CreatePR)
				p.Delete("/prs/{pr}", eh.DestroyPR)

				p.Post("/deployments/{deployment}", eh.CreateDeployment)
				p.Put("/deployments/{deployment}", eh.UpdateDeployment)
				p.Delete("/deployments/{deployment}", eh.DestroyDeployment)
			})
		})
	})

	return r
}
