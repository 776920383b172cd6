package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"genjobs/internal/admission"
	"genjobs/internal/http/handlers"
	"genjobs/internal/middleware"
)

type RouterOptions struct {
	JWTSecret      string
	AllowedOrigins []string
	Gate           admission.Gate
	Gatherer       prometheus.Gatherer
	Logger         zerolog.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	if opts.Gatherer != nil {
		r.Handle("/metrics", handlers.MetricsHandler(opts.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		// generation admission is enforced inside the orchestrator
		r.Post("/v1/generate", app.Generate)
		r.Get("/v1/providers", app.Providers)
		r.Get("/v1/attempts", app.RecentAttempts)
		r.Get("/v1/requests/{id}/attempts", app.RequestAttempts)
		r.With(middleware.Admission(opts.Gate, admission.ClassDeployment, opts.Logger)).
			Post("/v1/deployments/admit", app.DeploymentAdmitted)
	})

	return r
}
