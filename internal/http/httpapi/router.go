package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/http/handlers"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/middleware"
)

// Options configures the router middleware.
type Options struct {
	Logger         zerolog.Logger
	DefaultLocale  string
	AllowedOrigins []string
	// APIToken guards /v1 routes other than health and docs when set.
	APIToken    string
	RatePerSec  float64
	RateBurst   int
	RateIdleTTL time.Duration
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.Locale(opts.DefaultLocale),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.BearerToken(opts.APIToken),
			middleware.RateLimit(opts.RatePerSec, opts.RateBurst, opts.RateIdleTTL),
		)

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.SubmitJob)
			r.Get("/active", app.ActiveJob)
			r.Post("/{id}/cancel", app.CancelJob)
		})

		r.Route("/v1/assets", func(r chi.Router) {
			r.Get("/", app.ListAssets)
			r.Post("/urls", app.ResolveURLs)
			r.Get("/{id}/url", app.AssetURL)
			r.Delete("/{id}", app.DeleteAsset)
		})

		r.Get("/v1/events", app.Events)
	})

	// Signed URLs carry their own authorization.
	if app.Files != nil {
		r.Get("/static/{bucket}/*", app.StaticObject)
	}

	return r
}
