// Package httpapi wires the handler set into a chi router.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mrchevyceleb/vibecanvas/internal/http/handlers"
	"github.com/mrchevyceleb/vibecanvas/internal/infra"
	"github.com/mrchevyceleb/vibecanvas/internal/middleware"
)

// Options carries the cross-cutting settings the router needs.
type Options struct {
	JWTSecret       string
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	Logger          infra.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/providers", app.Providers)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Post("/v1/generations", app.Generate)
		r.Post("/v1/prompts/enhance", app.PromptEnhance)

		r.Route("/v1/media", func(r chi.Router) {
			r.Get("/", app.MediaList)
			r.Post("/uploads", app.MediaUpload)
			r.Post("/delete", app.MediaDelete)
			r.Post("/export", app.MediaExport)
			r.Get("/{id}", app.MediaGet)
			r.Get("/{id}/url", app.MediaURL)
			r.Post("/{id}/duplicate", app.MediaDuplicate)
			r.Post("/{id}/move", app.MediaMove)
			r.Post("/{id}/favorite", app.MediaFavorite)
		})

		r.Route("/v1/folders", func(r chi.Router) {
			r.Get("/", app.FolderList)
			r.Post("/", app.FolderCreate)
		})

		r.Route("/v1/integrations/{provider}", func(r chi.Router) {
			r.Get("/", app.IntegrationStatus)
			r.Put("/key", app.IntegrationSetKey)
		})
	})

	return r
}
