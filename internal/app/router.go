package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/xenking/apikey-auth/pkg/apikey"
	"github.com/xenking/apikey-auth/pkg/health"
	"github.com/xenking/apikey-auth/pkg/httpmiddleware"
)

// newRouter routes the health probes and the sample API:
//
//	GET /api/public        anonymous, either scheme may authenticate
//	GET /api/values        header scheme
//	GET /api/claims        header scheme, returns the principal
//	GET /api/admin         header scheme, role=Admin
//	GET /api/query/values  query scheme
func newRouter(cfg *Config, reg *apikey.Registry, hs *health.Health) http.Handler {
	header, query := cfg.HeaderScheme.Name, cfg.QueryScheme.Name
	limit := httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
		Max:    cfg.RateLimit.Max,
		Window: cfg.RateLimit.Window,
	})

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.Origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", cfg.HeaderScheme.KeyName},
		ExposedHeaders:   []string{"WWW-Authenticate", httpmiddleware.HeaderRequestID},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           86400,
	}))

	r.Get("/livez", hs.LiveEndpoint)
	r.Get("/readyz", hs.ReadyEndpoint)

	r.Route("/api", func(r chi.Router) {
		r.With(apikey.AllowAnonymous, reg.Authenticate(header, query), limit).
			Get("/public", publicHandler)

		r.Group(func(r chi.Router) {
			r.Use(reg.Authenticate(header), limit)
			r.Get("/values", valuesHandler)
			r.Get("/claims", claimsHandler)
			r.With(reg.RequireClaim(apikey.ClaimRole, "Admin")).Get("/admin", adminHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(reg.Authenticate(query), limit)
			r.Get("/query/values", valuesHandler)
			r.Get("/query/claims", claimsHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}
