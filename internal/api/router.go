package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/algerknown/algerknown/internal/kbservice"
	"github.com/algerknown/algerknown/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted.
// corsOrigins lists the allowed browser origins; empty disables CORS.
// authEnabled controls whether Bearer token auth is enforced; /health stays
// open either way. broker, if non-nil, is mounted at GET /events inside the
// auth group and receives record events from the mutating endpoints.
func NewRouter(svc *kbservice.Service, corsOrigins []string, authEnabled bool, token string, broker *sse.Broker) chi.Router {
	h := NewHandler(svc, broker)

	r := chi.NewRouter()
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}))
	}

	// Health stays reachable without a token for probes.
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Query mode.
		r.Post("/query", h.Query)
		r.Post("/search", h.Search)

		// Ingest mode.
		r.Post("/ingest", h.Ingest)
		r.Post("/index", h.Index)
		r.Post("/approve", h.Approve)
		r.Post("/preview", h.Preview)
		r.Post("/reindex", h.Reindex)

		// Browsing.
		r.Get("/entries", h.ListEntries)
		r.Get("/entries/{id}", h.GetEntry)
		r.Get("/entries/{id}/history", h.EntryHistory)
		r.Get("/summaries", h.ListSummaries)

		// Changelog.
		r.Get("/changelog", h.Changelog)
		r.Get("/changelog/sources", h.ChangelogSources)
		r.Get("/changelog/stats", h.ChangelogStats)

		// SSE endpoint (protected by the same auth middleware).
		if broker != nil {
			r.Get("/events", broker.ServeHTTP)
		}
	})

	return r
}
