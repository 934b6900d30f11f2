package proxy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mount registers the proxied API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(noStore)

		r.Get("/api/news-inbox", h.HandleListNews)
		r.Patch("/api/news-inbox", h.HandleNewsAction)

		r.Get("/api/news-official-inbox", h.HandleListOfficial)
		r.Post("/api/news-official-inbox", h.HandleSubmitOfficial)
		r.Patch("/api/news-official-inbox", h.HandleOfficialAction)

		for _, pattern := range []string{"/api/internal/x-posts", "/api/internal/x-posts/*"} {
			r.Get(pattern, h.HandleXPosts)
			r.Post(pattern, h.HandleXPosts)
			r.Patch(pattern, h.HandleXPosts)
		}

		r.Post("/api/internal/ai-image/preprocess", h.HandlePreprocess)
	})
}

// NewRouter creates a Chi router with only the proxy endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// noStore marks every proxied response as uncacheable.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
