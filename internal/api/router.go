package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sync binding.
	r.Get("/status", h.GetStatus)
	r.Post("/access", h.RequestAccess)
	r.Delete("/access", h.ForgetAccess)

	// Whole document.
	r.Get("/document", h.GetDocument)
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)

	// Items.
	r.Get("/items", h.ListItems)
	r.Post("/items", h.CreateItem)
	r.Route("/items/{id}", func(r chi.Router) {
		r.Patch("/", h.EditItem)
		r.Delete("/", h.DeleteItem)
		r.Post("/toggle", h.ToggleItem)
		r.Post("/trash", h.TrashItem)
		r.Post("/restore", h.RestoreItem)
	})
	r.Post("/undo", h.Undo)
	r.Delete("/trash", h.EmptyTrash)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
