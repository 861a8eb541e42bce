package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerCompany, headerUser, headerRole},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireActor)

		r.Route("/contacts", func(r chi.Router) {
			r.Post("/", h.CreateContact)
			r.Post("/filters/count", h.CountFilters)
			r.Post("/members", h.ListMembers)
			r.Post("/delete", h.DeleteContacts)
			r.Post("/delete-all", h.DeleteAllContacts)
			r.Post("/restore", h.RestoreContacts)
			r.Post("/filter-delete", h.FilterDelete)
			r.Post("/filter-delete/revert", h.RevertFilterDelete)
			r.Get("/duplicates", h.ReadDuplicates)
			r.Post("/duplicates/resolve", h.ResolveDuplicates)
			r.Put("/primary-key", h.UpdatePrimaryKey)
			r.Delete("/primary-key", h.DeletePrimaryKey)
			r.Post("/finalize", h.Finalize)
			r.Post("/upload", h.UploadContacts)
			r.Post("/import", h.ImportContacts)
		})

		r.Route("/segments", func(r chi.Router) {
			r.Get("/", h.ListSegments)
			r.Post("/", h.CreateSegment)
			r.Get("/{id}", h.GetSegment)
			r.Put("/{id}", h.UpdateSegment)
			r.Delete("/{id}", h.DeleteSegment)
		})

		r.Route("/requests", func(r chi.Router) {
			r.Post("/revert-finalize", h.CreateRevertFinalize)
			r.Post("/dedicated-ip", h.CreateDedicatedIP)
			r.Post("/{type}/in-progress", h.MarkRequestInProgress)
			r.Delete("/{type}", h.CancelRequest)
		})

		r.Get("/progress", h.StreamProgress)
	})

	return r
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
