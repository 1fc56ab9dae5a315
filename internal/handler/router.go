package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/okoshkina/benefit-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware системы ваучеров.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/participant/register", h.Register)
		r.Post("/staff/login", h.StaffLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/participant/balance", h.GetBalance)
			r.Post("/participant/orders/validate", h.ValidateOrder)
			r.Post("/participant/orders", h.ConfirmOrder)
			r.Get("/participant/orders", h.GetOrders)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.RequireStaff)

				r.Post("/staff/pauses", h.CreatePause)
				r.Post("/staff/pauses/{id}/archive", h.ArchivePause)
				r.Post("/staff/pauses/{id}/unarchive", h.UnarchivePause)
				r.Post("/staff/combined-orders", h.BuildCombinedOrder)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
