package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vasiliy-maslov/estore/internal/auth"
)

type Handlers struct {
	Catalog  *CatalogHandler
	Cart     *CartHandler
	Orders   *OrderHandler
	Payments *PaymentHandler
	Users    *UserHandler
	Admin    *AdminHandler
}

// NewRouter mounts the public catalog, the gateway webhook, the
// session-protected customer API and the /admin API.
func NewRouter(h Handlers, authenticate func(http.Handler) http.Handler, limiter *RateLimiter) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h.Catalog.RegisterRoutes(router)
	h.Payments.RegisterWebhookRoutes(router)

	router.Group(func(r chi.Router) {
		if limiter != nil {
			r.Use(limiter.Middleware)
		}
		h.Payments.RegisterRoutes(r)
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		if limiter != nil {
			r.Use(limiter.Middleware)
		}

		h.Cart.RegisterRoutes(r)
		h.Orders.RegisterRoutes(r)
		h.Users.RegisterRoutes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			h.Catalog.RegisterAdminRoutes(r)
			h.Orders.RegisterAdminRoutes(r)
			h.Users.RegisterAdminRoutes(r)
			h.Admin.RegisterRoutes(r)
		})
	})

	return router
}
