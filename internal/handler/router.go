package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/conference-registration/internal/auth"
)

// NewRouter builds the chi router with the global middleware stack and all
// API routes.
func NewRouter(h *EventHandler, tokens *auth.Tokens, db Pinger, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(log))
	r.Use(CORS)

	r.Get("/health", HealthCheck(db))

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(tokens))

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.ListEvents)
			r.Post("/", h.CreateEvent)
			r.Get("/{id}", h.GetEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DeleteEvent)
			r.Post("/{id}/register", h.Register)
			r.Get("/{id}/registration", h.GetMyRegistration)
			r.Get("/{id}/registrations", h.ListRegistrations)
		})

		r.Get("/me/registrations", h.ListMyRegistrations)

		r.Route("/registrations", func(r chi.Router) {
			r.Post("/{id}/payment", h.ConfirmPayment)
			r.Delete("/{id}", h.CancelRegistration)
		})
	})

	return r
}
