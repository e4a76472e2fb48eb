package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter wires the auth endpoints onto a chi router with the standard
// middleware stack.
func NewRouter(h *Handler, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(WithClientIP)
	r.Use(RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", h.HandleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.HandleLogin)

		r.Route("/mfa", func(r chi.Router) {
			r.Post("/initiate", h.HandleMFAInitiate)
			r.Post("/otp/verify", h.HandleVerifyOTP)
			r.Post("/push/verify", h.HandlePushPoll)
			r.Post("/push/approve", h.HandlePushApprove)
		})

		r.Post("/esign/accept", h.HandleESignAccept)
		r.Post("/esign/decline", h.HandleESignDecline)
		r.Post("/device/bind", h.HandleDeviceBind)

		r.Route("/token", func(r chi.Router) {
			r.Post("/refresh", h.HandleRefresh)
			r.Post("/revoke", h.HandleRevoke)
			r.Post("/introspect", h.HandleIntrospect)
		})

		r.Post("/logout", h.HandleLogout)
	})

	if h.cfg.DevOTPEnabled {
		r.Get("/dev/mfa/otp", h.HandleDevOTP)
	}

	return r
}
