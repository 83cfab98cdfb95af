package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kestrelsec/authguard/internal/handlers"
	"github.com/kestrelsec/authguard/internal/middleware"
)

// RegisterRoutes wires the authentication core's HTTP surface. The
// credential and OTP endpoints sit behind a per-IP rate limiter on top
// of the lockout policy the services enforce themselves.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	otpHandler *handlers.OTPHandler,
	adminHandler *handlers.AdminHandler,
) {
	router.Group(func(r chi.Router) {
		r.Use(middleware.Throttle(5, time.Minute))

		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/mfa", authHandler.CompleteMFA)
		r.Post("/otp/initiate", otpHandler.Initiate)
		r.Post("/otp/verify", otpHandler.Verify)
	})

	router.Post("/session/validate", authHandler.ValidateSession)
	router.Post("/auth/logout", authHandler.Logout)

	// Operator surface. Deployments front these with their own access
	// control; the core does not ship an operator identity model.
	router.Route("/admin", func(r chi.Router) {
		r.Get("/posture", adminHandler.Posture)
		r.Post("/mfa/enrollments", authHandler.EnrollMFA)
		r.Post("/blocks", adminHandler.BlockIP)
		r.Delete("/blocks/{ip}", adminHandler.UnblockIP)
	})
}
