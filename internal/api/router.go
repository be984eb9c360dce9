package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/slotlink-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/", s.handleRoot)

	r.Route("/api", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/forgot-password", s.handleForgotPassword)
		r.Post("/auth/reset-password", s.handleResetPassword)

		// Device-facing writes (no auth required)
		r.Post("/data", s.handlePushReading)
		r.Post("/camera/{n}", s.handleUploadCamera)

		// WebSocket (auth via token or ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Slot endpoints
			r.Route("/slots", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermSlotRead)).Get("/", s.handleListSlots)
				r.With(s.requirePermission(auth.PermSlotManage)).Get("/available", s.handleAvailableSlots)
				r.With(s.requirePermission(auth.PermSlotManage)).Post("/", s.handleCreateSlot)

				r.Route("/{n}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermSlotRead)).Get("/", s.handleGetSlot)
					r.With(s.requirePermission(auth.PermSlotManage)).Put("/", s.handleUpdateSlot)
					r.With(s.requirePermission(auth.PermSlotManage)).Delete("/", s.handleDeleteSlot)
				})
			})

			// Reading endpoints. Not a sub-router: POST /data is public and
			// a mount would shadow it.
			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermDataRead))
				r.Get("/data", s.handleLatestAll)
				r.Get("/data/{n}", s.handleLatest)
				r.Get("/data/{n}/history", s.handleHistory)
				r.Get("/data/{n}/export", s.handleExportHistory)
			})

			r.With(s.requirePermission(auth.PermControlOperate)).Post("/control/{n}", s.handleControl)
			r.With(s.requirePermission(auth.PermDataRead)).Get("/camera/{n}", s.handleGetCamera)

			// Alert endpoints
			r.Route("/alerts", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermDataRead)).Get("/", s.handleListAlerts)
				r.With(s.requirePermission(auth.PermDataRead)).Get("/unread-count", s.handleUnreadCount)
				r.With(s.requirePermission(auth.PermAlertAck)).Put("/read-all", s.handleMarkAllAlertsRead)
				r.With(s.requirePermission(auth.PermAlertAck)).Put("/{id}/read", s.handleMarkAlertRead)
			})

			// Dashboard endpoints
			r.Route("/dashboard", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermDataRead))
				r.Get("/stats", s.handleDashboardStats)
				r.Get("/full", s.handleDashboardFull)
			})

			r.With(s.requirePermission(auth.PermDataRead)).Get("/mqtt/status", s.handleMQTTStatus)
			r.With(s.requirePermission(auth.PermSystemAdmin)).Get("/system/metrics", s.handleMetrics)

			// Admin endpoints
			r.Route("/admin", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)

				r.Route("/users", func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermUserManage))
					r.Get("/", s.handleListUsers)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", s.handleGetUser)
						r.Put("/role", s.handleUpdateUserRole)
						r.Post("/reset-password", s.handleAdminResetPassword)
						r.Delete("/", s.handleDeleteUser)
					})
				})
			})
		})
	})

	return r
}
