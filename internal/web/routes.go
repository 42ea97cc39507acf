package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/facegate/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	membersHandler := handlers.NewMembersHandler(s.orch.Registry())
	attendanceHandler := handlers.NewAttendanceHandler(s.orch)
	identifyHandler := handlers.NewIdentifyHandler(s.orch, s.encoder)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// Members
		r.Get("/members", membersHandler.List)
		r.Post("/members", membersHandler.Create)
		r.Get("/members/{name}", membersHandler.Get)
		r.Put("/members/{name}", membersHandler.Update)
		r.Delete("/members/{name}", membersHandler.Delete)

		// Identification: capture in, attendance event out
		r.Post("/identify", identifyHandler.Identify)

		// Attendance
		r.Get("/attendance", attendanceHandler.Status)
		r.Get("/attendance/{name}", attendanceHandler.History)
		r.Post("/attendance/{name}/checkin", attendanceHandler.CheckIn)
		r.Post("/attendance/{name}/checkout", attendanceHandler.CheckOut)
	})
}
