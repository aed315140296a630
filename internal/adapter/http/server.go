package http

import (
	"net/http"

	"github.com/podscribe/podscribe/internal/adapter/http/middleware"
	"github.com/podscribe/podscribe/internal/service"
)

type Server struct {
	mux        *http.ServeMux
	handlers   *Handlers
	sseHandler *SSEHandler
}

func NewServer(jobSvc JobService, driver JobController, eventBus *service.EventBus, maxSizeMB int) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		handlers:   NewHandlers(jobSvc, driver, maxSizeMB),
		sseHandler: NewSSEHandler(eventBus, jobSvc),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/upload", s.handlers.Upload())
	s.mux.HandleFunc("POST /api/demo/start", s.handlers.StartDemo())

	s.mux.HandleFunc("GET /api/status/{id}", s.handlers.Status())
	s.mux.HandleFunc("GET /api/results/{id}", s.handlers.Results())
	s.mux.HandleFunc("GET /api/events/{id}", s.sseHandler.Events())
	s.mux.HandleFunc("GET /api/download/{id}/{format}", s.handlers.Download())

	s.mux.HandleFunc("GET /api/jobs", s.handlers.ListJobs())
	s.mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handlers.Cancel())
	s.mux.HandleFunc("DELETE /api/jobs/{id}", s.handlers.DeleteJob())

	s.mux.HandleFunc("GET /api/health", s.handlers.Health())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	middleware.SecurityHeaders(s.mux).ServeHTTP(w, r)
}
