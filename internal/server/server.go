package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
)

// Server encapsulates the HTTP server of the gradebook export, providing
// controlled startup and shutdown.
type Server struct {
	server *http.Server
}

// ListenAndServe starts the HTTP server and blocks until it stops. After
// Shutdown it returns http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, letting active requests finish
// within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// NewServer creates a server listening on address. Browsers from
// allowedOrigins may read the export; no origin is allowed when the list is
// empty.
func NewServer(address, token string, allowedOrigins []string, gradebook Gradebook) *Server {
	router := NewApiV1Router(gradebook, token)
	var handler http.Handler = router.Mux()
	if len(allowedOrigins) > 0 {
		handler = cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Authorization"},
			ExposedHeaders: []string{"Content-Length"},
			MaxAge:         300,
		})(handler)
	}

	return &Server{&http.Server{
		Addr:           address,
		Handler:        handler,
		ReadTimeout:    time.Second * 3,
		WriteTimeout:   time.Second * 10,
		MaxHeaderBytes: 1024 * 10,
	}}
}
