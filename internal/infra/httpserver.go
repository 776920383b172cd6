package infra

import (
	"context"
	"net/http"
	"time"
)

// GenerateDeadlineMargin is added to GenerateBudget for the handler deadline.
// It stays below the extra minute given to WriteTimeout so the handler can
// cancel remote jobs and answer before the server drops the connection.
const GenerateDeadlineMargin = 30 * time.Second

// GenerateDeadline is the context deadline for one /v1/generate call.
func GenerateDeadline(cfg *Config) time.Duration {
	return cfg.GenerateBudget() + GenerateDeadlineMargin
}

// HTTPServer wraps http.Server to provide graceful startup and shutdown helpers.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer creates the API server. WriteTimeout must exceed the whole
// fallback chain because /v1/generate holds the connection until it ends.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	if budget := cfg.GenerateBudget(); srv.WriteTimeout > 0 && srv.WriteTimeout <= budget+GenerateDeadlineMargin {
		srv.WriteTimeout = budget + time.Minute
	}

	return &HTTPServer{server: srv}
}

// Start runs the HTTP server in the current goroutine.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
