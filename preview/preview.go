// Package preview serves the site directory over HTTP so generated pages
// can be opened in a browser before publishing. It is read-only and does
// no server-side redirects: the pages redirect themselves.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/purl/registry"
)

// Server is the preview HTTP server.
type Server struct {
	siteDir  string
	registry string
	logger   *slog.Logger
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the router for siteDir. registryPath is exposed read-only at
// /registry.csv.
func New(siteDir, registryPath string, opts ...Option) *Server {
	s := &Server{siteDir: siteDir, registry: registryPath, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(s.logger))
	r.Use(middleware.GetHead)
	r.Use(SecurityHeaders(DefaultHeaders()))

	r.Get("/healthz", s.handleHealth)
	r.Get("/registry.csv", s.handleRegistry)
	r.With(HideDotfiles).Handle("/*", http.FileServer(http.Dir(siteDir)))
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("preview: listening", "addr", addr, "dir", s.siteDir)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("preview: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if store, err := registry.Open(s.registry); err != nil {
		status["status"] = "degraded"
		status["error"] = err.Error()
	} else {
		status["entries"] = store.Len()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(s.registry)
	if err != nil {
		LoggerFrom(r.Context()).Warn("preview: registry unavailable", "error", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		http.Error(w, "stat registry", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	http.ServeContent(w, r, "registry.csv", fi.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
