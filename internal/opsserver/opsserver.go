// Package opsserver exposes the router's operational surface: a health
// endpoint reporting per-venue active/inactive state and a Prometheus
// scrape endpoint. This is not the (out-of-scope) HTTP frontend that
// decodes quote/swap requests — it is the small ops mux spec §1 leaves as
// an external collaborator's concern but that every long-lived service in
// this corpus still carries. Grounded on the teacher's
// internal/interfaces/http/server.go (gorilla/mux, a request-ID and
// logging middleware chain, graceful Shutdown) rewritten against the
// registry/metrics this router actually owns instead of CryptoRun's
// candidates/explain/regime handlers.
package opsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sawpanic/dexrouter/internal/registry"
)

// Server is the router's ops-only HTTP surface: /healthz and /metrics.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// New builds a Server bound to addr, reporting reg's venue health and
// scraping promReg's collectors.
func New(addr string, reg *registry.Registry, promReg *prometheus.Registry, log zerolog.Logger) *Server {
	log = log.With().Str("component", "opsserver").Logger()
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware(log))

	router.HandleFunc("/healthz", healthHandler(reg)).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &Server{
		log: log,
		http: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Run starts serving and blocks until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.http.Addr).Msg("ops server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type healthVenue struct {
	Key    string `json:"key"`
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
}

type healthResponse struct {
	Venues []healthVenue `json:"venues"`
}

// healthHandler reports every registered venue with Active set from its
// breaker alone (closed or half-open reads as active), looked up venue by
// venue after one All() snapshot. Unlike the strategy scan it does not
// consult the adapter's own IsActive, so a venue that was never primed
// can show as active here while the scan skips it.
func healthHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := reg.All()
		resp := healthResponse{Venues: make([]healthVenue, 0, len(all))}
		for _, v := range all {
			resp.Venues = append(resp.Venues, healthVenue{
				Key:    v.Key().String(),
				Kind:   v.Kind().String(),
				Active: reg.IsActive(v.Key()),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().
				Str("request_id", r.Context().Value(requestIDKey{}).(string)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("ops request")
		})
	}
}
