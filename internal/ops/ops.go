// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Package ops provides the ingestion engine's operator-facing HTTP surface:
// /healthz, /metrics, and /debug/connectors. This is not a client-facing
// feed API (see spec.md Non-goals) — it exists so an operator or a
// monitoring system can tell the engine is alive, scrape its Prometheus
// series, and inspect each connector's governor state without a database
// client (spec.md §7, §10).
package ops

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/streamaggregator/internal/catalog"
	"github.com/tomtom215/streamaggregator/internal/catalog/model"
	"github.com/tomtom215/streamaggregator/internal/config"
	"github.com/tomtom215/streamaggregator/internal/connector"
)

// pinger is the optional capability catalog.Store implementations may
// expose to let /healthz verify the underlying connection, not just that
// the process is up. catalog.DB satisfies this; the Store interface itself
// does not require it, so for a test double without a Ping method the type
// assertion in handleHealthz fails and the ping is skipped.
type pinger interface {
	Ping(ctx context.Context) error
}

// Router builds the ops HTTP surface. store and governors are read-only
// from this package's perspective: Router never writes catalog state.
func Router(store catalog.Store, governors map[model.Platform]*connector.Governor) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	r.Get("/healthz", handleHealthz(store))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/connectors", handleDebugConnectors(governors))

	return r
}

func handleHealthz(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p, ok := store.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// handleDebugConnectors serves the get_status_info snapshot
// (original_source/backend/connectors/base.py, spec.md §10) for every
// configured platform, sorted for stable output.
func handleDebugConnectors(governors map[model.Platform]*connector.Governor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platforms := make([]model.Platform, 0, len(governors))
		for p := range governors {
			platforms = append(platforms, p)
		}
		sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

		snapshot := make([]connector.StatusInfo, 0, len(platforms))
		for _, p := range platforms {
			snapshot = append(snapshot, governors[p].StatusInfo())
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(snapshot)
	}
}

// NewHTTPServer builds the underlying *http.Server from config.ServerConfig,
// ready to be wrapped by Service.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	addr := cfg.Host
	if cfg.Port != 0 {
		addr = addr + ":" + strconv.Itoa(cfg.Port)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}
}
