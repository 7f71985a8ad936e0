// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

// Package scheduler drives the fixed set of periodic tasks described in
// spec.md §4.3: per-(platform, loop-kind) discovery and liveness polling,
// plus daily/hourly maintenance. It generalizes
// internal/supervisor/tree.go's three-layer suture.Supervisor pattern from
// hardcoded data/messaging/api layers to queue-labeled layers
// (discovery, liveness, maintenance), each isolating failures in one queue
// from the others.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/streamaggregator/internal/logging"
)

// Config tunes the supervisor tree's failure-handling knobs. Mirrors
// supervisor.TreeConfig (internal/supervisor/tree.go) with defaults
// matching suture's own.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultConfig returns suture's documented defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Scheduler is the task runtime's supervisor tree: one root supervisor with
// three queue-labeled children. discoveryTask and livenessTask instances
// are added per (platform, loop-kind); maintenance cron entries are added
// once each.
type Scheduler struct {
	root        *suture.Supervisor
	discovery   *suture.Supervisor
	liveness    *suture.Supervisor
	maintenance *suture.Supervisor
}

// New builds the supervisor tree. Callers add tasks via AddDiscovery,
// AddLiveness, and AddMaintenance before calling Serve.
func New(cfg Config) *Scheduler {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: slog.New(newZerologHandler(logging.Logger()))}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	root := suture.New("scheduler", rootSpec)
	discovery := suture.New("discovery-queue", childSpec)
	liveness := suture.New("liveness-queue", childSpec)
	maintenance := suture.New("maintenance-queue", childSpec)

	root.Add(discovery)
	root.Add(liveness)
	root.Add(maintenance)

	return &Scheduler{root: root, discovery: discovery, liveness: liveness, maintenance: maintenance}
}

// AddDiscovery adds a service to the discovery-queue supervisor.
func (s *Scheduler) AddDiscovery(svc suture.Service) suture.ServiceToken {
	return s.discovery.Add(svc)
}

// AddLiveness adds a service to the liveness-queue supervisor.
func (s *Scheduler) AddLiveness(svc suture.Service) suture.ServiceToken {
	return s.liveness.Add(svc)
}

// AddMaintenance adds a service to the maintenance-queue supervisor.
func (s *Scheduler) AddMaintenance(svc suture.Service) suture.ServiceToken {
	return s.maintenance.Add(svc)
}

// Serve starts the supervisor tree and blocks until ctx is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	return s.root.Serve(ctx)
}

// Root returns the scheduler's root supervisor, letting cmd/server nest it
// as one child of an outer process-level supervisor alongside the ops HTTP
// surface (internal/supervisor/tree.go's Root() serves the same purpose for
// the teacher's tree).
func (s *Scheduler) Root() *suture.Supervisor {
	return s.root
}
