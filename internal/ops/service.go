// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// httpServer matches *http.Server's lifecycle methods, letting Service work
// against a fake in tests without a real listener.
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Service adapts an *http.Server's blocking ListenAndServe/Shutdown
// lifecycle to suture.Service, the same shape the scheduler's queues use
// (internal/supervisor/services/http_service.go), so the ops surface can
// sit in the same supervisor tree as the discovery/liveness/maintenance
// queues rather than running as a bare goroutine main() has to babysit.
type Service struct {
	server          httpServer
	shutdownTimeout time.Duration
}

// NewService wraps server as a suture.Service. shutdownTimeout bounds how
// long Serve waits for in-flight requests to drain on shutdown.
func NewService(server *http.Server, shutdownTimeout time.Duration) *Service {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &Service{server: server, shutdownTimeout: shutdownTimeout}
}

func (s *Service) String() string { return "ops-http" }

// Serve implements suture.Service: runs ListenAndServe in a goroutine,
// then shuts down gracefully on context cancellation.
func (s *Service) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops: http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops: http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}
