// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package catalog

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/streamaggregator/internal/logging"
)

// isTransactionConflict reports whether err is a DuckDB optimistic
// concurrency conflict, which is safe to retry.
func isTransactionConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Transaction conflict") ||
		strings.Contains(msg, "Conflict on update") ||
		strings.Contains(msg, "cannot update a table that has been altered")
}

// isInternalError reports whether err is a DuckDB INTERNAL error, which
// indicates a bug (e.g. a missed per-key lock) rather than expected
// contention, and is never retried.
func isInternalError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "INTERNAL Error")
}

// withRetry runs fn, retrying up to 3 attempts with 1ms then 2ms backoff on
// a transaction conflict, per spec.md §7's catalog-write-failure handling.
// An internal error is returned immediately as fatal.
func withRetry(ctx context.Context, fn func() error) error {
	const maxAttempts = 3
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if isInternalError(err) {
			return err
		}
		if !isTransactionConflict(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}

		backoff := time.Millisecond * time.Duration(1<<uint(attempt))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("catalog: failed to close resource")
	}
}
