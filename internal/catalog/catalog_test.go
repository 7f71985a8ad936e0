// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package catalog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tomtom215/streamaggregator/internal/config"
)

// testDBMutex serializes DuckDB connection creation across tests, mirroring
// internal/database_test.go's setupTestDB — concurrent CGO opens against
// separate in-memory databases have been observed to contend badly.
var testDBMutex sync.Mutex

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBMutex.Lock()
	db, err := New(config.CatalogConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	testDBMutex.Unlock()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
