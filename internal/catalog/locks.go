// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package catalog

import "sync"

// acquireKeyLock locks a per-logical-row mutex for key, mirroring
// internal/database.go's acquireIPLock/releaseIPLock. Concurrent upserts to
// the same (platform, platform_channel_id) or (channel_id,
// platform_stream_id) pair serialize here instead of racing inside DuckDB,
// which is the fix for the INTERNAL errors DuckDB raises under concurrent
// same-row writes.
func (db *DB) acquireKeyLock(key string) *sync.Mutex {
	muAny, _ := db.keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu
}

func (db *DB) releaseKeyLock(mu *sync.Mutex) {
	mu.Unlock()
}
