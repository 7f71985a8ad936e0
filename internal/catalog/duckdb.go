// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/streamaggregator/internal/config"
	"github.com/tomtom215/streamaggregator/internal/logging"
)

// DB is the DuckDB-backed Store implementation.
//
// Unlike the teacher's database.DB, this store needs none of DuckDB's
// spatial/inet/icu/json/sqlite extensions — the schema is plain scalar
// columns plus a LIST(VARCHAR) for matched_keywords — so extension
// preloading is skipped entirely (see DESIGN.md).
type DB struct {
	conn *sql.DB

	// keyLocks serializes concurrent writers to the same logical row,
	// mirroring internal/database.go's ipLocks sync.Map.
	keyLocks sync.Map
}

var _ Store = (*DB)(nil)

// New opens (creating if absent) the catalog database at cfg.Path,
// configures the connection pool, and creates the schema if it does not
// already exist.
func New(cfg config.CatalogConfig) (*DB, error) {
	if cfg.Path != ":memory:" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("catalog: create database directory %s: %w", dbDir, err)
			}
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "2GB"
	}
	preserveOrder := "false"
	if cfg.PreserveInsertionOrder {
		preserveOrder = "true"
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, maxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}

	conn.SetMaxOpenConns(threads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("catalog: initialize schema: %w", err)
	}

	return db, nil
}

// initialize creates the schema and flushes the WAL so a subsequent
// restart doesn't replay a half-applied DDL batch.
func (db *DB) initialize() error {
	if err := db.createTables(); err != nil {
		return err
	}
	if err := db.createIndexes(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("catalog: checkpoint after schema init failed")
	}
	return nil
}

// Conn returns the underlying *sql.DB, for direct access outside the Store
// interface.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// ensureContext wraps ctx with a 30-second timeout if it has none.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 30*time.Second)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, 30*time.Second)
	}
	return ctx, func() {}
}

// Checkpoint forces a WAL checkpoint.
func (db *DB) Checkpoint(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("catalog: checkpoint: %w", err)
	}
	return nil
}

// Ping checks that the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the connection pool.
func (db *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("catalog: checkpoint before close failed")
	}
	return db.conn.Close()
}
