// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultBlockCacheSize   uint64 = 64 << 20
	DefaultIndexCacheSize   uint64 = 16 << 20
	DefaultValueLogFileSize int64  = 64 << 20
	DefaultMemTableSize     int64  = 16 << 20

	defaultGcInterval = 5 * time.Minute
	// Number of attempts for a read-modify-write that loses a conflict
	maxUpdateAttempts = 8
)

// Database is the durable store holding proposal, governance and realm records
// plus bot bookkeeping. Every record write is a single badger transaction, so
// a crash never leaves a partially written record
type Database struct {
	promRegistry     prometheus.Registerer
	db               *badger.DB
	logger           *slog.Logger
	metrics          *databaseMetrics
	gcTicker         *time.Ticker
	gcStopCh         chan struct{}
	dataDir          string
	gcWg             sync.WaitGroup
	gcInterval       time.Duration
	blockCacheSize   uint64
	indexCacheSize   uint64
	valueLogFileSize int64
	memTableSize     int64
	gcEnabled        bool
}

// New opens the database. An empty data dir selects an in-memory store
func New(opts ...DatabaseOptionFunc) (*Database, error) {
	d := &Database{
		gcEnabled:        true,
		gcInterval:       defaultGcInterval,
		blockCacheSize:   DefaultBlockCacheSize,
		indexCacheSize:   DefaultIndexCacheSize,
		valueLogFileSize: DefaultValueLogFileSize,
		memTableSize:     DefaultMemTableSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var badgerOpts badger.Options
	if d.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").
			WithInMemory(true)
		// Nothing to reclaim without a value log on disk
		d.gcEnabled = false
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(d.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(d.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(d.dataDir, "state")).
			WithBlockCacheSize(int64(d.blockCacheSize)). //nolint:gosec // configured sizes are small
			WithIndexCacheSize(int64(d.indexCacheSize)). //nolint:gosec // configured sizes are small
			WithValueLogFileSize(d.valueLogFileSize).
			WithMemTableSize(d.memTableSize).
			WithCompression(options.Snappy).
			// Every committed record must survive a crash
			WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.
		WithLogger(NewBadgerLogger(d.logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	d.db = db
	d.init()
	return d, nil
}

func (d *Database) init() {
	if d.promRegistry != nil {
		d.metrics = newDatabaseMetrics(d.promRegistry)
	}
	if d.gcEnabled {
		d.gcTicker = time.NewTicker(d.gcInterval)
		d.gcStopCh = make(chan struct{})
		d.gcWg.Add(1)
		go d.valueLogGc(d.gcTicker, d.gcStopCh)
	}
}

func (d *Database) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer d.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := d.db.RunValueLogGC(0.5)
			if err != nil {
				// Log any actual errors
				if !errors.Is(err, badger.ErrNoRewrite) {
					d.logger.Warn(
						fmt.Sprintf("value log GC failure: %s", err),
						"component", "database",
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// Logger returns the logger instance
func (d *Database) Logger() *slog.Logger {
	return d.logger
}

// Close stops background GC and closes the underlying badger handle
func (d *Database) Close() error {
	if d.gcTicker != nil {
		d.gcTicker.Stop()
		if d.gcStopCh != nil {
			close(d.gcStopCh)
			d.gcStopCh = nil
		}
		// Wait for GC goroutine to finish
		d.gcWg.Wait()
		d.gcTicker = nil
	}
	var err error
	if d.db != nil {
		// The in-memory store has no value log to sync
		if !d.db.Opts().InMemory {
			err = errors.Join(err, d.db.Sync())
		}
		err = errors.Join(err, d.db.Close())
	}
	return err
}

// view runs fn in a read-only transaction
func (d *Database) view(op string, fn func(txn *badger.Txn) error) error {
	err := d.db.View(fn)
	d.observe(op, err)
	return err
}

// update runs fn in a read-write transaction, retrying when badger reports a
// conflict with a concurrent writer
func (d *Database) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxUpdateAttempts {
		err = d.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		if d.metrics != nil {
			d.metrics.conflicts.Inc()
		}
		d.logger.Debug(
			"transaction conflict, retrying",
			"component", "database",
			"operation", op,
		)
	}
	if errors.Is(err, badger.ErrConflict) {
		err = fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}
	d.observe(op, err)
	return err
}

func (d *Database) observe(op string, err error) {
	if d.metrics == nil {
		return
	}
	result := "ok"
	if err != nil && !errors.Is(err, ErrNotFound) {
		result = "error"
	}
	d.metrics.operations.WithLabelValues(op, result).Inc()
}
