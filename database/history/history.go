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

package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

const (
	DefaultRetention = 90 * 24 * time.Hour
	pruneInterval    = 24 * time.Hour
)

// Unique in-memory database names keep separate stores in one process apart
var memoryDbCounter atomic.Uint64

// Store is a sqlite-backed audit log of notification delivery attempts
type Store struct {
	db         *gorm.DB
	logger     *slog.Logger
	timerPrune *time.Timer
	timerMutex sync.Mutex
	pruneWG    sync.WaitGroup
	dataDir    string
	retention  time.Duration
	closed     bool
}

type StoreOptionFunc func(*Store)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) StoreOptionFunc {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithDataDir specifies the directory holding the sqlite file. An empty value
// keeps the log in memory
func WithDataDir(dataDir string) StoreOptionFunc {
	return func(s *Store) {
		s.dataDir = dataDir
	}
}

// WithRetention specifies how long entries are kept before the daily prune
// removes them
func WithRetention(retention time.Duration) StoreOptionFunc {
	return func(s *Store) {
		s.retention = retention
	}
}

// New opens the history store and migrates its schema
func New(opts ...StoreOptionFunc) (*Store, error) {
	s := &Store{
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var dsn string
	if s.dataDir == "" {
		dsn = fmt.Sprintf(
			"file:history%d?mode=memory&cache=shared",
			memoryDbCounter.Add(1),
		)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(s.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
			filepath.Join(s.dataDir, "history.sqlite"),
		)
	}
	db, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	s.db = db
	// Configure tracing for GORM
	if err := s.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, errors.Join(err, s.closeDb())
	}
	s.logger.Debug(
		fmt.Sprintf("creating table: %#v", &Entry{}),
		"component", "history",
	)
	if err := s.db.AutoMigrate(&Entry{}); err != nil {
		return nil, errors.Join(err, s.closeDb())
	}
	if s.retention > 0 {
		s.schedulePrune()
	}
	return s, nil
}

// Record inserts an entry. A zero CreatedAt is set to the current time
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if result := s.db.WithContext(ctx).Create(entry); result.Error != nil {
		return fmt.Errorf("failed to record history entry: %w", result.Error)
	}
	return nil
}

// List returns the most recent entries, newest first
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	var ret []Entry
	result := s.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// ListForProposal returns the most recent entries for a proposal, newest first
func (s *Store) ListForProposal(
	ctx context.Context,
	proposalKey string,
	limit int,
) ([]Entry, error) {
	var ret []Entry
	result := s.db.WithContext(ctx).
		Where("proposal_key = ?", proposalKey).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&ret)
	if result.Error != nil {
		return nil, result.Error
	}
	return ret, nil
}

// Prune deletes entries created before the cutoff and returns how many were
// removed
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("created_at < ?", before.UTC()).
		Delete(&Entry{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *Store) runPrune() {
	s.timerMutex.Lock()
	if s.closed {
		s.timerMutex.Unlock()
		return
	}
	// Track this prune while we know the store is open
	s.pruneWG.Add(1)
	s.timerMutex.Unlock()
	defer s.pruneWG.Done()
	count, err := s.Prune(context.Background(), time.Now().Add(-s.retention))
	if err != nil {
		s.logger.Error(
			"failed to prune notification history",
			"component", "history",
			"error", err,
		)
		return
	}
	s.logger.Debug(
		fmt.Sprintf("pruned %d notification history entries", count),
		"component", "history",
	)
}

func (s *Store) schedulePrune() {
	s.timerMutex.Lock()
	defer s.timerMutex.Unlock()
	if s.closed {
		return
	}
	if s.timerPrune != nil {
		s.timerPrune.Stop()
	}
	s.timerPrune = time.AfterFunc(pruneInterval, func() {
		// schedule next run
		defer s.schedulePrune()
		s.runPrune()
	})
}

// Close stops the prune timer and closes the database connection
func (s *Store) Close() error {
	s.timerMutex.Lock()
	s.closed = true
	if s.timerPrune != nil {
		s.timerPrune.Stop()
		s.timerPrune = nil
	}
	s.timerMutex.Unlock()
	// Wait for an in-flight prune to finish
	s.pruneWG.Wait()
	return s.closeDb()
}

func (s *Store) closeDb() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
