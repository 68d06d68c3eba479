package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sqlStore is the database/sql Repository shared by the SQLite and MySQL
// backends. Timestamps are stored as unix milliseconds so both dialects
// compare them the same way.
type sqlStore struct {
	db     *sql.DB
	name   string
	logger *zap.Logger
	now    func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newSQLStore(db *sql.DB, name string, schema []string, logger *zap.Logger, cleanupFreq time.Duration) (*sqlStore, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", name, err)
		}
	}

	s := &sqlStore{
		db:     db,
		name:   name,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go runCleanup(cleanupFreq, s.stopCh, logger, s.Cleanup)
	}
	return s, nil
}

func (s *sqlStore) Get(ctx context.Context, key string) (*Record, error) {
	var (
		id                 string
		payload            []byte
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, payload, created_at, expires_at
		FROM analysis_cache
		WHERE cache_key = ? AND expires_at > ?
	`, key, s.now().UnixMilli()).Scan(&id, &payload, &created, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query %s cache: %w", s.name, err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("corrupt record id %q: %w", id, err)
	}
	return &Record{
		Key:       key,
		ID:        parsed,
		Payload:   payload,
		CreatedAt: time.UnixMilli(created).UTC(),
		ExpiresAt: time.UnixMilli(expiresAt).UTC(),
	}, nil
}

func (s *sqlStore) Set(ctx context.Context, rec *Record) error {
	// REPLACE INTO is understood by both SQLite and MySQL.
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO analysis_cache (cache_key, id, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Key, rec.ID.String(), rec.Payload, rec.CreatedAt.UnixMilli(), rec.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert %s cache entry: %w", s.name, err)
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s cache entry: %w", s.name, err)
	}
	return nil
}

func (s *sqlStore) Cleanup(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analysis_cache WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to clean up expired %s entries: %w", s.name, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		s.logger.Warn("failed to get rows affected during cleanup", zap.Error(err))
	} else {
		s.logger.Debug("cleaned up expired cache entries", zap.String("backend", s.name), zap.Int64("expired_count", n))
	}
	return nil
}

func (s *sqlStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return s.db.Close()
}
