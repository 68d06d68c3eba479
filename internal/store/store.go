package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotFound is returned for missing or expired keys.
var ErrNotFound = errors.New("store: record not found")

// Record is one cached analysis payload.
type Record struct {
	Key       string
	ID        uuid.UUID
	Payload   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewRecord stamps payload with a fresh id and an expiry ttl from now.
func NewRecord(key string, payload []byte, ttl time.Duration) *Record {
	now := time.Now().UTC()
	return &Record{
		Key:       key,
		ID:        uuid.New(),
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Repository caches analysis results. Implementations are safe for
// concurrent use.
type Repository interface {
	// Get returns ErrNotFound for unknown or expired keys.
	Get(ctx context.Context, key string) (*Record, error)
	// Set inserts or replaces the record under rec.Key.
	Set(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, key string) error
	// Cleanup removes expired records.
	Cleanup(ctx context.Context) error
	// Close stops background cleanup and releases resources.
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Type             string // memory, sqlite or mysql
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
}

// New builds the repository named by opts.Type.
func New(opts Options, logger *zap.Logger) (Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch opts.Type {
	case "", "memory":
		return NewMemory(logger, opts.CleanupFrequency), nil
	case "sqlite":
		if dir := filepath.Dir(opts.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
			}
		}
		return NewSQLite(opts.SQLitePath, logger, opts.CleanupFrequency)
	case "mysql":
		return NewMySQL(opts.MySQLDSN, logger, opts.CleanupFrequency)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", opts.Type)
	}
}

// runCleanup calls cleanup every freq until stop is closed.
func runCleanup(freq time.Duration, stop <-chan struct{}, logger *zap.Logger, cleanup func(context.Context) error) {
	ticker := time.NewTicker(freq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := cleanup(context.Background()); err != nil {
				logger.Error("failed to clean up cache", zap.Error(err))
			}
		case <-stop:
			return
		}
	}
}
