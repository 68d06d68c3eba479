package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_cache (
		cache_key  TEXT PRIMARY KEY,
		id         TEXT NOT NULL,
		payload    BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_cache_expires_at ON analysis_cache(expires_at)`,
}

// NewSQLite opens (or creates) the cache database at path.
func NewSQLite(path string, logger *zap.Logger, cleanupFreq time.Duration) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)
	return newSQLStore(db, "sqlite", sqliteSchema, logger, cleanupFreq)
}
