package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS analysis_cache (
		cache_key  VARCHAR(128) PRIMARY KEY,
		id         CHAR(36) NOT NULL,
		payload    LONGBLOB NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL,
		INDEX idx_expires_at (expires_at)
	)`,
}

const defaultMySQLTimeout = 5 * time.Second

// mysqlConfig parses dsn and fills connection timeouts the DSN left unset.
func mysqlConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultMySQLTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultMySQLTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultMySQLTimeout
	}
	return cfg, nil
}

// NewMySQL connects to dsn and ensures the cache table exists.
func NewMySQL(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (Repository, error) {
	cfg, err := mysqlConfig(dsn)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	db := sql.OpenDB(connector)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}
	return newSQLStore(db, "mysql", mysqlSchema, logger, cleanupFreq)
}
