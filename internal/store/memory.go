package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Memory is an in-process Repository.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	logger  *zap.Logger
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemory creates the store. A positive cleanupFreq starts a background
// sweeper; expired records are never returned either way.
func NewMemory(logger *zap.Logger, cleanupFreq time.Duration) *Memory {
	m := &Memory{
		records: make(map[string]Record),
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if cleanupFreq > 0 {
		go runCleanup(cleanupFreq, m.stopCh, logger, m.Cleanup)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(rec.ExpiresAt) {
		return nil, ErrNotFound
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	return &rec, nil
}

func (m *Memory) Set(_ context.Context, rec *Record) error {
	stored := *rec
	stored.Payload = append([]byte(nil), rec.Payload...)

	m.mu.Lock()
	m.records[rec.Key] = stored
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Cleanup(_ context.Context) error {
	now := m.now()
	expired := 0

	m.mu.Lock()
	for k, rec := range m.records {
		if !now.Before(rec.ExpiresAt) {
			delete(m.records, k)
			expired++
		}
	}
	m.mu.Unlock()

	m.logger.Debug("cleaned up expired cache entries", zap.Int("expired_count", expired))
	return nil
}

func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}
