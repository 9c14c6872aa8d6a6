package mocks

import (
	"context"
	"sync"

	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
	"github.com/Billy-Davies-2/frc-line-service/internal/models"
)

// MockClickHouseClient keeps line snapshots in memory for local development
type MockClickHouseClient struct {
	mu        sync.RWMutex
	snapshots map[string][]models.LineSnapshot
}

// NewMockClickHouseClient creates a mock ClickHouse client
func NewMockClickHouseClient() *MockClickHouseClient {
	logger.Info("Using MOCK ClickHouse client for local development")

	return &MockClickHouseClient{
		snapshots: make(map[string][]models.LineSnapshot),
	}
}

// RecordPrediction appends a snapshot of the prediction
func (m *MockClickHouseClient) RecordPrediction(_ context.Context, p *models.Prediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[p.MatchID] = append(m.snapshots[p.MatchID], p.Snapshot())
	return nil
}

// MatchHistory returns up to limit of the match's first snapshots in
// insertion order; limit <= 0 returns all of them.
func (m *MockClickHouseClient) MatchHistory(_ context.Context, matchID string, limit int) ([]models.LineSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.snapshots[matchID]
	if limit > 0 && len(src) > limit {
		src = src[:limit]
	}

	out := make([]models.LineSnapshot, len(src))
	copy(out, src)
	return out, nil
}

// Ping always succeeds
func (m *MockClickHouseClient) Ping(context.Context) error {
	return nil
}

// Close is a no-op for mock client
func (m *MockClickHouseClient) Close() error {
	return nil
}
