package mocks

import (
	"github.com/Billy-Davies-2/frc-line-service/internal/dal"
	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
)

// MockPostgresDAL stands in for the Postgres ledger with SQLite during
// local development
type MockPostgresDAL struct {
	dal.BetDAL
}

// NewMockPostgresDAL creates a mock Postgres ledger backed by sqliteFile
func NewMockPostgresDAL(sqliteFile string) (*MockPostgresDAL, error) {
	logger.Info("Using MOCK Postgres (SQLite) for local development", "file", sqliteFile)

	ledger, err := dal.NewSQLiteDAL(sqliteFile)
	if err != nil {
		return nil, err
	}

	return &MockPostgresDAL{BetDAL: ledger}, nil
}
