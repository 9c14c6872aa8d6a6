package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
	"github.com/Billy-Davies-2/frc-line-service/internal/models"
)

// PostgresDAL implements BetDAL using PostgreSQL
type PostgresDAL struct {
	db *sql.DB
}

// NewPostgresDAL creates a new PostgreSQL bet ledger optimized for CloudNativePG
func NewPostgresDAL(connString string) (*PostgresDAL, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}

	// CloudNativePG default max_connections is 100
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute) // recycle across failovers
	db.SetConnMaxIdleTime(1 * time.Minute)

	// Retry the first ping: Kubernetes DNS can lag behind pod startup
	maxRetries := 5
	retryDelay := 5 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		lastErr = db.PingContext(ctx)
		cancel()

		if lastErr == nil {
			break
		}

		logger.Warn("Postgres ping failed", "attempt", i+1, "error", lastErr)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	if lastErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres after %d retries: %w", maxRetries, lastErr)
	}

	dal := &PostgresDAL{db: db}

	if err := dal.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return dal, nil
}

func (p *PostgresDAL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bets (
		id BIGSERIAL PRIMARY KEY,
		ref UUID NOT NULL UNIQUE,
		user_name TEXT NOT NULL,
		match_id TEXT NOT NULL,
		alliance_side TEXT NOT NULL,
		amount DOUBLE PRECISION NOT NULL,
		bet_type TEXT NOT NULL,
		line DOUBLE PRECISION NOT NULL,
		payout_multiplier DOUBLE PRECISION NOT NULL,
		ts BIGINT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_bets_match_id ON bets(match_id);
	CREATE INDEX IF NOT EXISTS idx_bets_user_name ON bets(user_name);
	`

	if _, err := p.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create bets schema: %w", err)
	}

	return nil
}

func (p *PostgresDAL) PlaceBet(bet *models.Bet) (*models.Bet, error) {
	placed := *bet
	if placed.Ref == "" {
		placed.Ref = uuid.NewString()
	}
	placed.Timestamp = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.db.QueryRowContext(ctx, `
		INSERT INTO bets (ref, user_name, match_id, alliance_side, amount, bet_type, line, payout_multiplier, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, placed.Ref, placed.User, placed.MatchID, placed.AllianceSide, placed.Amount,
		string(placed.BetType), placed.Line, placed.PayoutMultiplier, placed.Timestamp.UnixMilli()).Scan(&placed.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bet: %w", err)
	}

	return &placed, nil
}

func (p *PostgresDAL) GetBet(id int64) (*models.Bet, error) {
	row := p.db.QueryRow(`
		SELECT id, ref, user_name, match_id, alliance_side, amount, bet_type, line, payout_multiplier, ts
		FROM bets WHERE id = $1
	`, id)

	bet, err := scanBet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBetNotFound
	}
	if err != nil {
		return nil, err
	}

	return bet, nil
}

func (p *PostgresDAL) ListBets(filter models.BetFilter) ([]models.Bet, error) {
	query, args := buildListQuery(filter, func(n int) string { return "$" + strconv.Itoa(n) })

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bets := []models.Bet{}
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, *bet)
	}

	return bets, rows.Err()
}

func (p *PostgresDAL) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *PostgresDAL) Close() error {
	return p.db.Close()
}
