package dal

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Billy-Davies-2/frc-line-service/internal/models"
)

// SQLiteDAL implements BetDAL using SQLite
type SQLiteDAL struct {
	db *sql.DB
}

// NewSQLiteDAL creates a new SQLite bet ledger
func NewSQLiteDAL(dbPath string) (*SQLiteDAL, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection also keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	dal := &SQLiteDAL{db: db}

	if err := dal.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return dal, nil
}

func (s *SQLiteDAL) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ref TEXT NOT NULL UNIQUE,
		user_name TEXT NOT NULL,
		match_id TEXT NOT NULL,
		alliance_side TEXT NOT NULL,
		amount REAL NOT NULL,
		bet_type TEXT NOT NULL,
		line REAL NOT NULL,
		payout_multiplier REAL NOT NULL,
		ts INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bets_match_id ON bets(match_id);
	CREATE INDEX IF NOT EXISTS idx_bets_user_name ON bets(user_name);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create bets schema: %w", err)
	}

	return nil
}

func (s *SQLiteDAL) PlaceBet(bet *models.Bet) (*models.Bet, error) {
	placed := *bet
	if placed.Ref == "" {
		placed.Ref = uuid.NewString()
	}
	placed.Timestamp = time.Now().UTC()

	result, err := s.db.Exec(`
		INSERT INTO bets (ref, user_name, match_id, alliance_side, amount, bet_type, line, payout_multiplier, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, placed.Ref, placed.User, placed.MatchID, placed.AllianceSide, placed.Amount,
		string(placed.BetType), placed.Line, placed.PayoutMultiplier, placed.Timestamp.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert bet: %w", err)
	}

	placed.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &placed, nil
}

func (s *SQLiteDAL) GetBet(id int64) (*models.Bet, error) {
	row := s.db.QueryRow(`
		SELECT id, ref, user_name, match_id, alliance_side, amount, bet_type, line, payout_multiplier, ts
		FROM bets WHERE id = ?
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

func (s *SQLiteDAL) ListBets(filter models.BetFilter) ([]models.Bet, error) {
	query, args := buildListQuery(filter, func(int) string { return "?" })

	rows, err := s.db.Query(query, args...)
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

func (s *SQLiteDAL) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteDAL) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBet(row rowScanner) (*models.Bet, error) {
	var bet models.Bet
	var betType string
	var ts int64

	err := row.Scan(&bet.ID, &bet.Ref, &bet.User, &bet.MatchID, &bet.AllianceSide,
		&bet.Amount, &betType, &bet.Line, &bet.PayoutMultiplier, &ts)
	if err != nil {
		return nil, err
	}

	bet.BetType = models.BetType(betType)
	bet.Timestamp = time.UnixMilli(ts).UTC()
	return &bet, nil
}

// buildListQuery renders the ledger listing for a filter. placeholder
// returns the driver's bind syntax for the n-th argument (1-based).
func buildListQuery(filter models.BetFilter, placeholder func(n int) string) (string, []any) {
	var where []string
	var args []any

	if filter.MatchID != "" {
		args = append(args, filter.MatchID)
		where = append(where, "match_id = "+placeholder(len(args)))
	}
	if filter.User != "" {
		args = append(args, filter.User)
		where = append(where, "user_name = "+placeholder(len(args)))
	}

	query := `SELECT id, ref, user_name, match_id, alliance_side, amount, bet_type, line, payout_multiplier, ts FROM bets`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT " + placeholder(len(args))
	}

	return query, args
}
