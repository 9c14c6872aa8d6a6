package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Billy-Davies-2/frc-line-service/internal/models"
)

// Client records every prediction to ClickHouse so line movement can be
// charted per match.
type Client struct {
	conn driver.Conn
}

// NewClient creates a new ClickHouse client and ensures the snapshot table exists
func NewClient(addr, database, username, password string) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	c := &Client{conn: conn}
	if err := c.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return c, nil
}

// EnsureSchema creates the line_snapshots table if needed
func (c *Client) EnsureSchema(ctx context.Context) error {
	err := c.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS line_snapshots (
			match_id    String,
			base_line   Float64,
			match_line  Float64,
			red_line    Float64,
			blue_line   Float64,
			red_value   Float64,
			blue_value  Float64,
			red_payout  Float64,
			blue_payout Float64,
			recorded_at DateTime64(3, 'UTC')
		)
		ENGINE = MergeTree
		ORDER BY (match_id, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create line_snapshots: %w", err)
	}
	return nil
}

// RecordPrediction appends one snapshot of the prediction
func (c *Client) RecordPrediction(ctx context.Context, p *models.Prediction) error {
	s := p.Snapshot()

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO line_snapshots")
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot batch: %w", err)
	}

	if err := batch.Append(
		s.MatchID,
		s.BaseLine,
		s.MatchLine,
		s.RedLine,
		s.BlueLine,
		s.RedValue,
		s.BlueValue,
		s.RedPayout,
		s.BluePayout,
		s.RecordedAt,
	); err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}

	return batch.Send()
}

// MatchHistory returns the recorded snapshots for a match, oldest first.
// limit <= 0 returns every snapshot.
func (c *Client) MatchHistory(ctx context.Context, matchID string, limit int) ([]models.LineSnapshot, error) {
	query := `
		SELECT match_id, base_line, match_line, red_line, blue_line,
			red_value, blue_value, red_payout, blue_payout, recorded_at
		FROM line_snapshots
		WHERE match_id = ?
		ORDER BY recorded_at ASC
	`
	args := []any{matchID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []models.LineSnapshot{}
	for rows.Next() {
		var s models.LineSnapshot
		if err := rows.Scan(
			&s.MatchID, &s.BaseLine, &s.MatchLine, &s.RedLine, &s.BlueLine,
			&s.RedValue, &s.BlueValue, &s.RedPayout, &s.BluePayout, &s.RecordedAt,
		); err != nil {
			return nil, err
		}
		history = append(history, s)
	}

	return history, rows.Err()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close closes the ClickHouse connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
