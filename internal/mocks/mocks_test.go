package mocks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Billy-Davies-2/frc-line-service/internal/models"
	"github.com/Billy-Davies-2/frc-line-service/internal/valuation"
)

func prediction(matchID string, at time.Time) *models.Prediction {
	cfg := valuation.DefaultConfig()
	red := valuation.AggregateAlliance(models.SideRed, []valuation.TeamInput{valuation.Team("254", 1, 50, 0.5)}, cfg)
	blue := valuation.AggregateAlliance(models.SideBlue, []valuation.TeamInput{valuation.Team("971", 4, 30, 0.5)}, cfg)
	return &models.Prediction{
		MatchID:   matchID,
		Red:       red,
		Blue:      blue,
		Line:      valuation.SuggestLine(red, blue, cfg),
		CreatedAt: at,
	}
}

func TestMockClickHouseHistory(t *testing.T) {
	m := NewMockClickHouseClient()
	ctx := context.Background()
	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := m.RecordPrediction(ctx, prediction("qm1", start.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("RecordPrediction() failed: %v", err)
		}
	}
	if err := m.RecordPrediction(ctx, prediction("qm2", start)); err != nil {
		t.Fatal(err)
	}

	history, err := m.MatchHistory(ctx, "qm1", 0)
	if err != nil {
		t.Fatalf("MatchHistory() failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(history))
	}
	if !history[0].RecordedAt.Equal(start) {
		t.Errorf("expected oldest first, got %v", history[0].RecordedAt)
	}
	if history[0].BaseLine != 40 {
		t.Errorf("expected base line 40, got %v", history[0].BaseLine)
	}
	if history[0].RedLine <= history[0].BlueLine {
		t.Errorf("stronger red alliance should carry the higher line: %+v", history[0])
	}

	limited, _ := m.MatchHistory(ctx, "qm1", 2)
	if len(limited) != 2 {
		t.Errorf("expected 2 snapshots with limit, got %d", len(limited))
	}

	none, _ := m.MatchHistory(ctx, "sf1", 0)
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil history, got %v", none)
	}
}

func TestMockPostgresDAL(t *testing.T) {
	d, err := NewMockPostgresDAL(filepath.Join(t.TempDir(), "mock.sqlite"))
	if err != nil {
		t.Fatalf("NewMockPostgresDAL() failed: %v", err)
	}
	defer d.Close()

	bet, err := d.PlaceBet(&models.Bet{
		User:             "alice",
		MatchID:          "qm1",
		AllianceSide:     models.SideBlue,
		Amount:           10,
		BetType:          models.BetUnder,
		Line:             40,
		PayoutMultiplier: 1.1,
	})
	if err != nil {
		t.Fatalf("PlaceBet() failed: %v", err)
	}
	if bet.ID != 1 {
		t.Errorf("expected first id 1, got %d", bet.ID)
	}

	got, err := d.GetBet(bet.ID)
	if err != nil {
		t.Fatalf("GetBet() failed: %v", err)
	}
	if got.BetType != models.BetUnder {
		t.Errorf("expected under bet, got %s", got.BetType)
	}
}
