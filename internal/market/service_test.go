package market

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Billy-Davies-2/frc-line-service/internal/cache"
	"github.com/Billy-Davies-2/frc-line-service/internal/dal"
	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
	"github.com/Billy-Davies-2/frc-line-service/internal/metrics"
	"github.com/Billy-Davies-2/frc-line-service/internal/mocks"
	"github.com/Billy-Davies-2/frc-line-service/internal/models"
	"github.com/Billy-Davies-2/frc-line-service/internal/pubsub"
	"github.com/Billy-Davies-2/frc-line-service/internal/valuation"
)

func init() {
	logger.Init()
}

var fixedNow = time.Date(2026, 4, 18, 14, 30, 0, 0, time.UTC)

type testEnv struct {
	svc       *Service
	events    chan pubsub.Event
	analytics *mocks.MockClickHouseClient
	metrics   *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	bus := pubsub.New()
	env := &testEnv{
		events:    bus.Subscribe(),
		analytics: mocks.NewMockClickHouseClient(),
		metrics:   metrics.New(),
	}
	env.svc = NewService(Options{
		Valuation: valuation.DefaultConfig(),
		Ledger:    dal.NewMemoryDAL(),
		Cache:     cache.NewMemoryCache(time.Hour),
		Analytics: env.analytics,
		Events:    bus,
		Metrics:   env.metrics,
		MaxBet:    1000,
		Now:       func() time.Time { return fixedNow },
	})
	return env
}

func (e *testEnv) nextEvent(t *testing.T) pubsub.Event {
	t.Helper()
	select {
	case ev := <-e.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
	return pubsub.Event{}
}

func exampleRequest(matchID string) PredictRequest {
	return PredictRequest{
		MatchID: matchID,
		Red: []valuation.TeamInput{
			valuation.Team("254", 1, 38.5, 0.78),
			valuation.Team("1678", 3, 28.4, 0.62),
			valuation.Team("971", 5, 15.2, 0.43),
		},
		Blue: []valuation.TeamInput{
			valuation.Team("118", 2, 34.1, 0.73),
			valuation.Team("148", 4, 26.0, 0.59),
			valuation.Team("2056", 6, 14.9, 0.41),
		},
	}
}

func TestPredictExampleScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.Predict(ctx, exampleRequest("2026cmptx_qm12"))
	if err != nil {
		t.Fatalf("Predict() failed: %v", err)
	}

	if math.Abs(p.Red.AllianceEPA-82.1) > 1e-9 {
		t.Errorf("expected red epa 82.1, got %v", p.Red.AllianceEPA)
	}
	if math.Abs(p.Blue.AllianceEPA-75.0) > 1e-9 {
		t.Errorf("expected blue epa 75.0, got %v", p.Blue.AllianceEPA)
	}
	if p.Line.BaseLine != 78.6 {
		t.Errorf("expected base line 78.6, got %v", p.Line.BaseLine)
	}
	if p.Red.Side != models.SideRed || p.Blue.Side != models.SideBlue {
		t.Errorf("unexpected sides %q/%q", p.Red.Side, p.Blue.Side)
	}
	if !p.CreatedAt.Equal(fixedNow) {
		t.Errorf("expected createdAt %v, got %v", fixedNow, p.CreatedAt)
	}
	for side, sl := range p.Line.PerAlliance {
		if sl.PayoutMultiplier < 1.01 {
			t.Errorf("%s payout %v below floor", side, sl.PayoutMultiplier)
		}
	}

	ev := env.nextEvent(t)
	if ev.Type != pubsub.EventMatchPredicted || ev.MatchID != "2026cmptx_qm12" {
		t.Errorf("unexpected event %+v", ev)
	}

	if got := testutil.ToFloat64(env.metrics.Predictions); got != 1 {
		t.Errorf("expected 1 prediction counted, got %v", got)
	}
}

func TestPredictCachesAndRecords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.Predict(ctx, exampleRequest("qm1"))
	if err != nil {
		t.Fatal(err)
	}

	line, err := env.svc.GetLine(ctx, "qm1")
	if err != nil {
		t.Fatalf("GetLine() failed: %v", err)
	}
	if line.Line.MatchLine != first.Line.MatchLine {
		t.Errorf("cached line %v differs from prediction %v", line.Line.MatchLine, first.Line.MatchLine)
	}

	// a second prediction with different inputs replaces the cached line
	req := exampleRequest("qm1")
	req.Blue = []valuation.TeamInput{valuation.Team("9999", 8, 1, 0.99)}
	second, err := env.svc.Predict(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	line, _ = env.svc.GetLine(ctx, "qm1")
	if line.Line.MatchLine != second.Line.MatchLine {
		t.Errorf("expected latest line %v, got %v", second.Line.MatchLine, line.Line.MatchLine)
	}

	history, err := env.svc.LineHistory(ctx, "qm1", 0)
	if err != nil {
		t.Fatalf("LineHistory() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(history))
	}
	if history[1].MatchLine != second.Line.MatchLine {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestPredictValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  PredictRequest
	}{
		{"missing match id", PredictRequest{Red: exampleRequest("").Red, Blue: exampleRequest("").Blue}},
		{"blank match id", PredictRequest{MatchID: "  ", Red: exampleRequest("").Red, Blue: exampleRequest("").Blue}},
		{"empty red", PredictRequest{MatchID: "qm1", Blue: exampleRequest("").Blue}},
		{"empty blue", PredictRequest{MatchID: "qm1", Red: exampleRequest("").Red}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Predict(context.Background(), tc.req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestPredictAbsentSignals(t *testing.T) {
	env := newTestEnv(t)

	p, err := env.svc.Predict(context.Background(), PredictRequest{
		MatchID: "qm2",
		Red:     []valuation.TeamInput{{ID: "1"}},
		Blue:    []valuation.TeamInput{{ID: "2"}},
	})
	if err != nil {
		t.Fatalf("Predict() failed: %v", err)
	}

	// absent epa floors every team at minValue; equal alliances give a flat line
	if p.Line.BaseLine != 0 || p.Line.MatchLine != 0 {
		t.Errorf("expected zero lines, got %+v", p.Line)
	}
	red, _ := p.SideLine(models.SideRed)
	if red.PayoutMultiplier != 1.01 {
		t.Errorf("expected payout 1.01, got %v", red.PayoutMultiplier)
	}
}

func TestGetLineUnknownMatch(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.GetLine(context.Background(), "nope"); !errors.Is(err, ErrUnknownMatch) {
		t.Errorf("expected ErrUnknownMatch, got %v", err)
	}
	if _, err := env.svc.GetLine(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestPlaceBetUsesCurrentLine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.svc.Predict(ctx, exampleRequest("qm3"))
	if err != nil {
		t.Fatal(err)
	}
	env.nextEvent(t)

	bet, err := env.svc.PlaceBet(ctx, PlaceBetRequest{
		User:         "alice",
		MatchID:      "qm3",
		AllianceSide: "Blue",
		Amount:       50,
		BetType:      "OVER",
	})
	if err != nil {
		t.Fatalf("PlaceBet() failed: %v", err)
	}

	blue, _ := p.SideLine(models.SideBlue)
	if bet.Line != blue.Line {
		t.Errorf("expected blue line %v, got %v", blue.Line, bet.Line)
	}
	if bet.PayoutMultiplier != blue.PayoutMultiplier {
		t.Errorf("expected payout %v, got %v", blue.PayoutMultiplier, bet.PayoutMultiplier)
	}
	if bet.AllianceSide != models.SideBlue || bet.BetType != models.BetOver {
		t.Errorf("side and type should be normalised: %+v", bet)
	}
	if bet.ID != 1 {
		t.Errorf("expected first id 1, got %d", bet.ID)
	}

	ev := env.nextEvent(t)
	if ev.Type != pubsub.EventBetPlaced || ev.MatchID != "qm3" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Payload["user"] != "alice" {
		t.Errorf("event payload missing bet: %v", ev.Payload)
	}

	if got := testutil.ToFloat64(env.metrics.BetsPlaced.WithLabelValues("blue", "over")); got != 1 {
		t.Errorf("expected 1 blue/over bet counted, got %v", got)
	}
}

func TestPlaceBetExplicitLine(t *testing.T) {
	env := newTestEnv(t)
	line := 64.5

	// no prediction for this match: explicit line, minimum payout
	bet, err := env.svc.PlaceBet(context.Background(), PlaceBetRequest{
		User:         "bob",
		MatchID:      "qm4",
		AllianceSide: "red",
		Amount:       10,
		BetType:      "under",
		Line:         &line,
	})
	if err != nil {
		t.Fatalf("PlaceBet() failed: %v", err)
	}
	if bet.Line != 64.5 {
		t.Errorf("expected line 64.5, got %v", bet.Line)
	}
	if bet.PayoutMultiplier != 1.01 {
		t.Errorf("expected min payout, got %v", bet.PayoutMultiplier)
	}
}

func TestPlaceBetUnknownMatch(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.PlaceBet(context.Background(), PlaceBetRequest{
		User: "carol", MatchID: "qm5", AllianceSide: "red", Amount: 10, BetType: "over",
	})
	if !errors.Is(err, ErrUnknownMatch) {
		t.Errorf("expected ErrUnknownMatch, got %v", err)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Predict(ctx, exampleRequest("qm6")); err != nil {
		t.Fatal(err)
	}

	valid := PlaceBetRequest{User: "dave", MatchID: "qm6", AllianceSide: "red", Amount: 10, BetType: "over"}
	nan := math.NaN()

	tests := []struct {
		name   string
		mutate func(r *PlaceBetRequest)
	}{
		{"missing user", func(r *PlaceBetRequest) { r.User = "" }},
		{"missing match", func(r *PlaceBetRequest) { r.MatchID = " " }},
		{"bad side", func(r *PlaceBetRequest) { r.AllianceSide = "green" }},
		{"bad type", func(r *PlaceBetRequest) { r.BetType = "exact" }},
		{"zero amount", func(r *PlaceBetRequest) { r.Amount = 0 }},
		{"negative amount", func(r *PlaceBetRequest) { r.Amount = -5 }},
		{"nan amount", func(r *PlaceBetRequest) { r.Amount = nan }},
		{"infinite amount", func(r *PlaceBetRequest) { r.Amount = math.Inf(1) }},
		{"over max bet", func(r *PlaceBetRequest) { r.Amount = 1000.01 }},
		{"nan line", func(r *PlaceBetRequest) { r.Line = &nan }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			if _, err := env.svc.PlaceBet(ctx, req); !errors.Is(err, ErrInvalidBet) {
				t.Errorf("expected ErrInvalidBet, got %v", err)
			}
		})
	}

	if got := testutil.ToFloat64(env.metrics.BetsRejected); got != float64(len(tests)) {
		t.Errorf("expected %d rejections counted, got %v", len(tests), got)
	}

	// the cap itself is allowed
	req := valid
	req.Amount = 1000
	if _, err := env.svc.PlaceBet(ctx, req); err != nil {
		t.Errorf("max bet should be accepted: %v", err)
	}
}

func TestPlaceBetConcurrentIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Predict(ctx, exampleRequest("qm7")); err != nil {
		t.Fatal(err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.PlaceBet(ctx, PlaceBetRequest{
				User: "racer", MatchID: "qm7", AllianceSide: "red", Amount: 1, BetType: "under",
			})
			if err != nil {
				t.Errorf("PlaceBet() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	bets, err := env.svc.ListBets(ctx, models.BetFilter{MatchID: "qm7"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bets) != n {
		t.Fatalf("expected %d bets, got %d", n, len(bets))
	}
	for i, b := range bets {
		if b.ID != int64(i+1) {
			t.Errorf("expected id %d at position %d, got %d", i+1, i, b.ID)
		}
	}
}

func TestGetAndListBets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Predict(ctx, exampleRequest("qm8")); err != nil {
		t.Fatal(err)
	}

	for _, user := range []string{"alice", "bob", "alice"} {
		_, err := env.svc.PlaceBet(ctx, PlaceBetRequest{
			User: user, MatchID: "qm8", AllianceSide: "red", Amount: 5, BetType: "over",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	bet, err := env.svc.GetBet(ctx, 2)
	if err != nil {
		t.Fatalf("GetBet() failed: %v", err)
	}
	if bet.User != "bob" {
		t.Errorf("expected bob, got %s", bet.User)
	}

	if _, err := env.svc.GetBet(ctx, 42); !errors.Is(err, dal.ErrBetNotFound) {
		t.Errorf("expected ErrBetNotFound, got %v", err)
	}

	bets, err := env.svc.ListBets(ctx, models.BetFilter{User: "alice", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(bets) != 1 || bets[0].ID != 1 {
		t.Errorf("unexpected listing %+v", bets)
	}

	if _, err := env.svc.ListBets(ctx, models.BetFilter{Limit: -1}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestSimulate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seed := uint64(2026)

	predictions, err := env.svc.Simulate(ctx, SimulateRequest{Count: 25, Seed: &seed})
	if err != nil {
		t.Fatalf("Simulate() failed: %v", err)
	}
	if len(predictions) != 25 {
		t.Fatalf("expected 25 predictions, got %d", len(predictions))
	}

	for _, p := range predictions {
		if len(p.Red.Teams) != 3 || len(p.Blue.Teams) != 3 {
			t.Errorf("expected 3 teams per alliance in %s", p.MatchID)
		}
		for _, tv := range append(p.Red.Teams, p.Blue.Teams...) {
			if tv.Value < 1.0 || math.IsNaN(tv.Value) || math.IsInf(tv.Value, 0) {
				t.Errorf("team %s has invalid value %v", tv.TeamID, tv.Value)
			}
		}
	}

	// simulated matches are bettable
	if _, err := env.svc.GetLine(ctx, predictions[0].MatchID); err != nil {
		t.Errorf("simulated match should be cached: %v", err)
	}

	ev := env.nextEvent(t)
	if ev.Type != pubsub.EventSimulationComplete {
		t.Errorf("expected simulation:complete, got %s", ev.Type)
	}
	if ev.Payload["count"] != 25.0 {
		t.Errorf("expected count 25 in payload, got %v", ev.Payload["count"])
	}

	again, err := env.svc.Simulate(ctx, SimulateRequest{Count: 25, Seed: &seed})
	if err != nil {
		t.Fatal(err)
	}
	for i := range predictions {
		if predictions[i].MatchID != again[i].MatchID || predictions[i].Line.MatchLine != again[i].Line.MatchLine {
			t.Errorf("seeded simulation not reproducible at %d", i)
		}
	}
}

func TestSimulateBounds(t *testing.T) {
	env := newTestEnv(t)

	for _, n := range []int{0, -1, MaxSimulations + 1} {
		if _, err := env.svc.Simulate(context.Background(), SimulateRequest{Count: n}); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("count %d: expected ErrInvalidRequest, got %v", n, err)
		}
	}
}

func TestSimulateCancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := env.svc.Simulate(ctx, SimulateRequest{Count: 10}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	if s := Summarize(nil); s.Count != 0 || s.MinLine != 0 {
		t.Errorf("empty summary should be zero, got %+v", s)
	}

	predictions := []models.Prediction{
		{MatchID: "a", Line: valuation.LineSuggestion{MatchLine: 40, PerAlliance: map[string]valuation.SideLine{"red": {PayoutMultiplier: 1.2}}}},
		{MatchID: "b", Line: valuation.LineSuggestion{MatchLine: 60, PerAlliance: map[string]valuation.SideLine{"blue": {PayoutMultiplier: 1.4}}}},
		{MatchID: "c", Line: valuation.LineSuggestion{MatchLine: 50.5}},
	}
	s := Summarize(predictions)

	if s.Count != 3 || s.FirstMatchID != "a" {
		t.Errorf("unexpected header %+v", s)
	}
	if s.MinLine != 40 || s.MaxLine != 60 {
		t.Errorf("expected range 40..60, got %v..%v", s.MinLine, s.MaxLine)
	}
	if s.MeanLine != 50.2 {
		t.Errorf("expected mean 50.2, got %v", s.MeanLine)
	}
	if s.MaxPayout != 1.4 {
		t.Errorf("expected max payout 1.4, got %v", s.MaxPayout)
	}
}

type failingCache struct{ cache.LineCache }

func (failingCache) Set(context.Context, *models.Prediction) error {
	return errors.New("redis down")
}

func (failingCache) Get(context.Context, string) (*models.Prediction, error) {
	return nil, errors.New("redis down")
}

func TestSideEffectFailuresAreNotReturned(t *testing.T) {
	m := metrics.New()
	svc := NewService(Options{
		Valuation: valuation.DefaultConfig(),
		Cache:     failingCache{},
		Metrics:   m,
	})

	if _, err := svc.Predict(context.Background(), exampleRequest("qm9")); err != nil {
		t.Fatalf("cache failure should not fail Predict: %v", err)
	}
	if got := testutil.ToFloat64(m.SideEffectErrors.WithLabelValues("cache")); got != 1 {
		t.Errorf("expected 1 cache failure counted, got %v", got)
	}

	// without a readable line the bet needs an explicit one
	_, err := svc.PlaceBet(context.Background(), PlaceBetRequest{
		User: "eve", MatchID: "qm9", AllianceSide: "red", Amount: 1, BetType: "over",
	})
	if !errors.Is(err, ErrUnknownMatch) {
		t.Errorf("expected ErrUnknownMatch, got %v", err)
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(Options{Valuation: valuation.DefaultConfig()})

	if svc.MaxBet() != DefaultMaxBet {
		t.Errorf("expected default max bet, got %v", svc.MaxBet())
	}
	if err := svc.Ping(context.Background()); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}

	history, err := svc.LineHistory(context.Background(), "qm1", 0)
	if err != nil || len(history) != 0 {
		t.Errorf("expected empty history without analytics, got %v, %v", history, err)
	}

	cfg := svc.Config()
	cfg.RankMultipliers[1] = 99
	if svc.Config().RankMultiplier(1) == 99 {
		t.Error("Config() must return a copy")
	}
}

func TestNewRiskFallsBackOnInvalidCap(t *testing.T) {
	for _, maxBet := range []float64{0, -10, math.NaN(), math.Inf(1), math.Inf(-1)} {
		r := NewRisk(maxBet)
		if r.MaxBet != DefaultMaxBet {
			t.Errorf("NewRisk(%v): expected fallback %v, got %v", maxBet, float64(DefaultMaxBet), r.MaxBet)
		}

		bet := &models.Bet{User: "u", MatchID: "m", AllianceSide: models.SideRed, BetType: models.BetOver, Amount: 1e9}
		if err := r.Validate(bet); !errors.Is(err, ErrInvalidBet) {
			t.Errorf("NewRisk(%v): oversized stake accepted", maxBet)
		}
	}
}
