// Package market turns team signals into match lines and records bets
// against them. It is the single entry point shared by the HTTP and gRPC
// transports.
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Billy-Davies-2/frc-line-service/internal/cache"
	"github.com/Billy-Davies-2/frc-line-service/internal/dal"
	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
	"github.com/Billy-Davies-2/frc-line-service/internal/metrics"
	"github.com/Billy-Davies-2/frc-line-service/internal/models"
	"github.com/Billy-Davies-2/frc-line-service/internal/pubsub"
	"github.com/Billy-Davies-2/frc-line-service/internal/simulate"
	"github.com/Billy-Davies-2/frc-line-service/internal/valuation"
)

// MaxSimulations bounds a single simulate request
const MaxSimulations = 1000

// Analytics records predictions for later line-movement queries
type Analytics interface {
	RecordPrediction(ctx context.Context, p *models.Prediction) error
	MatchHistory(ctx context.Context, matchID string, limit int) ([]models.LineSnapshot, error)
}

// Options wires a Service. Nil collaborators get in-process defaults,
// except Analytics which is simply skipped.
type Options struct {
	Valuation valuation.Config
	Ledger    dal.BetDAL
	Cache     cache.LineCache
	Analytics Analytics
	Events    pubsub.Publisher
	Metrics   *metrics.Metrics
	Generator *simulate.Generator
	MaxBet    float64
	Now       func() time.Time
}

// Service implements predict, simulate and bet operations
type Service struct {
	cfg       valuation.Config
	ledger    dal.BetDAL
	cache     cache.LineCache
	analytics Analytics
	events    pubsub.Publisher
	metrics   *metrics.Metrics
	generator *simulate.Generator
	risk      *RiskEngine
	now       func() time.Time
}

// NewService creates a market service
func NewService(opts Options) *Service {
	s := &Service{
		cfg:       opts.Valuation.Clone(),
		ledger:    opts.Ledger,
		cache:     opts.Cache,
		analytics: opts.Analytics,
		events:    opts.Events,
		metrics:   opts.Metrics,
		generator: opts.Generator,
		risk:      NewRisk(opts.MaxBet),
		now:       opts.Now,
	}

	if s.ledger == nil {
		s.ledger = dal.NewMemoryDAL()
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryCache(0)
	}
	if s.events == nil {
		s.events = pubsub.New()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.generator == nil {
		s.generator = simulate.NewRandomGenerator()
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// Config returns a copy of the valuation constants in use
func (s *Service) Config() valuation.Config {
	return s.cfg.Clone()
}

// MaxBet returns the stake cap
func (s *Service) MaxBet() float64 {
	return s.risk.MaxBet
}

// Ping checks the ledger and cache
func (s *Service) Ping(ctx context.Context) error {
	if err := s.ledger.Ping(); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// PredictRequest carries the teams of both alliances for one match
type PredictRequest struct {
	MatchID string                `json:"matchId"`
	Red     []valuation.TeamInput `json:"red"`
	Blue    []valuation.TeamInput `json:"blue"`
}

// Validate checks the request's structure. Team signal values are not
// range checked.
func (r PredictRequest) Validate() error {
	if strings.TrimSpace(r.MatchID) == "" {
		return fmt.Errorf("%w: matchId is required", ErrInvalidRequest)
	}
	if len(r.Red) == 0 {
		return fmt.Errorf("%w: red alliance has no teams", ErrInvalidRequest)
	}
	if len(r.Blue) == 0 {
		return fmt.Errorf("%w: blue alliance has no teams", ErrInvalidRequest)
	}
	return nil
}

// Predict values both alliances and derives the match line. The result is
// cached as the match's current line, recorded to analytics and published;
// failures of those steps are logged, not returned.
func (s *Service) Predict(ctx context.Context, req PredictRequest) (*models.Prediction, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := s.predict(ctx, req)
	s.events.Publish(pubsub.NewEvent(pubsub.EventMatchPredicted, p.MatchID, p))

	return p, nil
}

func (s *Service) predict(ctx context.Context, req PredictRequest) *models.Prediction {
	red := valuation.AggregateAlliance(models.SideRed, req.Red, s.cfg)
	blue := valuation.AggregateAlliance(models.SideBlue, req.Blue, s.cfg)

	p := &models.Prediction{
		MatchID:   strings.TrimSpace(req.MatchID),
		Red:       red,
		Blue:      blue,
		Line:      valuation.SuggestLine(red, blue, s.cfg),
		CreatedAt: s.now().UTC(),
	}

	s.metrics.Predictions.Inc()
	for _, side := range p.Line.PerAlliance {
		s.metrics.Payouts.Observe(side.PayoutMultiplier)
	}

	if err := s.cache.Set(ctx, p); err != nil {
		s.sideEffectFailed("cache", p.MatchID, err)
	}
	if s.analytics != nil {
		if err := s.analytics.RecordPrediction(ctx, p); err != nil {
			s.sideEffectFailed("analytics", p.MatchID, err)
		}
	}

	logger.Debug("Match predicted", "matchId", p.MatchID, "matchLine", p.Line.MatchLine)
	return p
}

// SimulateRequest asks for Count synthetic matches. A Seed makes the
// batch reproducible.
type SimulateRequest struct {
	Count int     `json:"count"`
	Seed  *uint64 `json:"seed,omitempty"`
}

// SimulationSummary is the payload of the simulation:complete event
type SimulationSummary struct {
	Count        int     `json:"count"`
	MeanLine     float64 `json:"meanLine"`
	MinLine      float64 `json:"minLine"`
	MaxLine      float64 `json:"maxLine"`
	MaxPayout    float64 `json:"maxPayout"`
	FirstMatchID string  `json:"firstMatchId,omitempty"`
}

// Simulate generates synthetic matches and predicts each one. Simulated
// predictions are cached like real ones, so bets can be placed on them.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) ([]models.Prediction, error) {
	if req.Count < 1 || req.Count > MaxSimulations {
		return nil, fmt.Errorf("%w: count must be between 1 and %d, got %d", ErrInvalidRequest, MaxSimulations, req.Count)
	}

	gen := s.generator
	if req.Seed != nil {
		gen = simulate.NewGenerator(*req.Seed)
	}

	predictions := make([]models.Prediction, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		m := gen.Match()
		p := s.predict(ctx, PredictRequest{MatchID: m.ID, Red: m.Red, Blue: m.Blue})
		predictions = append(predictions, *p)
	}

	s.metrics.Simulations.Inc()
	s.metrics.SimulatedMatches.Add(float64(len(predictions)))

	summary := Summarize(predictions)
	s.events.Publish(pubsub.NewEvent(pubsub.EventSimulationComplete, "", summary))
	logger.Info("Simulation complete", "count", summary.Count, "meanLine", summary.MeanLine)

	return predictions, nil
}

// Summarize reduces a batch of predictions to line statistics
func Summarize(predictions []models.Prediction) SimulationSummary {
	summary := SimulationSummary{Count: len(predictions)}
	if len(predictions) == 0 {
		return summary
	}

	summary.FirstMatchID = predictions[0].MatchID
	summary.MinLine = math.Inf(1)
	summary.MaxLine = math.Inf(-1)

	var sum float64
	for _, p := range predictions {
		line := p.Line.MatchLine
		sum += line
		summary.MinLine = math.Min(summary.MinLine, line)
		summary.MaxLine = math.Max(summary.MaxLine, line)
		for _, side := range p.Line.PerAlliance {
			summary.MaxPayout = math.Max(summary.MaxPayout, side.PayoutMultiplier)
		}
	}
	summary.MeanLine = valuation.Round1(sum / float64(len(predictions)))

	return summary
}

// PlaceBetRequest is a bet as submitted by a client. A nil Line takes the
// current line of the chosen alliance.
type PlaceBetRequest struct {
	User         string   `json:"user"`
	MatchID      string   `json:"matchId"`
	AllianceSide string   `json:"allianceSide"`
	Amount       float64  `json:"amount"`
	BetType      string   `json:"betType"`
	Line         *float64 `json:"line,omitempty"`
}

// PlaceBet validates a bet, prices it against the match's current line and
// appends it to the ledger.
func (s *Service) PlaceBet(ctx context.Context, req PlaceBetRequest) (*models.Bet, error) {
	bet := &models.Bet{
		User:         strings.TrimSpace(req.User),
		MatchID:      strings.TrimSpace(req.MatchID),
		AllianceSide: strings.ToLower(strings.TrimSpace(req.AllianceSide)),
		Amount:       req.Amount,
		BetType:      models.BetType(strings.ToLower(strings.TrimSpace(req.BetType))),
	}

	if err := s.risk.Validate(bet); err != nil {
		s.metrics.BetsRejected.Inc()
		return nil, err
	}

	current, err := s.cache.Get(ctx, bet.MatchID)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		s.sideEffectFailed("cache", bet.MatchID, err)
	}

	var side valuation.SideLine
	var priced bool
	if current != nil {
		side, priced = current.SideLine(bet.AllianceSide)
	}

	switch {
	case req.Line != nil:
		if math.IsNaN(*req.Line) || math.IsInf(*req.Line, 0) {
			s.metrics.BetsRejected.Inc()
			return nil, fmt.Errorf("%w: line must be finite", ErrInvalidBet)
		}
		bet.Line = *req.Line
	case priced:
		bet.Line = side.Line
	default:
		s.metrics.BetsRejected.Inc()
		return nil, fmt.Errorf("%w: no line for match %s", ErrUnknownMatch, bet.MatchID)
	}

	bet.PayoutMultiplier = s.cfg.MinPayout
	if priced {
		bet.PayoutMultiplier = side.PayoutMultiplier
	}

	placed, err := s.ledger.PlaceBet(bet)
	if err != nil {
		return nil, fmt.Errorf("failed to record bet: %w", err)
	}

	s.metrics.BetsPlaced.WithLabelValues(placed.AllianceSide, string(placed.BetType)).Inc()
	s.metrics.BetAmount.Observe(placed.Amount)
	s.events.Publish(pubsub.NewEvent(pubsub.EventBetPlaced, placed.MatchID, placed))

	logger.Info("Bet placed", "id", placed.ID, "user", placed.User, "matchId", placed.MatchID,
		"side", placed.AllianceSide, "type", placed.BetType, "amount", placed.Amount)
	return placed, nil
}

// GetBet returns a ledger entry by id
func (s *Service) GetBet(_ context.Context, id int64) (*models.Bet, error) {
	bet, err := s.ledger.GetBet(id)
	if err != nil {
		return nil, fmt.Errorf("bet %d: %w", id, err)
	}
	return bet, nil
}

// ListBets returns ledger entries matching filter in placement order
func (s *Service) ListBets(_ context.Context, filter models.BetFilter) ([]models.Bet, error) {
	if filter.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidRequest)
	}
	return s.ledger.ListBets(filter)
}

// GetLine returns the match's most recent prediction
func (s *Service) GetLine(ctx context.Context, matchID string) (*models.Prediction, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, fmt.Errorf("%w: matchId is required", ErrInvalidRequest)
	}

	p, err := s.cache.Get(ctx, matchID)
	if errors.Is(err, cache.ErrMiss) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LineHistory returns every recorded prediction snapshot for a match,
// oldest first. Without an analytics store the history is empty.
func (s *Service) LineHistory(ctx context.Context, matchID string, limit int) ([]models.LineSnapshot, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, fmt.Errorf("%w: matchId is required", ErrInvalidRequest)
	}
	if s.analytics == nil {
		return []models.LineSnapshot{}, nil
	}
	return s.analytics.MatchHistory(ctx, matchID, limit)
}

func (s *Service) sideEffectFailed(target, matchID string, err error) {
	s.metrics.SideEffectErrors.WithLabelValues(target).Inc()
	logger.Warn("Side effect failed", "target", target, "matchId", matchID, "error", err)
}
