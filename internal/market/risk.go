package market

import (
	"fmt"
	"math"

	"github.com/Billy-Davies-2/frc-line-service/internal/models"
)

// DefaultMaxBet caps a single stake when no limit is configured
const DefaultMaxBet = 1000

// RiskEngine validates bets before they reach the ledger
type RiskEngine struct {
	MaxBet float64
}

// NewRisk returns a risk engine with the given stake cap. A cap that is
// not a positive finite number falls back to DefaultMaxBet.
func NewRisk(maxBet float64) *RiskEngine {
	if math.IsNaN(maxBet) || math.IsInf(maxBet, 0) || maxBet <= 0 {
		maxBet = DefaultMaxBet
	}
	return &RiskEngine{MaxBet: maxBet}
}

// Validate checks the bet's fields. Line and payout are filled in by the
// service and are not checked here.
func (r *RiskEngine) Validate(bet *models.Bet) error {
	switch {
	case bet.User == "":
		return fmt.Errorf("%w: user is required", ErrInvalidBet)
	case bet.MatchID == "":
		return fmt.Errorf("%w: matchId is required", ErrInvalidBet)
	case bet.AllianceSide != models.SideRed && bet.AllianceSide != models.SideBlue:
		return fmt.Errorf("%w: allianceSide must be %q or %q, got %q", ErrInvalidBet, models.SideRed, models.SideBlue, bet.AllianceSide)
	case bet.BetType != models.BetOver && bet.BetType != models.BetUnder:
		return fmt.Errorf("%w: betType must be %q or %q, got %q", ErrInvalidBet, models.BetOver, models.BetUnder, bet.BetType)
	case math.IsNaN(bet.Amount) || bet.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidBet)
	case bet.Amount > r.MaxBet:
		return fmt.Errorf("%w: amount %.2f exceeds max bet %.2f", ErrInvalidBet, bet.Amount, r.MaxBet)
	}
	return nil
}
