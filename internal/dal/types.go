package dal

import (
	"errors"

	"github.com/Billy-Davies-2/frc-line-service/internal/models"
)

// ErrBetNotFound is returned when a bet id is not in the ledger
var ErrBetNotFound = errors.New("bet not found")

// BetDAL defines the interface for the append-only bet ledger.
// PlaceBet assigns the bet a strictly increasing ID and a timestamp;
// there are no update or delete operations.
type BetDAL interface {
	PlaceBet(bet *models.Bet) (*models.Bet, error)
	GetBet(id int64) (*models.Bet, error)
	ListBets(filter models.BetFilter) ([]models.Bet, error)
	Ping() error
	Close() error
}
