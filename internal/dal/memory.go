package dal

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Billy-Davies-2/frc-line-service/internal/models"
)

// MemoryDAL implements BetDAL using in-memory storage
type MemoryDAL struct {
	mu     sync.RWMutex
	bets   []models.Bet
	nextID int64
	now    func() time.Time
}

// NewMemoryDAL creates a new in-memory bet ledger
func NewMemoryDAL() *MemoryDAL {
	return &MemoryDAL{
		bets:   []models.Bet{},
		nextID: 1,
		now:    time.Now,
	}
}

func (m *MemoryDAL) PlaceBet(bet *models.Bet) (*models.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	placed := *bet
	placed.ID = m.nextID
	if placed.Ref == "" {
		placed.Ref = uuid.NewString()
	}
	placed.Timestamp = m.now().UTC()

	m.nextID++
	m.bets = append(m.bets, placed)

	return &placed, nil
}

func (m *MemoryDAL) GetBet(id int64) (*models.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// ids are dense and start at 1
	if id < 1 || id > int64(len(m.bets)) {
		return nil, ErrBetNotFound
	}

	bet := m.bets[id-1]
	return &bet, nil
}

func (m *MemoryDAL) ListBets(filter models.BetFilter) ([]models.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []models.Bet{}
	for _, bet := range m.bets {
		if !filter.Matches(bet) {
			continue
		}
		result = append(result, bet)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}

	return result, nil
}

func (m *MemoryDAL) Ping() error {
	return nil
}

func (m *MemoryDAL) Close() error {
	return nil
}
