package models

import (
	"time"

	"github.com/Billy-Davies-2/frc-line-service/internal/valuation"
)

// BetType is the direction of an over/under bet
type BetType string

const (
	BetOver  BetType = "over"
	BetUnder BetType = "under"
)

// Alliance sides used by the predict and bet APIs
const (
	SideRed  = "red"
	SideBlue = "blue"
)

// Bet is an append-only ledger record. Once placed a bet is never
// mutated or deleted.
type Bet struct {
	ID               int64     `json:"id"`
	Ref              string    `json:"ref"`
	User             string    `json:"user"`
	MatchID          string    `json:"matchId"`
	AllianceSide     string    `json:"allianceSide"`
	Amount           float64   `json:"amount"`
	BetType          BetType   `json:"betType"`
	Line             float64   `json:"line"`
	PayoutMultiplier float64   `json:"payoutMultiplier"`
	Timestamp        time.Time `json:"timestamp"`
}

// BetFilter narrows a ledger listing. Zero values match everything;
// Limit <= 0 means no limit.
type BetFilter struct {
	MatchID string `json:"matchId,omitempty"`
	User    string `json:"user,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Matches reports whether bet passes the filter's field constraints.
func (f BetFilter) Matches(bet Bet) bool {
	if f.MatchID != "" && bet.MatchID != f.MatchID {
		return false
	}
	if f.User != "" && bet.User != f.User {
		return false
	}
	return true
}

// Prediction is the output of the predict pipeline for one match
type Prediction struct {
	MatchID   string                      `json:"matchId"`
	Red       valuation.AllianceValuation `json:"red"`
	Blue      valuation.AllianceValuation `json:"blue"`
	Line      valuation.LineSuggestion    `json:"line"`
	CreatedAt time.Time                   `json:"createdAt"`
}

// SideLine returns the line entry for an alliance side
func (p *Prediction) SideLine(side string) (valuation.SideLine, bool) {
	sl, ok := p.Line.PerAlliance[side]
	return sl, ok
}

// LineSnapshot is one recorded prediction for a match, as kept by the
// analytics store.
type LineSnapshot struct {
	MatchID    string    `json:"matchId"`
	BaseLine   float64   `json:"baseLine"`
	MatchLine  float64   `json:"matchLine"`
	RedLine    float64   `json:"redLine"`
	BlueLine   float64   `json:"blueLine"`
	RedValue   float64   `json:"redValue"`
	BlueValue  float64   `json:"blueValue"`
	RedPayout  float64   `json:"redPayout"`
	BluePayout float64   `json:"bluePayout"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Snapshot flattens a prediction for analytics storage
func (p *Prediction) Snapshot() LineSnapshot {
	red, _ := p.SideLine(SideRed)
	blue, _ := p.SideLine(SideBlue)
	return LineSnapshot{
		MatchID:    p.MatchID,
		BaseLine:   p.Line.BaseLine,
		MatchLine:  p.Line.MatchLine,
		RedLine:    red.Line,
		BlueLine:   blue.Line,
		RedValue:   red.AllianceValue,
		BlueValue:  blue.AllianceValue,
		RedPayout:  red.PayoutMultiplier,
		BluePayout: blue.PayoutMultiplier,
		RecordedAt: p.CreatedAt,
	}
}
