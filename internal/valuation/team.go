package valuation

import "math"

// TeamInput is one team's raw performance signals for a match.
// Rank 0 means the rank is unknown; nil EPA or WinProbability means the
// caller did not supply the value.
type TeamInput struct {
	ID             string   `json:"id"`
	Rank           int      `json:"rank,omitempty"`
	EPA            *float64 `json:"epa,omitempty"`
	WinProbability *float64 `json:"winProbability,omitempty"`
}

// Team builds a TeamInput with every field present.
func Team(id string, rank int, epa, winProbability float64) TeamInput {
	return TeamInput{
		ID:             id,
		Rank:           rank,
		EPA:            &epa,
		WinProbability: &winProbability,
	}
}

// EPAOrZero returns the team's EPA, or 0 when it is absent or not finite.
func (t TeamInput) EPAOrZero() float64 {
	if t.EPA == nil || !finite(*t.EPA) {
		return 0
	}
	return *t.EPA
}

func (t TeamInput) winProbability(cfg Config) float64 {
	if t.WinProbability == nil || !finite(*t.WinProbability) {
		return cfg.DefaultWinProbability
	}
	return *t.WinProbability
}

// TeamValuation is the full breakdown of how a team's value was derived.
type TeamValuation struct {
	TeamID         string  `json:"teamId"`
	EPAFactor      float64 `json:"epaFactor"`
	RankMultiplier float64 `json:"rankMultiplier"`
	WinFactor      float64 `json:"winFactor"`
	RawValue       float64 `json:"rawValue"`
	Value          float64 `json:"value"`
}

// ValuateTeam maps a team's signals to a single value. High EPA and low
// win probability both raise the value; rank adds a small bonus. The
// result never drops below cfg.MinValue.
func ValuateTeam(team TeamInput, cfg Config) TeamValuation {
	epaFactor := math.Max(cfg.EPAFactorFloor, saturate(team.EPAOrZero()/cfg.EPAScale))
	rankMultiplier := cfg.RankMultiplier(team.Rank)

	denom := team.winProbability(cfg) + cfg.Epsilon
	if denom == 0 {
		// only reachable with winProbability == -epsilon
		denom = cfg.Epsilon
	}
	winFactor := saturate(1 / denom)

	// finite factors can still overflow the product
	raw := saturate(saturate(epaFactor*rankMultiplier) * winFactor)

	return TeamValuation{
		TeamID:         team.ID,
		EPAFactor:      epaFactor,
		RankMultiplier: rankMultiplier,
		WinFactor:      winFactor,
		RawValue:       raw,
		Value:          math.Max(cfg.MinValue, raw),
	}
}
