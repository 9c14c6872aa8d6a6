package valuation

import (
	"fmt"
	"math"
)

// Config holds the tunable constants for valuation and line derivation.
// A Config is built once at startup and passed by value to every call;
// nothing in this package mutates it.
type Config struct {
	EPAScale              float64         `yaml:"epa_scale" json:"epaScale"`
	EPAFactorFloor        float64         `yaml:"epa_factor_floor" json:"epaFactorFloor"`
	RankMultipliers       map[int]float64 `yaml:"rank_multipliers" json:"rankMultipliers"`
	DefaultRankMultiplier float64         `yaml:"default_rank_multiplier" json:"defaultRankMultiplier"`
	Epsilon               float64         `yaml:"epsilon" json:"epsilon"`
	MinValue              float64         `yaml:"min_value" json:"minValue"`
	DefaultWinProbability float64         `yaml:"default_win_probability" json:"defaultWinProbability"`
	LineSensitivity       float64         `yaml:"line_sensitivity" json:"lineSensitivity"`
	PayoutSpread          float64         `yaml:"payout_spread" json:"payoutSpread"`
	MinPayout             float64         `yaml:"min_payout" json:"minPayout"`
}

// DefaultConfig returns the stock constants. Rank multipliers decay from
// 1.10 for the first seed to 1.001 for the eighth.
func DefaultConfig() Config {
	return Config{
		EPAScale:       10.0,
		EPAFactorFloor: 0.01,
		RankMultipliers: map[int]float64{
			1: 1.10,
			2: 1.08,
			3: 1.06,
			4: 1.04,
			5: 1.03,
			6: 1.02,
			7: 1.01,
			8: 1.001,
		},
		DefaultRankMultiplier: 1.0,
		Epsilon:               0.001,
		MinValue:              1.0,
		DefaultWinProbability: 0.5,
		LineSensitivity:       0.2,
		PayoutSpread:          0.5,
		MinPayout:             1.01,
	}
}

// RankMultiplier returns the multiplier for rank, falling back to the
// default for ranks missing from the table.
func (c Config) RankMultiplier(rank int) float64 {
	if m, ok := c.RankMultipliers[rank]; ok {
		return m
	}
	return c.DefaultRankMultiplier
}

// Clone returns a copy that shares no map storage with c.
func (c Config) Clone() Config {
	out := c
	out.RankMultipliers = make(map[int]float64, len(c.RankMultipliers))
	for rank, m := range c.RankMultipliers {
		out.RankMultipliers[rank] = m
	}
	return out
}

// Validate reports the first constant that would make the formulas
// divide by zero or produce non-finite results.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"epa_scale", c.EPAScale},
		{"epa_factor_floor", c.EPAFactorFloor},
		{"default_rank_multiplier", c.DefaultRankMultiplier},
		{"epsilon", c.Epsilon},
		{"min_value", c.MinValue},
		{"min_payout", c.MinPayout},
	}
	for _, p := range positive {
		if !finite(p.value) || p.value <= 0 {
			return fmt.Errorf("%s must be a positive number, got %v", p.name, p.value)
		}
	}

	for _, v := range []struct {
		name  string
		value float64
	}{
		{"line_sensitivity", c.LineSensitivity},
		{"payout_spread", c.PayoutSpread},
		{"default_win_probability", c.DefaultWinProbability},
	} {
		if !finite(v.value) || v.value < 0 {
			return fmt.Errorf("%s must be a non-negative number, got %v", v.name, v.value)
		}
	}

	for rank, m := range c.RankMultipliers {
		if rank < 1 {
			return fmt.Errorf("rank_multipliers: rank %d must be >= 1", rank)
		}
		if !finite(m) || m <= 0 {
			return fmt.Errorf("rank_multipliers: rank %d has invalid multiplier %v", rank, m)
		}
	}

	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// saturate pins an overflowed result to the largest finite float of the
// same sign.
func saturate(x float64) float64 {
	switch {
	case math.IsInf(x, 1):
		return math.MaxFloat64
	case math.IsInf(x, -1):
		return -math.MaxFloat64
	}
	return x
}
