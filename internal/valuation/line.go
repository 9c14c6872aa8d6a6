package valuation

import (
	"math"

	"github.com/shopspring/decimal"
)

// SideLine is the line and payout for one alliance.
type SideLine struct {
	Line             float64 `json:"line"`
	AllianceValue    float64 `json:"allianceValue"`
	PayoutMultiplier float64 `json:"payoutMultiplier"`
}

// LineSuggestion is the published line for a match plus per-alliance detail.
type LineSuggestion struct {
	BaseLine    float64             `json:"baseLine"`
	MatchLine   float64             `json:"matchLine"`
	PerAlliance map[string]SideLine `json:"perAlliance"`
}

// SuggestLine derives a match line and payout multipliers from two
// alliances. The base line is the mean alliance EPA; each side's line moves
// by at most LineSensitivity/2 of the base line toward its value share.
func SuggestLine(a, b AllianceValuation, cfg Config) LineSuggestion {
	// halves first: the sums of two saturated totals would overflow
	baseLine := Round1(a.AllianceEPA/2 + b.AllianceEPA/2)

	avg := a.AllianceValue/2 + b.AllianceValue/2
	if avg == 0 {
		avg = 1
	}

	lineA := sideLine(baseLine, a.AllianceValue/2/avg, cfg)
	lineB := sideLine(baseLine, b.AllianceValue/2/avg, cfg)

	keyA, keyB := sideKeys(a.Side, b.Side)

	return LineSuggestion{
		BaseLine:  baseLine,
		MatchLine: Round1(lineA/2 + lineB/2),
		PerAlliance: map[string]SideLine{
			keyA: {
				Line:             lineA,
				AllianceValue:    a.AllianceValue,
				PayoutMultiplier: payout(a.AllianceValue, avg, cfg),
			},
			keyB: {
				Line:             lineB,
				AllianceValue:    b.AllianceValue,
				PayoutMultiplier: payout(b.AllianceValue, avg, cfg),
			},
		},
	}
}

func sideLine(baseLine, share float64, cfg Config) float64 {
	delta := saturate((share - 0.5) * cfg.LineSensitivity * baseLine)
	return Round1(saturate(baseLine + delta))
}

// payout rewards sides valued below the match average. The floor keeps
// favourites at MinPayout instead of paying out less than the stake.
func payout(value, avg float64, cfg Config) float64 {
	p := saturate(1 + (1-value/avg)*cfg.PayoutSpread)
	return Round2(math.Max(cfg.MinPayout, p))
}

func sideKeys(a, b string) (string, string) {
	if a == "" {
		a = "red"
	}
	if b == "" {
		b = "blue"
	}
	if a == b {
		b += "-2"
	}
	return a, b
}

// Round1 rounds x to one decimal place, halves away from zero.
func Round1(x float64) float64 {
	return round(x, 1)
}

// Round2 rounds x to two decimal places, halves away from zero.
func Round2(x float64) float64 {
	return round(x, 2)
}

func round(x float64, places int32) float64 {
	if !finite(x) {
		return x
	}
	f, _ := decimal.NewFromFloat(x).Round(places).Float64()
	if !finite(f) {
		return x
	}
	return f
}
