package valuation

// AllianceValuation aggregates the valuations of one alliance.
type AllianceValuation struct {
	Side          string          `json:"side"`
	Teams         []TeamValuation `json:"teams"`
	AllianceValue float64         `json:"allianceValue"`
	AllianceEPA   float64         `json:"allianceEpa"`
}

// AggregateAlliance values every team and sums the clamped values and raw
// EPA. Alliances are conventionally three teams but any length is summed;
// an empty slice yields zero totals. Sums saturate at the largest finite
// float.
func AggregateAlliance(side string, teams []TeamInput, cfg Config) AllianceValuation {
	av := AllianceValuation{
		Side:  side,
		Teams: make([]TeamValuation, 0, len(teams)),
	}

	for _, t := range teams {
		tv := ValuateTeam(t, cfg)
		av.Teams = append(av.Teams, tv)
		av.AllianceValue = saturate(av.AllianceValue + tv.Value)
		av.AllianceEPA = saturate(av.AllianceEPA + t.EPAOrZero())
	}

	return av
}
