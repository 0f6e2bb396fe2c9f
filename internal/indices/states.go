package indices

import "aadhaar_pulse/internal/aggregate"

// Trend describes the direction of an index against the previous month.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// StateIndex is the derived view of one state for the latest month.
type StateIndex struct {
	StateID       string  `json:"state"`
	Name          string  `json:"name"`
	MSI           float64 `json:"msi"`
	Friction      float64 `json:"friction"`
	Lag           float64 `json:"lag"`
	Health        Level   `json:"healthIndicator"`
	MSITrend      Trend   `json:"msiTrend"`
	FrictionTrend Trend   `json:"frictionTrend"`
	LagTrend      Trend   `json:"lagTrend"`
}

// TrendOf compares two rounded values.
func TrendOf(current, previous float64) Trend {
	switch {
	case current > previous:
		return TrendUp
	case current < previous:
		return TrendDown
	default:
		return TrendStable
	}
}

// ForState computes indices for one aggregation.
func ForState(s aggregate.StateAggregation) DerivedIndices {
	return Calculate(s.Enrolments, s.DemographicUpdates, s.BiometricUpdates)
}

// ForMonth derives indices and health for every state of current, in the
// month's state order. Trends compare against the same state in previous;
// states without a baseline are stable.
func ForMonth(current aggregate.MonthlyAggregation, previous *aggregate.MonthlyAggregation) []StateIndex {
	out := make([]StateIndex, 0, current.States.Len())
	for _, s := range current.StateList() {
		d := ForState(s)
		idx := StateIndex{
			StateID:       s.StateID,
			Name:          s.StateName,
			MSI:           d.MigrationStressIndex,
			Friction:      d.AdminFrictionScore,
			Lag:           d.BiometricUpdateLag,
			Health:        ClassifyIndices(d),
			MSITrend:      TrendStable,
			FrictionTrend: TrendStable,
			LagTrend:      TrendStable,
		}
		if previous != nil && previous.States != nil {
			if prev, ok := previous.States.Get(s.StateID); ok {
				p := ForState(*prev)
				idx.MSITrend = TrendOf(d.MigrationStressIndex, p.MigrationStressIndex)
				idx.FrictionTrend = TrendOf(d.AdminFrictionScore, p.AdminFrictionScore)
				idx.LagTrend = TrendOf(d.BiometricUpdateLag, p.BiometricUpdateLag)
			}
		}
		out = append(out, idx)
	}
	return out
}
