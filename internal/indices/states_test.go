package indices

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aadhaar_pulse/internal/aggregate"
)

func monthOf(key string, states ...aggregate.StateAggregation) aggregate.MonthlyAggregation {
	m := aggregate.MonthlyAggregation{Month: key, States: aggregate.NewOrderedMap[string, *aggregate.StateAggregation]()}
	for _, s := range states {
		s := s
		m.States.GetOrInsert(s.StateID, func() *aggregate.StateAggregation { return &s })
	}
	return m
}

func TestTrendOf(t *testing.T) {
	assert.Equal(t, TrendUp, TrendOf(0.5, 0.4))
	assert.Equal(t, TrendDown, TrendOf(0.3, 0.4))
	assert.Equal(t, TrendStable, TrendOf(0.4, 0.4))
}

func TestForMonth(t *testing.T) {
	prev := monthOf("2024-01",
		aggregate.StateAggregation{StateID: "BR", StateName: "Bihar", Enrolments: 1000, DemographicUpdates: 500, BiometricUpdates: 100},
	)
	cur := monthOf("2024-02",
		aggregate.StateAggregation{StateID: "BR", StateName: "Bihar", Enrolments: 1000, DemographicUpdates: 1200, BiometricUpdates: 20},
		aggregate.StateAggregation{StateID: "GA", StateName: "Goa", Enrolments: 1000},
	)

	got := ForMonth(cur, &prev)
	require.Len(t, got, 2)

	bihar := got[0]
	assert.Equal(t, "BR", bihar.StateID)
	assert.Equal(t, "Bihar", bihar.Name)
	assert.InDelta(t, 1.2, bihar.MSI, 1e-9)
	assert.InDelta(t, 0.45, bihar.Friction, 1e-9)
	assert.InDelta(t, 9.6, bihar.Lag, 1e-9)
	assert.Equal(t, LevelHigh, bihar.Health)
	assert.Equal(t, TrendUp, bihar.MSITrend)
	assert.Equal(t, TrendDown, bihar.FrictionTrend)
	assert.Equal(t, TrendUp, bihar.LagTrend)

	goa := got[1]
	assert.Equal(t, TrendStable, goa.MSITrend)
	assert.Equal(t, TrendStable, goa.LagTrend)
	assert.InDelta(t, 12.0, goa.Lag, 1e-9)
	assert.Equal(t, LevelMedium, goa.Health)
}

func TestForMonthWithoutPrevious(t *testing.T) {
	cur := monthOf("2024-02", aggregate.StateAggregation{StateID: "KL", StateName: "Kerala"})
	got := ForMonth(cur, nil)
	require.Len(t, got, 1)
	assert.Equal(t, LevelLow, got[0].Health)
	assert.Equal(t, TrendStable, got[0].FrictionTrend)
}
