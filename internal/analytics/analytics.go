// Package analytics builds the chart datasets of the expert panel from the
// aggregated monthly series. Every function is pure; months are expected in
// chronological order as returned by the pipeline.
package analytics

import (
	"regexp"

	"aadhaar_pulse/internal/aggregate"
	"aadhaar_pulse/internal/anomaly"
	"aadhaar_pulse/internal/indices"
)

var monthKey = regexp.MustCompile(`^\d{4}-\d{2}$`)

// NationalSummary is the headline card for the latest period.
type NationalSummary struct {
	Period             string  `json:"period"`
	TotalEnrolments    int64   `json:"totalEnrolments"`
	DemographicUpdates int64   `json:"demographicUpdates"`
	BiometricUpdates   int64   `json:"biometricUpdates"`
	EnrolmentGrowth    float64 `json:"enrolmentGrowth"`
	DemographicGrowth  float64 `json:"demographicGrowth"`
	BiometricGrowth    float64 `json:"biometricGrowth"`
}

// Point is one dated value of a series.
type Point struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// Series holds the three national time series.
type Series struct {
	Enrolments         []Point `json:"enrolments"`
	DemographicUpdates []Point `json:"demographicUpdates"`
	BiometricUpdates   []Point `json:"biometricUpdates"`
}

// HeatmapCell is one state x month value.
type HeatmapCell struct {
	State string `json:"state"`
	Month string `json:"month"`
	Value int64  `json:"value"`
}

// AgeGroup is one slice of a state's age distribution.
type AgeGroup struct {
	AgeGroup   string  `json:"ageGroup"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// CorrelationPoint is one state plotted on two metrics.
type CorrelationPoint struct {
	State string  `json:"state"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
}

// Correlations holds the scatter datasets.
type Correlations struct {
	EnrolmentVsDemographic []CorrelationPoint `json:"enrolmentVsDemographic"`
	MSIVsFriction          []CorrelationPoint `json:"msiVsFriction"`
}

// NationalIndex is one national index with its previous value.
type NationalIndex struct {
	Current  float64       `json:"current"`
	Previous float64       `json:"previous"`
	Trend    indices.Trend `json:"trend"`
}

// NationalIndices are the three indices computed on national totals.
type NationalIndices struct {
	MigrationStressIndex NationalIndex `json:"migrationStressIndex"`
	AdminFrictionScore   NationalIndex `json:"adminFrictionScore"`
	BiometricUpdateLag   NationalIndex `json:"biometricUpdateLag"`
}

// StateTrend holds one state's per-month sparklines.
type StateTrend struct {
	Enrolment   []Point `json:"enrolmentTrend"`
	Demographic []Point `json:"demographicTrend"`
	Biometric   []Point `json:"biometricTrend"`
}

// Summary builds the national card for the last month.
func Summary(months []aggregate.MonthlyAggregation) NationalSummary {
	if len(months) == 0 {
		return NationalSummary{}
	}
	latest := months[len(months)-1].National
	out := NationalSummary{
		Period:             months[len(months)-1].Month,
		TotalEnrolments:    latest.TotalEnrolments,
		DemographicUpdates: latest.DemographicUpdates,
		BiometricUpdates:   latest.BiometricUpdates,
	}
	if len(months) > 1 {
		prev := months[len(months)-2].National
		out.EnrolmentGrowth = growth(latest.TotalEnrolments, prev.TotalEnrolments)
		out.DemographicGrowth = growth(latest.DemographicUpdates, prev.DemographicUpdates)
		out.BiometricGrowth = growth(latest.BiometricUpdates, prev.BiometricUpdates)
	}
	return out
}

// TimeSeries returns one point per month for each national quantity.
func TimeSeries(months []aggregate.MonthlyAggregation) Series {
	out := Series{
		Enrolments:         make([]Point, 0, len(months)),
		DemographicUpdates: make([]Point, 0, len(months)),
		BiometricUpdates:   make([]Point, 0, len(months)),
	}
	for _, m := range months {
		date := PointDate(m.Month)
		out.Enrolments = append(out.Enrolments, Point{Date: date, Value: m.National.TotalEnrolments})
		out.DemographicUpdates = append(out.DemographicUpdates, Point{Date: date, Value: m.National.DemographicUpdates})
		out.BiometricUpdates = append(out.BiometricUpdates, Point{Date: date, Value: m.National.BiometricUpdates})
	}
	return out
}

// Heatmap lists enrolments per state and month.
func Heatmap(months []aggregate.MonthlyAggregation) []HeatmapCell {
	cells := []HeatmapCell{}
	for _, m := range months {
		for _, s := range m.StateList() {
			cells = append(cells, HeatmapCell{State: s.StateID, Month: m.Month, Value: s.Enrolments})
		}
	}
	return cells
}

// AgeDistribution splits a state's enrolments into the three age buckets.
func AgeDistribution(s aggregate.StateAggregation) []AgeGroup {
	groups := []AgeGroup{
		{AgeGroup: "0-5", Count: s.Age0To5},
		{AgeGroup: "5-17", Count: s.Age5To17},
		{AgeGroup: "18+", Count: s.Age18Plus},
	}
	if s.Enrolments > 0 {
		for i := range groups {
			groups[i].Percentage = indices.Round(float64(groups[i].Count)/float64(s.Enrolments)*100, 1)
		}
	}
	return groups
}

// Correlate builds the scatter datasets for the latest month. idx is matched
// to states by state ID.
func Correlate(states []aggregate.StateAggregation, idx []indices.StateIndex) Correlations {
	out := Correlations{
		EnrolmentVsDemographic: make([]CorrelationPoint, 0, len(states)),
		MSIVsFriction:          make([]CorrelationPoint, 0, len(idx)),
	}
	for _, s := range states {
		out.EnrolmentVsDemographic = append(out.EnrolmentVsDemographic, CorrelationPoint{
			State: s.StateID,
			X:     float64(s.Enrolments),
			Y:     float64(s.DemographicUpdates),
			Label: s.StateName,
		})
	}
	for _, i := range idx {
		out.MSIVsFriction = append(out.MSIVsFriction, CorrelationPoint{State: i.StateID, X: i.MSI, Y: i.Friction, Label: i.Name})
	}
	return out
}

// National computes the indices on national totals for the last two months.
func National(months []aggregate.MonthlyAggregation) NationalIndices {
	if len(months) == 0 {
		return NationalIndices{
			MigrationStressIndex: NationalIndex{Trend: indices.TrendStable},
			AdminFrictionScore:   NationalIndex{Trend: indices.TrendStable},
			BiometricUpdateLag:   NationalIndex{Trend: indices.TrendStable},
		}
	}
	cur := nationalIndices(months[len(months)-1].National)
	prev := cur
	if len(months) > 1 {
		prev = nationalIndices(months[len(months)-2].National)
	}
	pair := func(c, p float64) NationalIndex {
		return NationalIndex{Current: c, Previous: p, Trend: indices.TrendOf(c, p)}
	}
	return NationalIndices{
		MigrationStressIndex: pair(cur.MigrationStressIndex, prev.MigrationStressIndex),
		AdminFrictionScore:   pair(cur.AdminFrictionScore, prev.AdminFrictionScore),
		BiometricUpdateLag:   pair(cur.BiometricUpdateLag, prev.BiometricUpdateLag),
	}
}

// TrendFor returns per-month sparklines for one state, skipping months where
// the state has no rows.
func TrendFor(months []aggregate.MonthlyAggregation, stateID string) StateTrend {
	out := StateTrend{Enrolment: []Point{}, Demographic: []Point{}, Biometric: []Point{}}
	for _, m := range months {
		if m.States == nil {
			continue
		}
		s, ok := m.States.Get(stateID)
		if !ok {
			continue
		}
		date := PointDate(m.Month)
		out.Enrolment = append(out.Enrolment, Point{Date: date, Value: s.Enrolments})
		out.Demographic = append(out.Demographic, Point{Date: date, Value: s.DemographicUpdates})
		out.Biometric = append(out.Biometric, Point{Date: date, Value: s.BiometricUpdates})
	}
	return out
}

// PointDate turns a YYYY-MM key into the first day of that month. Keys that
// are not month keys are returned unchanged.
func PointDate(month string) string {
	if monthKey.MatchString(month) {
		return month + "-01"
	}
	return month
}

func growth(current, previous int64) float64 {
	return indices.Round(anomaly.PercentChange(current, previous), 1)
}

func nationalIndices(n aggregate.NationalTotals) indices.DerivedIndices {
	return indices.Calculate(n.TotalEnrolments, n.DemographicUpdates, n.BiometricUpdates)
}
