package anomaly

import (
	"fmt"
	"math"

	"aadhaar_pulse/internal/aggregate"
	"aadhaar_pulse/internal/indices"
)

// EnrolmentChangeThreshold is the percentage swing that must be exceeded
// before a month-over-month change is flagged.
const EnrolmentChangeThreshold = 30.0

// highSeverityChange is the swing above which an anomaly is high severity.
const highSeverityChange = 50.0

const (
	MetricEnrolmentSpike = "enrolmentSpike"
	MetricEnrolmentDrop  = "enrolmentDrop"

	ReasonEnrolmentSpike = "ENROLMENT_SPIKE"
	ReasonEnrolmentDrop  = "ENROLMENT_DROP"
)

// Anomaly is one flagged deviation for a state.
type Anomaly struct {
	StateID     string        `json:"stateId"`
	StateName   string        `json:"stateName"`
	Month       string        `json:"month"`
	Severity    indices.Level `json:"severity"`
	Metric      string        `json:"metric"`
	Value       float64       `json:"value"`
	Threshold   float64       `json:"threshold"`
	ReasonCode  string        `json:"reasonCode"`
	Explanation string        `json:"explanation"`
}

// Detect compares current against previous and flags states whose enrolments
// moved by more than EnrolmentChangeThreshold percent. Without a previous
// month there is no baseline and nothing is flagged. States absent from the
// previous month are skipped.
//
// Only enrolment swings are detected; migration stress, friction and lag
// have no anomaly rules.
func Detect(current aggregate.MonthlyAggregation, previous *aggregate.MonthlyAggregation) []Anomaly {
	anomalies := []Anomaly{}
	if previous == nil || previous.States == nil {
		return anomalies
	}

	for _, stateID := range current.States.Keys() {
		cur, _ := current.States.Get(stateID)
		prev, ok := previous.States.Get(stateID)
		if !ok {
			continue
		}

		change := PercentChange(cur.Enrolments, prev.Enrolments)
		if math.Abs(change) <= EnrolmentChangeThreshold {
			continue
		}

		anomalies = append(anomalies, build(stateID, cur.StateName, current.Month, change))
	}
	return anomalies
}

// PercentChange returns (current-previous)/previous*100, or 0 when previous
// is not positive.
func PercentChange(current, previous int64) float64 {
	if previous <= 0 {
		return 0
	}
	return float64(current-previous) / float64(previous) * 100
}

func build(stateID, stateName, month string, change float64) Anomaly {
	severity := indices.LevelMedium
	if math.Abs(change) > highSeverityChange {
		severity = indices.LevelHigh
	}
	metric, reason, direction := MetricEnrolmentDrop, ReasonEnrolmentDrop, "decreased"
	if change > 0 {
		metric, reason, direction = MetricEnrolmentSpike, ReasonEnrolmentSpike, "increased"
	}
	return Anomaly{
		StateID:     stateID,
		StateName:   stateName,
		Month:       month,
		Severity:    severity,
		Metric:      metric,
		Value:       indices.Round(change, 1),
		Threshold:   EnrolmentChangeThreshold,
		ReasonCode:  reason,
		Explanation: fmt.Sprintf("Enrolment %s by %.1f%% compared to previous month.", direction, indices.Round(math.Abs(change), 1)),
	}
}
