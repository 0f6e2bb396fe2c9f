package aggregate

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"aadhaar_pulse/internal/ingest"
)

// StateAggregation accumulates one state's counts for one month.
type StateAggregation struct {
	StateID            string `json:"stateId"`
	StateName          string `json:"stateName"`
	StateCode          string `json:"stateCode"`
	Enrolments         int64  `json:"enrolments"`
	DemographicUpdates int64  `json:"demographicUpdates"`
	BiometricUpdates   int64  `json:"biometricUpdates"`
	Age0To5            int64  `json:"age0_5"`
	Age5To17           int64  `json:"age5_17"`
	Age18Plus          int64  `json:"age18Plus"`
}

// NationalTotals sums every state of a month.
type NationalTotals struct {
	TotalEnrolments    int64 `json:"totalEnrolments"`
	DemographicUpdates int64 `json:"demographicUpdates"`
	BiometricUpdates   int64 `json:"biometricUpdates"`
}

// StateMap holds a month's states keyed by code in first-seen order.
type StateMap = OrderedMap[string, *StateAggregation]

// MonthlyAggregation is the per-month container.
type MonthlyAggregation struct {
	Month    string         `json:"month"`
	States   *StateMap      `json:"states"`
	National NationalTotals `json:"national"`
}

// StateList returns copies of the month's states in first-seen order.
func (m MonthlyAggregation) StateList() []StateAggregation {
	values := m.States.Values()
	out := make([]StateAggregation, 0, len(values))
	for _, s := range values {
		out = append(out, *s)
	}
	return out
}

// Months maps month keys to aggregations in first-seen order.
type Months = OrderedMap[string, *MonthlyAggregation]

// UpdateKind selects which counter an update pass writes into.
type UpdateKind string

const (
	UpdateDemographic UpdateKind = "demographic"
	UpdateBiometric   UpdateKind = "biometric"
)

// ParseMonth converts DD-MM-YYYY into YYYY-MM. Anything that does not split
// into exactly three dash-separated parts is returned unchanged.
func ParseMonth(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	month := parts[1]
	if len(month) < 2 {
		month = strings.Repeat("0", 2-len(month)) + month
	}
	return parts[2] + "-" + month
}

// ParseCount reads the leading integer of s. Leading whitespace and a sign
// are accepted, trailing characters are ignored, and a value without digits
// is 0.
func ParseCount(s string) int64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Aggregate folds enrolment rows into month -> state totals.
func Aggregate(rows []ingest.RawRow) *Months {
	months := NewOrderedMap[string, *MonthlyAggregation]()
	for _, row := range rows {
		monthAgg, stateAgg := locate(months, row)

		age0To5 := ParseCount(row.Age0To5)
		age5To17 := ParseCount(row.Age5To17)
		age18Plus := ParseCount(row.Age18Greater)
		total := age0To5 + age5To17 + age18Plus

		stateAgg.Enrolments += total
		stateAgg.Age0To5 += age0To5
		stateAgg.Age5To17 += age5To17
		stateAgg.Age18Plus += age18Plus

		monthAgg.National.TotalEnrolments += total
	}
	return months
}

// ApplyUpdates folds update rows into an existing aggregation using the same
// grouping and coercion as Aggregate. The bucket sum of each row is added to
// the counter selected by kind; age subtotals and enrolments are untouched.
func ApplyUpdates(months *Months, rows []ingest.RawRow, kind UpdateKind) {
	for _, row := range rows {
		monthAgg, stateAgg := locate(months, row)
		total := ParseCount(row.Age0To5) + ParseCount(row.Age5To17) + ParseCount(row.Age18Greater)
		switch kind {
		case UpdateDemographic:
			stateAgg.DemographicUpdates += total
			monthAgg.National.DemographicUpdates += total
		case UpdateBiometric:
			stateAgg.BiometricUpdates += total
			monthAgg.National.BiometricUpdates += total
		}
	}
}

func locate(months *Months, row ingest.RawRow) (*MonthlyAggregation, *StateAggregation) {
	month := ParseMonth(row.Date)
	code, _ := StateCode(row.State)

	monthAgg := months.GetOrInsert(month, func() *MonthlyAggregation {
		return &MonthlyAggregation{Month: month, States: NewOrderedMap[string, *StateAggregation]()}
	})
	stateAgg := monthAgg.States.GetOrInsert(code, func() *StateAggregation {
		return &StateAggregation{StateID: code, StateName: row.State, StateCode: code}
	})
	return monthAgg, stateAgg
}

// Sorted returns the months ordered by key, which is chronological for
// YYYY-MM keys.
func Sorted(months *Months) []MonthlyAggregation {
	values := months.Values()
	out := make([]MonthlyAggregation, 0, len(values))
	for _, m := range values {
		out = append(out, *m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
