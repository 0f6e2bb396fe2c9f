package aggregate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aadhaar_pulse/internal/ingest"
)

func row(date, state, a, b, c string) ingest.RawRow {
	return ingest.RawRow{Date: date, State: state, District: "d", Pincode: "000000", Age0To5: a, Age5To17: b, Age18Greater: c}
}

func TestParseMonth(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "day-month-year", input: "05-03-2024", want: "2024-03"},
		{name: "single digit month is padded", input: "5-3-2024", want: "2024-03"},
		{name: "two parts pass through", input: "2024-03", want: "2024-03"},
		{name: "four parts pass through", input: "01-02-03-2024", want: "01-02-03-2024"},
		{name: "slashes pass through", input: "05/03/2024", want: "05/03/2024"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMonth(tt.input))
		})
	}
}

func TestStateCode(t *testing.T) {
	code, known := StateCode("Maharashtra")
	assert.Equal(t, "MH", code)
	assert.True(t, known)

	code, known = StateCode("Narnia")
	assert.Equal(t, "NA", code)
	assert.False(t, known)

	code, known = StateCode("Nagaland")
	assert.Equal(t, "NL", code)
	assert.True(t, known)

	// Unknown names sharing a prefix collide on purpose.
	a, _ := StateCode("Atlantis")
	b, _ := StateCode("Atlas")
	assert.Equal(t, a, b)

	code, known = StateCode("x")
	assert.Equal(t, "X", code)
	assert.False(t, known)
}

func TestKnownStatesTableIsFrozenCopy(t *testing.T) {
	table := KnownStates()
	assert.Len(t, table, 36)
	table["Maharashtra"] = "ZZ"
	code, _ := StateCode("Maharashtra")
	assert.Equal(t, "MH", code)
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"42", 42},
		{"  17", 17},
		{"12abc", 12},
		{"3.7", 3},
		{"-5", -5},
		{"+8", 8},
		{"abc", 0},
		{"", 0},
		{"-", 0},
		{"1,234", 1},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCount(tt.input))
		})
	}
}

func TestAggregateGroupsByMonthAndState(t *testing.T) {
	rows := []ingest.RawRow{
		row("01-03-2024", "Bihar", "1", "2", "3"),
		row("15-03-2024", "Goa", "10", "0", "0"),
		row("20-03-2024", "Bihar", "4", "5", "6"),
		row("02-04-2024", "Goa", "7", "7", "7"),
	}

	months := Aggregate(rows)
	require.Equal(t, []string{"2024-03", "2024-04"}, months.Keys())

	march, ok := months.Get("2024-03")
	require.True(t, ok)
	assert.Equal(t, []string{"BR", "GA"}, march.States.Keys())

	bihar, ok := march.States.Get("BR")
	require.True(t, ok)
	assert.Equal(t, StateAggregation{
		StateID:    "BR",
		StateName:  "Bihar",
		StateCode:  "BR",
		Enrolments: 21,
		Age0To5:    5,
		Age5To17:   7,
		Age18Plus:  9,
	}, *bihar)
	assert.Equal(t, int64(31), march.National.TotalEnrolments)
}

func TestAggregateEnrolmentsEqualBucketSums(t *testing.T) {
	rows := []ingest.RawRow{
		row("01-03-2024", "Kerala", "11", "22", "33"),
		row("01-03-2024", "Punjab", "abc", "5", ""),
		row("01-03-2024", "Narnia", "1", "1", "1"),
		row("09-03-2024", "Kerala", "3", "x", "9"),
	}

	months := Aggregate(rows)
	march, _ := months.Get("2024-03")

	var enrolments, buckets int64
	for _, s := range march.StateList() {
		enrolments += s.Enrolments
		buckets += s.Age0To5 + s.Age5To17 + s.Age18Plus
	}
	assert.Equal(t, buckets, enrolments)
	assert.Equal(t, enrolments, march.National.TotalEnrolments)
}

func TestAggregateCoercesMalformedCountsToZero(t *testing.T) {
	months := Aggregate([]ingest.RawRow{row("01-01-2024", "Assam", "abc", "2", "3")})
	jan, _ := months.Get("2024-01")
	assam, _ := jan.States.Get("AS")
	assert.Equal(t, int64(0), assam.Age0To5)
	assert.Equal(t, int64(5), assam.Enrolments)
}

func TestAggregateKeepsFirstSeenName(t *testing.T) {
	months := Aggregate([]ingest.RawRow{
		row("01-01-2024", "Narnia", "1", "0", "0"),
		row("01-01-2024", "Nalanda Republic", "1", "0", "0"),
	})
	jan, _ := months.Get("2024-01")
	require.Equal(t, 1, jan.States.Len())
	na, _ := jan.States.Get("NA")
	assert.Equal(t, "Narnia", na.StateName)
	assert.Equal(t, int64(2), na.Enrolments)
}

func TestAggregateUnrecognisedDateUsesRawKey(t *testing.T) {
	months := Aggregate([]ingest.RawRow{
		row("2024/01/05", "Goa", "1", "0", "0"),
		row("05-01-2024", "Goa", "1", "0", "0"),
	})
	assert.Equal(t, []string{"2024/01/05", "2024-01"}, months.Keys())
}

func TestApplyUpdates(t *testing.T) {
	months := Aggregate([]ingest.RawRow{
		row("01-03-2024", "Bihar", "100", "0", "0"),
		row("01-03-2024", "Goa", "50", "0", "0"),
	})

	ApplyUpdates(months, []ingest.RawRow{
		row("03-03-2024", "Bihar", "", "10", "20"),
		row("04-03-2024", "Goa", "", "5", "x"),
	}, UpdateDemographic)
	ApplyUpdates(months, []ingest.RawRow{
		row("03-03-2024", "Bihar", "", "1", "2"),
		row("03-04-2024", "Sikkim", "", "4", "4"),
	}, UpdateBiometric)

	march, _ := months.Get("2024-03")
	bihar, _ := march.States.Get("BR")
	assert.Equal(t, int64(100), bihar.Enrolments)
	assert.Equal(t, int64(30), bihar.DemographicUpdates)
	assert.Equal(t, int64(3), bihar.BiometricUpdates)
	assert.Equal(t, int64(100), bihar.Age0To5)

	var demo, bio int64
	for _, s := range march.StateList() {
		demo += s.DemographicUpdates
		bio += s.BiometricUpdates
	}
	assert.Equal(t, demo, march.National.DemographicUpdates)
	assert.Equal(t, bio, march.National.BiometricUpdates)
	assert.Equal(t, int64(150), march.National.TotalEnrolments)

	april, ok := months.Get("2024-04")
	require.True(t, ok)
	sikkim, _ := april.States.Get("SK")
	assert.Equal(t, int64(0), sikkim.Enrolments)
	assert.Equal(t, int64(8), sikkim.BiometricUpdates)
}

func TestSortedOrdersMonthsChronologically(t *testing.T) {
	months := Aggregate([]ingest.RawRow{
		row("01-12-2024", "Goa", "1", "0", "0"),
		row("01-02-2024", "Goa", "1", "0", "0"),
		row("01-11-2023", "Goa", "1", "0", "0"),
	})
	sorted := Sorted(months)
	require.Len(t, sorted, 3)
	assert.Equal(t, "2023-11", sorted[0].Month)
	assert.Equal(t, "2024-02", sorted[1].Month)
	assert.Equal(t, "2024-12", sorted[2].Month)
}

func TestMonthlyAggregationJSONListsStatesInOrder(t *testing.T) {
	months := Aggregate([]ingest.RawRow{
		row("01-01-2024", "Tripura", "1", "0", "0"),
		row("01-01-2024", "Assam", "2", "0", "0"),
	})
	jan, _ := months.Get("2024-01")

	raw, err := json.Marshal(jan)
	require.NoError(t, err)

	var decoded struct {
		Month  string `json:"month"`
		States []struct {
			StateID    string `json:"stateId"`
			Enrolments int64  `json:"enrolments"`
		} `json:"states"`
		National map[string]int64 `json:"national"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.States, 2)
	assert.Equal(t, "TR", decoded.States[0].StateID)
	assert.Equal(t, "AS", decoded.States[1].StateID)
	assert.Equal(t, int64(3), decoded.National["totalEnrolments"])
}

func TestOrderedMapEmptyMarshalsAsArray(t *testing.T) {
	raw, err := json.Marshal(NewOrderedMap[string, int]())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
