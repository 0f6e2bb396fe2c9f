// Package pipeline runs the ingest, aggregate, index and anomaly steps over a
// data directory and produces the bundle served to the dashboard.
package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"aadhaar_pulse/internal/aggregate"
	"aadhaar_pulse/internal/anomaly"
	"aadhaar_pulse/internal/indices"
	"aadhaar_pulse/internal/ingest"
)

// Input subfolders under the data directory.
const (
	EnrolmentDir   = "api_data_aadhar_enrolment"
	DemographicDir = "api_data_aadhar_demographic"
	BiometricDir   = "api_data_aadhar_biometric"
)

// RowCounts reports how many rows each source contributed.
type RowCounts struct {
	Enrolment   int `json:"enrolment"`
	Demographic int `json:"demographic"`
	Biometric   int `json:"biometric"`
}

// Result is the output bundle of one run.
type Result struct {
	States          []aggregate.StateAggregation   `json:"states"`
	MonthlyData     []aggregate.MonthlyAggregation `json:"monthlyData"`
	Anomalies       []anomaly.Anomaly              `json:"anomalies"`
	LatestMonth     string                         `json:"latestMonth"`
	Indices         []indices.StateIndex           `json:"indices"`
	UpdatesIncluded bool                           `json:"updatesIncluded"`
	RowCounts       RowCounts                      `json:"rowCounts"`
}

// ProcessAll reads every input folder under dataDir and builds the bundle.
// The enrolment folder is required; the update folders are optional.
func ProcessAll(dataDir string) (Result, error) {
	rows, err := ingest.ReadCSVFiles(filepath.Join(dataDir, EnrolmentDir))
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: enrolment: %w", err)
	}
	months := aggregate.Aggregate(rows)
	counts := RowCounts{Enrolment: len(rows)}

	demographic, okDemo, err := readOptional(filepath.Join(dataDir, DemographicDir))
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: demographic: %w", err)
	}
	biometric, okBio, err := readOptional(filepath.Join(dataDir, BiometricDir))
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: biometric: %w", err)
	}
	aggregate.ApplyUpdates(months, demographic, aggregate.UpdateDemographic)
	aggregate.ApplyUpdates(months, biometric, aggregate.UpdateBiometric)
	counts.Demographic = len(demographic)
	counts.Biometric = len(biometric)

	res := Build(aggregate.Sorted(months))
	res.UpdatesIncluded = okDemo && okBio
	res.RowCounts = counts

	log.Printf("pipeline: month=%s months=%d states=%d anomalies=%d updates=%t", res.LatestMonth, len(res.MonthlyData), len(res.States), len(res.Anomalies), res.UpdatesIncluded)
	return res, nil
}

// Build assembles the bundle from chronologically sorted months. The last
// month is the snapshot and the one before it, if any, is the baseline.
func Build(sorted []aggregate.MonthlyAggregation) Result {
	res := Result{
		States:      []aggregate.StateAggregation{},
		MonthlyData: sorted,
		Anomalies:   []anomaly.Anomaly{},
		Indices:     []indices.StateIndex{},
	}
	if res.MonthlyData == nil {
		res.MonthlyData = []aggregate.MonthlyAggregation{}
	}
	if len(sorted) == 0 {
		return res
	}

	latest := sorted[len(sorted)-1]
	var previous *aggregate.MonthlyAggregation
	if len(sorted) > 1 {
		previous = &sorted[len(sorted)-2]
	}

	res.LatestMonth = latest.Month
	res.States = latest.StateList()
	res.Anomalies = anomaly.Detect(latest, previous)
	res.Indices = indices.ForMonth(latest, previous)
	return res
}

func readOptional(dir string) ([]ingest.RawRow, bool, error) {
	rows, err := ingest.ReadCSVFiles(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("pipeline: skip missing dir=%s", dir)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return rows, true, nil
}
