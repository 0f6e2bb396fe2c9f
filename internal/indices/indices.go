// Package indices derives the per-state stress metrics shown on the dashboard
// and folds them into a three-level health indicator.
package indices

import "math"

// expectedBiometricShare is the fraction of the enrolled population assumed
// to be due for a biometric refresh in a period.
const expectedBiometricShare = 0.1

// DerivedIndices holds the three rounded metrics for one state.
type DerivedIndices struct {
	MigrationStressIndex float64 `json:"migrationStressIndex"`
	AdminFrictionScore   float64 `json:"adminFrictionScore"`
	BiometricUpdateLag   float64 `json:"biometricUpdateLag"`
}

// Calculate computes the indices from a state's totals.
//
// Admin friction is a proxy: no completion or rejection data exists, so it is
// derived from update volume relative to enrolment plus update volume.
// Only the lag is clamped at zero; MSI and friction can go negative when the
// inputs are negative.
func Calculate(enrolments, demographicUpdates, biometricUpdates int64) DerivedIndices {
	e := float64(enrolments)
	d := float64(demographicUpdates)
	b := float64(biometricUpdates)

	msi := 0.0
	if e > 0 {
		msi = d / e
	}

	friction := 0.0
	totalUpdates := d + b
	if totalUpdates > 0 {
		friction = 1 - totalUpdates/(e+totalUpdates)
	}

	lag := 0.0
	expected := e * expectedBiometricShare
	if expected > 0 {
		lag = math.Max(0, (expected-b)/expected) * 12
	}

	return DerivedIndices{
		MigrationStressIndex: Round(msi, 2),
		AdminFrictionScore:   Round(friction, 2),
		BiometricUpdateLag:   Round(lag, 1),
	}
}

// Round rounds x to the given number of decimals with halves going toward
// positive infinity.
func Round(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Floor(x*p+0.5) / p
}
