package indices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name        string
		enrolments  int64
		demographic int64
		biometric   int64
		expected    DerivedIndices
	}{
		{
			name:        "demographic heavy state without biometric updates",
			enrolments:  1000000,
			demographic: 700000,
			biometric:   0,
			expected:    DerivedIndices{MigrationStressIndex: 0.7, AdminFrictionScore: 0.59, BiometricUpdateLag: 12.0},
		},
		{
			name:     "no enrolments and no updates",
			expected: DerivedIndices{},
		},
		{
			name:        "updates without enrolments",
			demographic: 100,
			expected:    DerivedIndices{MigrationStressIndex: 0, AdminFrictionScore: 0, BiometricUpdateLag: 0},
		},
		{
			name:       "biometric updates above expectation clamp lag to zero",
			enrolments: 1000,
			biometric:  500,
			expected:   DerivedIndices{MigrationStressIndex: 0, AdminFrictionScore: 0.67, BiometricUpdateLag: 0},
		},
		{
			name:       "half of expected biometric volume",
			enrolments: 1000,
			biometric:  50,
			expected:   DerivedIndices{MigrationStressIndex: 0, AdminFrictionScore: 0.95, BiometricUpdateLag: 6.0},
		},
		{
			name:        "negative demographic input is not clamped",
			enrolments:  1000,
			demographic: -100,
			expected:    DerivedIndices{MigrationStressIndex: -0.1, AdminFrictionScore: 0, BiometricUpdateLag: 12.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Calculate(tt.enrolments, tt.demographic, tt.biometric)
			assert.InDelta(t, tt.expected.MigrationStressIndex, got.MigrationStressIndex, 1e-9)
			assert.InDelta(t, tt.expected.AdminFrictionScore, got.AdminFrictionScore, 1e-9)
			assert.InDelta(t, tt.expected.BiometricUpdateLag, got.BiometricUpdateLag, 1e-9)
		})
	}
}

func TestCalculateIsPure(t *testing.T) {
	first := Calculate(5234521, 3421098, 2156789)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Calculate(5234521, 3421098, 2156789))
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		x        float64
		decimals int
		expected float64
	}{
		{0.125, 2, 0.13},
		{0.5882352941, 2, 0.59},
		{-1.25, 1, -1.2},
		{-0.5, 0, 0},
		{7.84, 1, 7.8},
		{60, 1, 60},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.expected, Round(tt.x, tt.decimals), 1e-9, "Round(%v, %d)", tt.x, tt.decimals)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		msi      float64
		friction float64
		lag      float64
		score    int
		expected Level
	}{
		{name: "all stressed", msi: 1.24, friction: 0.32, lag: 7.8, score: 5, expected: LevelHigh},
		{name: "mostly calm", msi: 0.67, friction: 0.14, lag: 4.1, score: 1, expected: LevelLow},
		{name: "two mild signals", msi: 0.8, friction: 0.3, lag: 0, score: 2, expected: LevelMedium},
		{name: "thresholds are strict", msi: 1, friction: 0.4, lag: 6, score: 3, expected: LevelMedium},
		{name: "lower thresholds are strict", msi: 0.7, friction: 0.2, lag: 3, score: 0, expected: LevelLow},
		{name: "exactly four", msi: 1.01, friction: 0.41, lag: 0, score: 4, expected: LevelHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.score, HealthScore(tt.msi, tt.friction, tt.lag))
			assert.Equal(t, tt.expected, Classify(tt.msi, tt.friction, tt.lag))
		})
	}
}

func TestClassifyIndices(t *testing.T) {
	d := Calculate(1000000, 700000, 0)
	assert.Equal(t, LevelHigh, ClassifyIndices(d))
}
