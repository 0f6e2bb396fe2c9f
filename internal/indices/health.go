package indices

// Level is a three-step severity used for health indicators.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// HealthScore sums the per-metric points: 2 above the upper cut, 1 above the
// lower cut.
func HealthScore(msi, friction, lag float64) int {
	return points(msi, 1, 0.7) + points(friction, 0.4, 0.2) + points(lag, 6, 3)
}

// Classify maps the three indices to a health level.
func Classify(msi, friction, lag float64) Level {
	score := HealthScore(msi, friction, lag)
	switch {
	case score >= 4:
		return LevelHigh
	case score >= 2:
		return LevelMedium
	default:
		return LevelLow
	}
}

// ClassifyIndices is Classify over a DerivedIndices value.
func ClassifyIndices(d DerivedIndices) Level {
	return Classify(d.MigrationStressIndex, d.AdminFrictionScore, d.BiometricUpdateLag)
}

func points(v, high, medium float64) int {
	switch {
	case v > high:
		return 2
	case v > medium:
		return 1
	default:
		return 0
	}
}
