package assessment

// Band is a severity label for a score.
type Band string

// Severity bands shared by both scales. GAD-7 has no moderately severe band.
const (
	BandMinimal          Band = "minimal"
	BandMild             Band = "mild"
	BandModerate         Band = "moderate"
	BandModeratelySevere Band = "moderately severe"
	BandSevere           Band = "severe"
)

// PHQ9Band classifies a PHQ-9 total (0-27).
func PHQ9Band(score int) Band {
	switch {
	case score >= 20:
		return BandSevere
	case score >= 15:
		return BandModeratelySevere
	case score >= 10:
		return BandModerate
	case score >= 5:
		return BandMild
	default:
		return BandMinimal
	}
}

// GAD7Band classifies a GAD-7 total (0-21).
func GAD7Band(score int) Band {
	switch {
	case score >= 15:
		return BandSevere
	case score >= 10:
		return BandModerate
	case score >= 5:
		return BandMild
	default:
		return BandMinimal
	}
}
