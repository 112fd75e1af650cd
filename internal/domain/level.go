package domain

import "math"

// LevelPointsCoef scales the level curve: reaching level L takes
// LevelPointsCoef * (L-1)^1.5 points.
const LevelPointsCoef = 100.0

// PointsRequiredForLevel returns the total points needed to be at level.
// Level 1 requires 0 points.
func PointsRequiredForLevel(level int) int {
	if level <= 1 {
		return 0
	}
	req := LevelPointsCoef * math.Pow(float64(level-1), 1.5)
	return int(math.Ceil(req))
}

// LevelForPoints returns the highest level L such that points >= PointsRequiredForLevel(L).
func LevelForPoints(points int) int {
	if points <= 0 {
		return 1
	}

	// Exponential search upper bound, then binary search.
	low := 1
	high := 2
	for PointsRequiredForLevel(high) <= points {
		low = high
		high *= 2
		if high > 1_000_000 {
			break
		}
	}

	for low+1 < high {
		mid := low + (high-low)/2
		if PointsRequiredForLevel(mid) <= points {
			low = mid
		} else {
			high = mid
		}
	}
	return low
}
