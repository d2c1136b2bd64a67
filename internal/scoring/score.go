package scoring

import "math"

const (
	BaseScore = 50.0
	MaxScore  = 100.0
)

// Urgency maps a vote count to a priority score in [50, 100].
func Urgency(voteCount int) float64 {
	if voteCount < 0 {
		voteCount = 0
	}
	return math.Min(MaxScore, BaseScore+20*math.Log10(float64(voteCount)+1))
}
