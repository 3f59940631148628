package buildorder

import "math"

const (
	estimateEpsilon       = 0.01
	estimateMaxIterations = 8
)

// boostedFunc returns the boosted seconds inside [start, end].
type boostedFunc func(start, end float64) float64

// estimateStart projects a completion time back through a production of
// duration base seconds. Boosted seconds progress at rate instead of 1, so
//
//	start = completion - duration + boosted(start, completion) * (rate - 1)
//
// The boosted share depends on start itself; the equation is solved by
// iterating from the unboosted guess until successive estimates agree.
func estimateStart(completion, duration, rate float64, boosted boostedFunc) float64 {
	start := completion - duration
	if rate <= 1 || boosted == nil {
		return start
	}
	for i := 0; i < estimateMaxIterations; i++ {
		next := completion - duration + boosted(start, completion)*(rate-1)
		if math.Abs(next-start) < estimateEpsilon {
			return next
		}
		start = next
	}
	return start
}
