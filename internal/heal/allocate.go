package heal

import (
	"math"
	"sort"
)

// LargestRemainder splits total into integers proportional to the positive
// part of weights. The parts always sum to total when total > 0; a
// non-positive total yields zeros. Without positive weight the split is
// uniform with the remainder going to the first entries.
func LargestRemainder(total int64, weights []float64) []int64 {
	out := make([]int64, len(weights))
	if total <= 0 || len(weights) == 0 {
		return out
	}

	var sum float64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	n := int64(len(weights))
	if sum <= 0 {
		base, rem := total/n, total%n
		for i := range out {
			out[i] = base
			if int64(i) < rem {
				out[i]++
			}
		}
		return out
	}

	type frac struct {
		idx int
		rem float64
	}
	fracs := make([]frac, len(weights))
	var assigned int64
	for i, w := range weights {
		share := float64(total) * math.Max(0, w) / sum
		floor := math.Floor(share)
		out[i] = int64(floor)
		assigned += out[i]
		fracs[i] = frac{idx: i, rem: share - floor}
	}
	sort.SliceStable(fracs, func(a, b int) bool { return fracs[a].rem > fracs[b].rem })
	for j := int64(0); j < total-assigned; j++ {
		out[fracs[j%n].idx]++
	}
	return out
}
