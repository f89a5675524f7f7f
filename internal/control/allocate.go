package control

import "math"

// allocateGroup distributes `unallocated` tenths of mB/t across units
// sorted ascending by lim_br10, per spec.md §4.4.1 step 2: compute an
// even base share, let any unit whose limit is below the share absorb
// its full limit instead and push the difference back into the base
// share for the remaining units, repeating until every unit has been
// assigned. Returns the per-unit assignments (same order as input)
// and the remaining unallocated tenths: all of `unallocated` when the
// group is empty, and nonzero whenever the units' limits cannot
// absorb the whole amount.
func allocateGroup(units []ControlledUnit, unallocated int64) (assigned []int64, residual int64) {
	n := len(units)
	assigned = make([]int64, n)
	if n == 0 {
		return assigned, unallocated
	}

	limits := make([]int64, n)
	for i, u := range units {
		limits[i] = u.AGetEffectiveLimit()
	}

	done := make([]bool, n)
	remaining := unallocated
	remainingCount := n

	for remainingCount > 0 && remaining > 0 {
		share := remaining / int64(remainingCount)
		progressed := false

		for i := 0; i < n; i++ {
			if done[i] {
				continue
			}
			if share <= limits[i] {
				continue
			}
			assigned[i] = limits[i]
			remaining -= limits[i]
			done[i] = true
			remainingCount--
			progressed = true
		}

		if !progressed {
			// Every remaining unit's limit is >= share: assign the
			// base share to all but the last, which absorbs the
			// remainder (spec.md §4.4.1 step 2b).
			idx := 0
			for i := 0; i < n; i++ {
				if done[i] {
					continue
				}
				idx++
				if idx == remainingCount {
					assigned[i] = remaining
					if assigned[i] > limits[i] {
						assigned[i] = limits[i]
					}
				} else {
					assigned[i] = share
				}
				remaining -= assigned[i]
				done[i] = true
			}
			remainingCount = 0
		}
	}

	return assigned, remaining
}

// tenthsFromMBPerTick converts mB/t to tenths-of-mB/t, rounding down
// per spec.md §4.4.1 step 1 ("floor(B * 10)").
func tenthsFromMBPerTick(b float64) int64 {
	return int64(math.Floor(b * 10))
}
