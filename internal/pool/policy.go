// Package pool holds the arithmetic policy for the shared stock pool: how a
// group's pool is first inferred from observed levels, how it advances on a
// store's delta, and how per-store write targets are derived from it.
package pool

// Member is one group member's observed state as it enters pool math.
type Member struct {
	Available int
	OnHand    int
}

// Bootstrap infers a trustworthy initial pool from observed member levels.
// The base rule is the minimum over all members. The anomaly guard handles
// freshly connected stores that report zero because they were never counted:
// when at least one member is positive and at least half are exactly zero,
// the zeros are treated as artifacts and the minimum is taken over the
// positive values only. The guard flag is returned so a first pass may skip
// the on-hand clamp and recover from corrupted on-hand data.
func Bootstrap(members []Member) (pool int, guardFired bool) {
	if len(members) == 0 {
		return 0, false
	}

	zeros := 0
	positives := 0
	minAll := members[0].Available
	minPositive := 0
	for _, m := range members {
		if m.Available < minAll {
			minAll = m.Available
		}
		if m.Available == 0 {
			zeros++
		}
		if m.Available > 0 {
			if positives == 0 || m.Available < minPositive {
				minPositive = m.Available
			}
			positives++
		}
	}

	if positives > 0 && zeros*2 >= len(members) {
		return minPositive, true
	}
	if minAll < 0 {
		minAll = 0
	}
	return minAll, false
}

// Advance applies a store's observed delta to the running pool. Increases
// propagate as readily as decreases; the floor only clamps the stored value.
func Advance(pool, delta int) int {
	next := pool + delta
	if next < 0 {
		return 0
	}
	return next
}

// Minimum recomputes the pool from point-in-time reads. Used by the repair
// pass, which has no delta history and so must trust only the most
// pessimistic observation.
func Minimum(members []Member) int {
	if len(members) == 0 {
		return 0
	}
	min := members[0].Available
	for _, m := range members[1:] {
		if m.Available < min {
			min = m.Available
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

// Target derives one member's write target from the pool: the pool less the
// store's safety buffer, floored at zero, and clamped to the member's own
// on-hand unless the bootstrap guard bypass is in effect.
func Target(pool, buffer, onHand int, bypassOnHand bool) int {
	target := pool - buffer
	if target < 0 {
		target = 0
	}
	if !bypassOnHand && target > onHand {
		target = onHand
	}
	return target
}
