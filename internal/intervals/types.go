package intervals

import "math/big"

// Interval is an inclusive block-number range, [Start, End].
type Interval struct {
	Start *big.Int
	End   *big.Int
}

// Overlaps reports whether i and other share at least one block, or sit
// directly adjacent to each other (End+1 == other.Start), the condition
// merge-on-insert uses to decide whether two intervals fold into one.
func (i Interval) Overlaps(other Interval) bool {
	gapBefore := new(big.Int).Add(i.End, big.NewInt(1))
	gapAfter := new(big.Int).Add(other.End, big.NewInt(1))
	return gapBefore.Cmp(other.Start) >= 0 && gapAfter.Cmp(i.Start) >= 0
}

// Intersect returns the overlap of i and other, and whether one exists.
func (i Interval) Intersect(other Interval) (Interval, bool) {
	start := i.Start
	if other.Start.Cmp(start) > 0 {
		start = other.Start
	}
	end := i.End
	if other.End.Cmp(end) < 0 {
		end = other.End
	}
	if start.Cmp(end) > 0 {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// Union merges i and an overlapping/adjacent other into their span.
func (i Interval) Union(other Interval) Interval {
	start := i.Start
	if other.Start.Cmp(start) < 0 {
		start = other.Start
	}
	end := i.End
	if other.End.Cmp(end) > 0 {
		end = other.End
	}
	return Interval{Start: start, End: end}
}
