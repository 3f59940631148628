package buildorder

import "sort"

// Supply is a (used, capacity) pair.
type Supply struct {
	Used     int
	Capacity int
}

type supplySample struct {
	frame   int64
	seconds float64
	supply  Supply
}

// SupplyOracle answers point-in-time supply queries from discrete samples.
// Each participant's samples form a step function ordered by frame.
type SupplyOracle struct {
	clock   Clock
	start   Supply
	samples map[int][]supplySample
}

// NewSupplyOracle creates an empty oracle. start is reported for queries that
// precede a participant's first sample.
func NewSupplyOracle(clock Clock, start Supply) *SupplyOracle {
	return &SupplyOracle{
		clock:   clock,
		start:   start,
		samples: make(map[int][]supplySample),
	}
}

// Record appends a sample. A sample at the last recorded frame replaces it;
// a sample older than the last one is rejected and false is returned.
func (o *SupplyOracle) Record(pid int, frame int64, s Supply) bool {
	seq := o.samples[pid]
	if n := len(seq); n > 0 {
		last := seq[n-1].frame
		if frame < last {
			return false
		}
		if frame == last {
			seq[n-1].supply = s
			return true
		}
	}
	o.samples[pid] = append(seq, supplySample{frame: frame, seconds: o.clock.Seconds(frame), supply: s})
	return true
}

// AtFrame returns the latest sample at or before frame.
func (o *SupplyOracle) AtFrame(pid int, frame int64) Supply {
	seq := o.samples[pid]
	i := sort.Search(len(seq), func(i int) bool { return seq[i].frame > frame })
	if i == 0 {
		return o.start
	}
	return seq[i-1].supply
}

// AtSeconds returns the latest sample at or before the in-game second. Prefer
// AtFrame whenever a frame is at hand.
func (o *SupplyOracle) AtSeconds(pid int, seconds float64) Supply {
	seq := o.samples[pid]
	i := sort.Search(len(seq), func(i int) bool { return seq[i].seconds > seconds })
	if i == 0 {
		return o.start
	}
	return seq[i-1].supply
}

// Around returns the samples immediately at-or-before and strictly after
// frame. ok is false when there is no later sample.
func (o *SupplyOracle) Around(pid int, frame int64) (before, after Supply, ok bool) {
	seq := o.samples[pid]
	i := sort.Search(len(seq), func(i int) bool { return seq[i].frame > frame })
	before = o.start
	if i > 0 {
		before = seq[i-1].supply
	}
	if i >= len(seq) {
		return before, Supply{}, false
	}
	return before, seq[i].supply, true
}

// Latest returns the most recent sample for a participant.
func (o *SupplyOracle) Latest(pid int) Supply {
	seq := o.samples[pid]
	if len(seq) == 0 {
		return o.start
	}
	return seq[len(seq)-1].supply
}
