package buildorder

import "sort"

// AccelerationWindow is an interval during which a producer builds faster.
// ProducerID 0 applies to every producer of the participant.
type AccelerationWindow struct {
	PID        int
	ProducerID int64
	Start      float64
	End        float64
}

// AccelerationTracker records boost windows and measures their coverage.
type AccelerationTracker struct {
	length  float64
	windows []AccelerationWindow
}

// NewAccelerationTracker creates a tracker whose windows last length seconds.
func NewAccelerationTracker(length float64) *AccelerationTracker {
	return &AccelerationTracker{length: length}
}

// Record appends a window starting at the trigger second.
func (t *AccelerationTracker) Record(pid int, producerID int64, triggerSecond float64) {
	t.windows = append(t.windows, AccelerationWindow{
		PID:        pid,
		ProducerID: producerID,
		Start:      triggerSecond,
		End:        triggerSecond + t.length,
	})
}

// Windows returns the recorded windows in recording order.
func (t *AccelerationTracker) Windows() []AccelerationWindow {
	return t.windows
}

// Overlap splits [start, end] into seconds covered by at least one matching
// window and seconds covered by none. When producerID is 0 every window of
// the participant matches; otherwise only windows for that producer or for
// any producer do.
func (t *AccelerationTracker) Overlap(start, end float64, pid int, producerID int64) (boosted, plain float64) {
	if end <= start {
		return 0, 0
	}
	var clipped [][2]float64
	for _, w := range t.windows {
		if w.PID != pid {
			continue
		}
		if producerID != 0 && w.ProducerID != 0 && w.ProducerID != producerID {
			continue
		}
		s, e := w.Start, w.End
		if s < start {
			s = start
		}
		if e > end {
			e = end
		}
		if e > s {
			clipped = append(clipped, [2]float64{s, e})
		}
	}
	boosted = mergedLength(clipped)
	return boosted, (end - start) - boosted
}

// mergedLength returns the length of the union of the intervals.
func mergedLength(intervals [][2]float64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i][0] < intervals[j][0] })
	total := 0.0
	cur := intervals[0]
	for _, iv := range intervals[1:] {
		if iv[0] <= cur[1] {
			if iv[1] > cur[1] {
				cur[1] = iv[1]
			}
			continue
		}
		total += cur[1] - cur[0]
		cur = iv
	}
	return total + cur[1] - cur[0]
}
