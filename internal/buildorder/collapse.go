package buildorder

import "sort"

// GroupWindow is the time tolerance, in in-game seconds, within which
// repeated rows collapse and compact rows share a line.
const GroupWindow = 5.0

// Collapse sorts entries by (seconds, supply, label) and merges adjacent
// entries that share label and supply into one counted entry. A run only
// absorbs entries within GroupWindow of its first member, so the same action
// repeated much later at an unchanged supply stays a separate row.
func Collapse(entries []Entry) []Entry {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Seconds != b.Seconds {
			return a.Seconds < b.Seconds
		}
		if a.Supply != b.Supply {
			return a.Supply < b.Supply
		}
		return a.Label < b.Label
	})

	out := make([]Entry, 0, len(sorted))
	for _, en := range sorted {
		en.Count = en.Repeat()
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Label == en.Label && last.Supply == en.Supply && en.Seconds-last.Seconds <= GroupWindow {
				last.Count += en.Count
				continue
			}
		}
		out = append(out, en)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seconds < out[j].Seconds })
	return out
}

// Group splits entries into compact lines: consecutive entries with the same
// supply within GroupWindow of the line's first entry.
func Group(entries []Entry) [][]Entry {
	var groups [][]Entry
	for i := 0; i < len(entries); {
		first := entries[i]
		j := i
		for j < len(entries) && entries[j].Supply == first.Supply && entries[j].Seconds-first.Seconds <= GroupWindow {
			j++
		}
		groups = append(groups, entries[i:j])
		i = j
	}
	return groups
}
