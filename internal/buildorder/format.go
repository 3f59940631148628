package buildorder

import (
	"fmt"
	"math"
	"strings"
)

// Format renders entries as display lines. Compact mode joins grouped
// entries with " + " and never shows the time column.
func Format(entries []Entry, opts Options) []string {
	opts = opts.normalized()
	lines := make([]string, 0, len(entries))
	if opts.Compact {
		for _, g := range Group(entries) {
			labels := make([]string, len(g))
			for i, en := range g {
				labels[i] = en.DisplayLabel()
			}
			lines = append(lines, prefix(g[0], opts)+strings.Join(labels, " + "))
		}
		return lines
	}
	for _, en := range entries {
		lines = append(lines, FormatEntry(en, opts))
	}
	return lines
}

// FormatEntry renders a single entry as "[supply] [mm:ss] label".
func FormatEntry(en Entry, opts Options) string {
	return prefix(en, opts.normalized()) + en.DisplayLabel()
}

// DisplayLabel is the label with its repeat count ("Marine x2").
func (e Entry) DisplayLabel() string {
	if n := e.Repeat(); n > 1 {
		return fmt.Sprintf("%s x%d", e.Label, n)
	}
	return e.Label
}

func prefix(en Entry, opts Options) string {
	var b strings.Builder
	if !opts.ExcludeSupply {
		b.WriteString("[" + FormatSupply(en.Supply, en.Cap) + "] ")
	}
	if !opts.ExcludeTime {
		b.WriteString("[" + Timestamp(en.Seconds) + "] ")
	}
	return b.String()
}

// FormatSupply shows the cap only when supply is over it.
func FormatSupply(used, capacity int) string {
	if used > capacity {
		return fmt.Sprintf("%d/%d", used, capacity)
	}
	return fmt.Sprintf("%d", used)
}

// Timestamp renders in-game seconds as mm:ss.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(math.Floor(seconds + 1e-6))
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
