package buildorder

import (
	"strings"

	"sc2builds/internal/catalog"
)

// Heuristics toggles the empirically tuned classification strategies. Each
// one is a standalone predicate or adjustment below.
type Heuristics struct {
	// IllusionSupplyDelta flags an illusion-capable unit as a decoy when the
	// supply samples around its creation are identical.
	IllusionSupplyDelta bool
	// IllusionMissingPrerequisite flags an illusion-capable unit as a decoy
	// when its tech structure was never observed.
	IllusionMissingPrerequisite bool
	// FixedOffsets uses catalog offsets instead of duration projection for
	// workers and queue-quirk units.
	FixedOffsets bool
	// WarpSupplyOffset subtracts the catalog per-type offset from the supply
	// shown on warp-in rows derived from object events.
	WarpSupplyOffset bool
}

// DefaultHeuristics enables the offset strategies. Both illusion fallbacks
// stay off: supply is charged when a unit is queued, so real units usually
// show no delta around their creation either.
func DefaultHeuristics() Heuristics {
	return Heuristics{
		FixedOffsets:     true,
		WarpSupplyOffset: true,
	}
}

// forMatch returns the strategies for one pass. The caller's switch enables
// both illusion fallbacks; a log without recoverable decoy casts enables the
// prerequisite check only, since the supply check misreads real units.
func (h Heuristics) forMatch(m *Match, opts Options) Heuristics {
	if opts.IllusionHeuristics {
		h.IllusionSupplyDelta = true
		h.IllusionMissingPrerequisite = true
	}
	if m.IllusionCastsUnknown {
		h.IllusionMissingPrerequisite = true
	}
	return h
}

// illusionBySupplyDelta reports whether supply was unchanged across frame.
// Without a later sample nothing can be concluded.
func illusionBySupplyDelta(oracle *SupplyOracle, pid int, frame int64) bool {
	before, after, ok := oracle.Around(pid, frame)
	return ok && before.Used == after.Used
}

// illusionByMissingPrerequisite reports whether the unit's tech structure was
// never seen for the participant.
func illusionByMissingPrerequisite(cat *catalog.Catalog, seen map[string]bool, typeName string) bool {
	u, ok := cat.Unit(typeName)
	if !ok || u.Prerequisite == "" {
		return false
	}
	return !seen[strings.ToLower(u.Prerequisite)]
}

// fixedOffset returns the catalog offset between completion and start.
func fixedOffset(cat *catalog.Catalog, typeName string) (float64, bool) {
	for name, off := range cat.FixedOffsets {
		if strings.EqualFold(name, typeName) {
			return off, true
		}
	}
	return 0, false
}

// warpSupplyOffset adjusts the supply shown for a warp-in of typeName.
func warpSupplyOffset(cat *catalog.Catalog, typeName string, s Supply) Supply {
	for name, off := range cat.WarpSupplyOffsets {
		if strings.EqualFold(name, typeName) {
			s.Used -= off
			if s.Used < 0 {
				s.Used = 0
			}
			return s
		}
	}
	return s
}
