package buildorder

import (
	"fmt"
	"math"
	"strings"

	"sc2builds/internal/catalog"
	"sc2builds/internal/logging"
)

// Engine reconstructs build orders from decoded match events.
type Engine struct {
	catalog    *catalog.Catalog
	heuristics Heuristics
	logger     logging.Interface
}

// NewEngine creates an engine over the given catalog and strategies.
func NewEngine(cat *catalog.Catalog, h Heuristics) *Engine {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Engine{catalog: cat, heuristics: h, logger: logging.Logger()}
}

// Catalog returns the data tables the engine consults.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Build runs one reconstruction pass for the selected participant.
// Only ErrNoParticipants is returned as an error; every per-event problem is
// recorded on the result and the event skipped.
func (e *Engine) Build(m *Match, opts Options) (*BuildOrder, error) {
	opts = opts.normalized()

	player, matched, err := SelectParticipant(m.Participants, opts.Player)
	if err != nil {
		return nil, err
	}

	st := newFoldState(e, m, player.ID, opts, e.heuristics.forMatch(m, opts))
	if !matched {
		st.anomaly(PlayerNotFound, 0, fmt.Sprintf("player %q not in roster, using %s", opts.Player, player.Name))
	}

	stopSeconds := opts.StopSeconds()
	for _, ev := range m.Events {
		if stopSeconds > 0 && st.clock.Seconds(ev.EventFrame()) > stopSeconds {
			st.halted = true
		}
		if st.halted {
			break
		}
		ev.dispatch(st)
	}

	entries := retain(st.entries, opts)
	entries = Collapse(entries)

	e.logger.Debugf("build order for match %s player %d: %d rows, %d anomalies, halted=%t",
		m.ID, player.ID, len(entries), len(st.anomalies), st.halted)

	return &BuildOrder{
		MatchID:   m.ID,
		Player:    player,
		Entries:   entries,
		Lines:     Format(entries, opts),
		Anomalies: st.anomalies,
		Halted:    st.halted,
	}, nil
}

// retain drops finish anchors and anything past a stop ceiling.
func retain(entries []Entry, opts Options) []Entry {
	stopSeconds := opts.StopSeconds()
	out := make([]Entry, 0, len(entries))
	for _, en := range entries {
		if en.Category == CategoryFinish {
			continue
		}
		if opts.StopSupply > 0 && en.Supply > opts.StopSupply {
			continue
		}
		if stopSeconds > 0 && en.Seconds > stopSeconds {
			continue
		}
		out = append(out, en)
	}
	return out
}

// foldState is the mutable state of one reconstruction pass. It is owned by
// a single Build call and mutated strictly in event order.
type foldState struct {
	cat    *catalog.Catalog
	h      Heuristics
	logger logging.Interface
	opts   Options
	clock  Clock
	pid    int

	supply    *SupplyOracle
	boosts    *AccelerationTracker
	illusions *IllusionResolver
	warps     claimQueue

	known      map[int]bool
	owners     map[int64]int
	structures map[int64]string
	seen       map[string]bool
	busy       map[int64]busyItem
	started    map[string]bool
	// morphing counts morph commands per item still waiting for their
	// type change.
	morphing map[string]int

	entries   []Entry
	anomalies []Anomaly
	halted    bool
}

func newFoldState(e *Engine, m *Match, pid int, opts Options, h Heuristics) *foldState {
	clock := NewClock(m.Expansion, m.Speed)
	st := &foldState{
		cat:        e.catalog,
		h:          h,
		logger:     e.logger,
		opts:       opts,
		clock:      clock,
		pid:        pid,
		supply:     NewSupplyOracle(clock, Supply{}),
		boosts:     NewAccelerationTracker(e.catalog.Boost.Duration),
		illusions:  NewIllusionResolver(e.catalog.Illusions.WindowFrames),
		warps:      claimQueue{window: e.catalog.Illusions.WindowFrames},
		known:      make(map[int]bool),
		owners:     make(map[int64]int),
		structures: make(map[int64]string),
		seen:       make(map[string]bool),
		busy:       make(map[int64]busyItem),
		started:    make(map[string]bool),
		morphing:   make(map[string]int),
	}
	for _, p := range m.Participants {
		st.known[p.ID] = true
	}
	return st
}

func (s *foldState) anomaly(kind AnomalyKind, frame int64, detail string) {
	a := Anomaly{Kind: kind, Frame: frame, Detail: detail}
	s.anomalies = append(s.anomalies, a)
	s.logger.Debugf("skipping event: %v", a)
}

func (s *foldState) onRoster(ev RosterEvent) {
	s.known[ev.Participant.ID] = true
}

func (s *foldState) onSnapshot(ev ResourceSnapshotEvent) {
	if !s.known[ev.PID] {
		s.anomaly(MalformedEvent, ev.Frame, fmt.Sprintf("snapshot for unknown participant %d", ev.PID))
		return
	}
	if !s.supply.Record(ev.PID, ev.Frame, Supply{Used: ev.Used, Capacity: ev.Capacity}) {
		s.anomaly(MalformedEvent, ev.Frame, fmt.Sprintf("out-of-order snapshot for participant %d", ev.PID))
		return
	}
	if ev.PID == s.pid && s.opts.StopSupply > 0 && ev.Used > s.opts.StopSupply {
		s.halted = true
	}
}

func (s *foldState) onCommand(ev CommandEvent) {
	if ev.PID != s.pid || ev.Ability == "" {
		return
	}
	ability := ev.Ability

	// Trigger abilities feed state and never become rows.
	if s.cat.IsBoostAbility(ability) {
		target := ev.TargetID
		if target == 0 {
			target = ev.ProducerID
		}
		s.boosts.Record(ev.PID, target, s.clock.Seconds(ev.Frame))
		return
	}
	if typeName, ok := s.cat.IllusionTarget(ability); ok {
		s.illusions.Register(typeName, ev.PID, ev.Frame)
		return
	}
	if strings.HasPrefix(ability, "Cancel") {
		s.cancel(ev.ProducerID)
		return
	}

	name := s.cat.Clean(ability)
	switch {
	case hasAny(ability, s.cat.Prefixes.Warp):
		s.warps.register(name, ev.PID, ev.Frame)
		s.emit(ev.Frame, s.clock.Seconds(ev.Frame), name, CategoryStart, KindWarpIn)
	case hasAny(ability, s.cat.Prefixes.Research):
		key := itemKey(s.cat, name)
		now := s.clock.Seconds(ev.Frame)
		if s.started[key] || s.producerBusy(ev.ProducerID, now) {
			return
		}
		s.started[key] = true
		until := math.Inf(1)
		if d, ok := s.researchDuration(name); ok {
			until = now + d
		}
		s.markBusy(ev.ProducerID, key, until)
		s.emit(ev.Frame, now, name, CategoryUpgrade, KindUpgrade)
	case hasAny(ability, s.cat.Prefixes.Morph):
		now := s.clock.Seconds(ev.Frame)
		if s.producerBusy(ev.ProducerID, now) {
			return
		}
		u, _ := s.cat.Unit(name)
		key := itemKey(s.cat, name)
		s.morphing[key]++
		s.markBusy(ev.ProducerID, key, now+u.Build)
		s.emit(ev.Frame, now, name, CategoryStart, KindMorph)
	}
}

func (s *foldState) onObjectCreated(ev ObjectCreatedEvent) {
	s.owners[ev.ObjectID] = ev.PID
	if ev.PID != s.pid {
		return
	}
	if ev.Structure {
		s.seen[strings.ToLower(ev.TypeName)] = true
		s.structures[ev.ObjectID] = ev.TypeName
	}
	// Frame 0 objects are the starting state, not production.
	if ev.Frame == 0 {
		return
	}
	seconds := s.clock.Seconds(ev.Frame)

	switch {
	case ev.Structure:
		s.emit(ev.Frame, seconds, ev.TypeName, CategoryStart, KindStructure)
	case ev.Warp:
		if s.warps.consume(ev.TypeName, ev.PID, ev.Frame) {
			return
		}
		s.emitWarp(ev, seconds)
	case s.isIllusion(ev):
		s.emit(ev.Frame, seconds, ev.TypeName, CategoryStart, KindIllusion)
	default:
		start := s.estimateUnitStart(ev, seconds)
		kind := KindUnit
		if s.cat.IsWorker(ev.TypeName) {
			kind = KindWorker
		}
		s.emit(s.clock.Frame(start), start, ev.TypeName, CategoryStart, kind)
	}
}

func (s *foldState) onObjectReady(ev ObjectReadyEvent) {
	typeName, ok := s.structures[ev.ObjectID]
	if !ok {
		if _, known := s.owners[ev.ObjectID]; !known {
			s.anomaly(MalformedEvent, ev.Frame, fmt.Sprintf("ready for unknown object %d", ev.ObjectID))
		}
		return
	}
	s.seen[strings.ToLower(typeName)] = true
	sup := s.supply.AtFrame(s.pid, ev.Frame)
	s.entries = append(s.entries, Entry{
		Seconds:  s.clock.Seconds(ev.Frame),
		Supply:   sup.Used,
		Cap:      sup.Capacity,
		Label:    s.cat.Pretty(typeName),
		Category: CategoryFinish,
		Kind:     KindStructure,
		Count:    1,
	})
}

func (s *foldState) onObjectDestroyed(ev ObjectDestroyedEvent) {
	if _, known := s.owners[ev.ObjectID]; !known {
		s.anomaly(MalformedEvent, ev.Frame, fmt.Sprintf("death of unknown object %d", ev.ObjectID))
		return
	}
	delete(s.owners, ev.ObjectID)
	delete(s.structures, ev.ObjectID)
	delete(s.busy, ev.ObjectID)
}

func (s *foldState) onTechComplete(ev TechCompleteEvent) {
	if ev.PID != s.pid || ev.Frame == 0 {
		return
	}
	key := itemKey(s.cat, ev.Name)
	var producer int64
	for id, item := range s.busy {
		if item.key == key {
			producer = id
			delete(s.busy, id)
		}
	}
	if s.started[key] {
		return
	}
	s.started[key] = true

	completion := s.clock.Seconds(ev.Frame)
	start := completion
	if d, ok := s.researchDuration(ev.Name); ok && d > 0 {
		start = estimateStart(completion, d, s.cat.Boost.Rate, s.boostedFor(producer))
	} else {
		s.anomaly(DurationUnknown, ev.Frame, fmt.Sprintf("no research time for %s", ev.Name))
	}
	if start < 0 {
		start = 0
	}
	s.emit(s.clock.Frame(start), start, ev.Name, CategoryUpgrade, KindUpgrade)
}

// onObjectMorphed turns a completed type change into a morph row started one
// build time earlier, unless a morph command already produced the row.
func (s *foldState) onObjectMorphed(ev ObjectMorphedEvent) {
	pid, known := s.owners[ev.ObjectID]
	if !known {
		s.anomaly(MalformedEvent, ev.Frame, fmt.Sprintf("type change of unknown object %d", ev.ObjectID))
		return
	}
	if pid != s.pid {
		return
	}
	if _, ok := s.structures[ev.ObjectID]; ok || s.cat.IsStructure(ev.TypeName) {
		s.structures[ev.ObjectID] = ev.TypeName
		s.seen[strings.ToLower(ev.TypeName)] = true
	}
	if ev.Frame == 0 || !s.cat.IsMorph(ev.TypeName) {
		return
	}

	key := itemKey(s.cat, ev.TypeName)
	if item, ok := s.busy[ev.ObjectID]; ok && item.key == key {
		delete(s.busy, ev.ObjectID)
	}
	if s.morphing[key] > 0 {
		s.morphing[key]--
		return
	}

	completion := s.clock.Seconds(ev.Frame)
	start := completion
	if u, ok := s.cat.Unit(ev.TypeName); ok && u.Build > 0 {
		start = estimateStart(completion, u.Build, s.cat.Boost.Rate, s.boostedFor(ev.ObjectID))
	} else {
		s.anomaly(DurationUnknown, ev.Frame, fmt.Sprintf("no build time for %s", ev.TypeName))
	}
	if start < 0 {
		start = 0
	}
	s.emit(s.clock.Frame(start), start, ev.TypeName, CategoryStart, KindMorph)
}

// cancel releases whatever the producer was working on so the same item can
// be started again. Rows already emitted stay.
func (s *foldState) cancel(producer int64) {
	item, ok := s.busy[producer]
	if producer == 0 || !ok {
		return
	}
	delete(s.busy, producer)
	delete(s.started, item.key)
	if s.morphing[item.key] > 0 {
		s.morphing[item.key]--
	}
}

// estimateUnitStart infers when production of a completed unit began.
func (s *foldState) estimateUnitStart(ev ObjectCreatedEvent, completion float64) float64 {
	var start float64
	if off, ok := fixedOffset(s.cat, ev.TypeName); ok && s.h.FixedOffsets {
		start = completion - off
	} else if u, ok := s.cat.Unit(ev.TypeName); ok && u.Build > 0 {
		start = estimateStart(completion, u.Build, s.cat.Boost.Rate, s.boostedFor(ev.ProducerID))
	} else {
		s.anomaly(DurationUnknown, ev.Frame, fmt.Sprintf("no build time for %s", ev.TypeName))
		start = completion
	}
	if start < 0 {
		return 0
	}
	return start
}

func (s *foldState) boostedFor(producer int64) boostedFunc {
	return func(start, end float64) float64 {
		boosted, _ := s.boosts.Overlap(start, end, s.pid, producer)
		return boosted
	}
}

// isIllusion applies the direct cast match first, then the enabled fallbacks.
func (s *foldState) isIllusion(ev ObjectCreatedEvent) bool {
	if s.illusions.TryConsume(ev.TypeName, ev.PID, ev.Frame) {
		return true
	}
	if !s.cat.IllusionCapable(ev.TypeName) {
		return false
	}
	if s.h.IllusionSupplyDelta && illusionBySupplyDelta(s.supply, ev.PID, ev.Frame) {
		return true
	}
	if s.h.IllusionMissingPrerequisite && illusionByMissingPrerequisite(s.cat, s.seen, ev.TypeName) {
		return true
	}
	return false
}

func (s *foldState) emitWarp(ev ObjectCreatedEvent, seconds float64) {
	if s.skip(ev.TypeName, KindWarpIn) {
		return
	}
	sup := s.supply.AtFrame(s.pid, ev.Frame)
	if s.h.WarpSupplyOffset {
		sup = warpSupplyOffset(s.cat, ev.TypeName, sup)
	}
	s.push(seconds, sup, ev.TypeName, CategoryStart, KindWarpIn)
}

// emit appends a row whose supply is read at frame.
func (s *foldState) emit(frame int64, seconds float64, name string, cat Category, kind Kind) {
	if s.skip(name, kind) {
		return
	}
	s.push(seconds, s.supply.AtFrame(s.pid, frame), name, cat, kind)
}

func (s *foldState) push(seconds float64, sup Supply, name string, cat Category, kind Kind) {
	label := s.cat.Pretty(name)
	if kind == KindIllusion {
		label = illusionLabel(s.cat.Illusions.Label, label)
	}
	s.entries = append(s.entries, Entry{
		Seconds:  seconds,
		Supply:   sup.Used,
		Cap:      sup.Capacity,
		Label:    label,
		Category: cat,
		Kind:     kind,
		Count:    1,
	})
}

func (s *foldState) skip(name string, kind Kind) bool {
	if s.cat.Skipped(name, s.opts.ExcludeWorkers) || s.cat.Skipped(s.cat.Pretty(name), s.opts.ExcludeWorkers) {
		return true
	}
	if !s.opts.ExcludeUnits {
		return false
	}
	switch kind {
	case KindUnit, KindWorker, KindWarpIn, KindIllusion:
		return true
	case KindMorph:
		return !s.cat.IsStructure(name)
	}
	return false
}

// busyItem is what a producer is working on. Research is released by its
// completion event or a cancel on the same producer; until bounds items that
// never report either.
type busyItem struct {
	key   string
	until float64
}

func (s *foldState) producerBusy(producer int64, now float64) bool {
	if producer == 0 {
		return false
	}
	item, ok := s.busy[producer]
	if !ok {
		return false
	}
	if now >= item.until {
		delete(s.busy, producer)
		return false
	}
	return true
}

func (s *foldState) markBusy(producer int64, key string, until float64) {
	if producer != 0 {
		s.busy[producer] = busyItem{key: key, until: until}
	}
}

// researchDuration looks an item up by its own spelling first, then by the
// normalized key so command names find their upgrade entry.
func (s *foldState) researchDuration(name string) (float64, bool) {
	if d, ok := s.cat.ResearchDuration(name); ok {
		return d, true
	}
	key := itemKey(s.cat, name)
	for upgrade, d := range s.cat.Upgrades {
		if itemKey(s.cat, upgrade) == key {
			return d, true
		}
	}
	return 0, false
}

// itemKey normalizes research names so that command and completion spellings
// ("Research Combat Shield" vs "ShieldWall") meet on the same key.
func itemKey(cat *catalog.Catalog, name string) string {
	return strings.ToLower(strings.ReplaceAll(cat.Pretty(name), " ", ""))
}

func illusionLabel(pattern, label string) string {
	if pattern == "" {
		return label + " (Hallucination)"
	}
	return strings.ReplaceAll(pattern, "{name}", label)
}

func hasAny(ability string, prefixes []string) bool {
	_, ok := catalog.HasPrefix(ability, prefixes)
	return ok
}
