package replay

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/icza/s2prot"
	s2protrep "github.com/icza/s2prot/rep"

	"sc2builds/internal/buildorder"
	"sc2builds/internal/catalog"
	"sc2builds/internal/logging"
)

// ErrInvalidReplay is returned when the input is not a decodable replay.
var ErrInvalidReplay = errors.New("invalid replay")

// Base builds that opened each expansion.
const (
	heartOfTheSwarmBuild = 24764
	legacyOfTheVoidBuild = 39576
)

// foodScale is the fixed-point factor of the supply fields in PlayerStats.
const foodScale = 4096

var gameSpeeds = []buildorder.GameSpeed{
	buildorder.SpeedSlower,
	buildorder.SpeedSlow,
	buildorder.SpeedNormal,
	buildorder.SpeedFast,
	buildorder.SpeedFaster,
}

// Decoder turns replay files into engine input.
type Decoder struct {
	catalog *catalog.Catalog
	logger  logging.Interface
}

// NewDecoder creates a decoder that classifies unit types with cat.
func NewDecoder(cat *catalog.Catalog) *Decoder {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Decoder{catalog: cat, logger: logging.Logger()}
}

// Decode parses raw replay bytes.
func (d *Decoder) Decode(id uuid.UUID, data []byte) (match *buildorder.Match, err error) {
	// s2prot panics on some truncated archives.
	defer func() {
		if r := recover(); r != nil {
			match, err = nil, fmt.Errorf("%w: %v", ErrInvalidReplay, r)
		}
	}()

	r, err := s2protrep.NewEvts(bytes.NewReader(data), true, false, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReplay, err)
	}
	defer r.Close()

	return d.FromRep(id, r)
}

// FromRep converts an opened replay.
func (d *Decoder) FromRep(id uuid.UUID, r *s2protrep.Rep) (*buildorder.Match, error) {
	if r.TrackerEvts == nil {
		return nil, fmt.Errorf("%w: no tracker events", ErrInvalidReplay)
	}

	build := r.Header.Int("version", "baseBuild")
	m := &buildorder.Match{
		ID:           id,
		Expansion:    expansionForBuild(build),
		Speed:        speedForIndex(r.InitData.GameDescription.Int("gameSpeed")),
		Participants: Participants(r.Details.Array("playerList")),
	}

	// Tracker events go first: game events resolve unit tags against the
	// types and owners they record.
	t := newTranslator(d.catalog, build)
	for _, e := range r.TrackerEvts.Evts {
		t.tracker(e.Name, e.Loop(), e.Struct)
	}
	for _, e := range r.GameEvts {
		t.game(e.Name, e.Loop(), e.Int("userid", "userId"), e.Struct)
	}
	m.Events = t.sorted()
	m.IllusionCastsUnknown = t.illusionCastsUnknown()

	d.logger.Debugf("decoded replay %s (build %d): %s %s, %d participants, %d events",
		id, build, m.Expansion, m.Speed, len(m.Participants), len(m.Events))
	return m, nil
}

// Participants reads the details player list. Participant ids follow the
// list order, matching the tracker playerId numbering.
func Participants(list []interface{}) []buildorder.Participant {
	out := make([]buildorder.Participant, 0, len(list))
	for i, item := range list {
		s, ok := item.(s2prot.Struct)
		if !ok {
			continue
		}
		out = append(out, buildorder.Participant{
			ID:       i + 1,
			Name:     s.Stringv("name"),
			Faction:  s.Stringv("race"),
			Observer: s.Int("observe") != 0,
		})
	}
	return out
}

func expansionForBuild(build int64) buildorder.Expansion {
	switch {
	case build >= legacyOfTheVoidBuild:
		return buildorder.LegacyOfTheVoid
	case build >= heartOfTheSwarmBuild:
		return buildorder.HeartOfTheSwarm
	default:
		return buildorder.WingsOfLiberty
	}
}

func speedForIndex(i int64) buildorder.GameSpeed {
	if i < 0 || int(i) >= len(gameSpeeds) {
		return buildorder.SpeedFaster
	}
	return gameSpeeds[i]
}

// activeSelection is the control group id game events use for the current
// selection.
const activeSelection = 10

// unitTag packs an index and recycle counter into one object id.
func unitTag(index, recycle int64) int64 {
	return index<<18 | recycle
}

// translator maps decoded events onto the engine's event variants.
type translator struct {
	catalog *catalog.Catalog
	build   int64
	// userPlayers maps game-event user ids to tracker player ids.
	userPlayers map[int64]int
	types       map[int64]string
	owners      map[int64]int
	// selections holds each user's active selection as unit tags.
	selections  map[int64][]int64
	creatorSeen bool
	tracked     []buildorder.Event
	commands    []buildorder.Event
}

func newTranslator(cat *catalog.Catalog, build int64) *translator {
	return &translator{
		catalog:     cat,
		build:       build,
		userPlayers: make(map[int64]int),
		types:       make(map[int64]string),
		owners:      make(map[int64]int),
		selections:  make(map[int64][]int64),
	}
}

func (t *translator) tracker(name string, loop int64, s s2prot.Struct) {
	switch name {
	case "PlayerSetup":
		pid := int(s.Int("playerId"))
		if s.Value("userId") != nil {
			t.userPlayers[s.Int("userId")] = pid
		}
		t.tracked = append(t.tracked, buildorder.RosterEvent{
			Frame:       loop,
			Participant: buildorder.Participant{ID: pid},
		})
	case "PlayerStats":
		stats := s.Structv("stats")
		t.tracked = append(t.tracked, buildorder.ResourceSnapshotEvent{
			Frame:    loop,
			PID:      int(s.Int("playerId")),
			Used:     int(stats.Int("scoreValueFoodUsed") / foodScale),
			Capacity: int(stats.Int("scoreValueFoodMade") / foodScale),
		})
	case "UnitBorn":
		typeName := s.Stringv("unitTypeName")
		tag := unitTag(s.Int("unitTagIndex"), s.Int("unitTagRecycle"))
		pid := int(s.Int("controlPlayerId"))
		t.types[tag], t.owners[tag] = typeName, pid
		var producer int64
		if s.Value("creatorUnitTagIndex") != nil {
			producer = unitTag(s.Int("creatorUnitTagIndex"), s.Int("creatorUnitTagRecycle"))
		}
		creator := s.Stringv("creatorAbilityName")
		if creator != "" {
			t.creatorSeen = true
		}
		// A decoy birth stands in for its cast, which must precede it.
		if ability, ok := t.illusionCast(creator, typeName); ok {
			t.tracked = append(t.tracked, buildorder.CommandEvent{
				Frame:      loop,
				PID:        pid,
				Ability:    ability,
				ProducerID: producer,
			})
		}
		t.tracked = append(t.tracked, buildorder.ObjectCreatedEvent{
			Frame:      loop,
			PID:        pid,
			ObjectID:   tag,
			TypeName:   typeName,
			ProducerID: producer,
			Structure:  t.catalog.IsStructure(typeName),
		})
	case "UnitInit":
		typeName := s.Stringv("unitTypeName")
		tag := unitTag(s.Int("unitTagIndex"), s.Int("unitTagRecycle"))
		pid := int(s.Int("controlPlayerId"))
		t.types[tag], t.owners[tag] = typeName, pid
		structure := t.catalog.IsStructure(typeName)
		t.tracked = append(t.tracked, buildorder.ObjectCreatedEvent{
			Frame:     loop,
			PID:       pid,
			ObjectID:  tag,
			TypeName:  typeName,
			Structure: structure,
			Warp:      !structure,
		})
	case "UnitTypeChange":
		typeName := s.Stringv("unitTypeName")
		tag := unitTag(s.Int("unitTagIndex"), s.Int("unitTagRecycle"))
		t.types[tag] = typeName
		t.tracked = append(t.tracked, buildorder.ObjectMorphedEvent{
			Frame:    loop,
			ObjectID: tag,
			TypeName: typeName,
		})
	case "UnitDone":
		t.tracked = append(t.tracked, buildorder.ObjectReadyEvent{
			Frame:    loop,
			ObjectID: unitTag(s.Int("unitTagIndex"), s.Int("unitTagRecycle")),
		})
	case "UnitDied":
		t.tracked = append(t.tracked, buildorder.ObjectDestroyedEvent{
			Frame:    loop,
			ObjectID: unitTag(s.Int("unitTagIndex"), s.Int("unitTagRecycle")),
		})
	case "Upgrade":
		t.tracked = append(t.tracked, buildorder.TechCompleteEvent{
			Frame: loop,
			PID:   int(s.Int("playerId")),
			Name:  s.Stringv("upgradeTypeName"),
		})
	}
}

// illusionCast names the cast behind a decoy birth, falling back to the
// catalog's cast for the type when the creator ability is only matched by
// prefix.
func (t *translator) illusionCast(creator, typeName string) (string, bool) {
	if !t.catalog.IllusionCreator(creator) {
		return "", false
	}
	if _, ok := t.catalog.IllusionTarget(creator); ok {
		return creator, true
	}
	return t.catalog.IllusionAbilityFor(typeName)
}

// illusionCastsUnknown reports whether decoy casts are invisible in this
// replay: births carry no creator ability and no command can be named.
func (t *translator) illusionCastsUnknown() bool {
	return !t.creatorSeen && !t.catalog.HasAbilities(t.build)
}

func (t *translator) game(name string, loop, userID int64, s s2prot.Struct) {
	switch name {
	case "SelectionDelta":
		t.selectionDelta(userID, s)
	case "Cmd":
		t.command(loop, userID, s)
	}
}

// selectionDelta applies a change of the active selection. Bit-mask removals
// are not decoded; they reset the selection instead.
func (t *translator) selectionDelta(userID int64, s s2prot.Struct) {
	if s.Int("controlGroupId") != activeSelection {
		return
	}
	delta := s.Structv("delta")
	sel := t.selections[userID]
	mask := delta.Structv("removeMask")
	switch {
	case mask.Value("Mask") != nil:
		sel = nil
	case mask.Value("OneIndices") != nil:
		sel = filterIndices(sel, mask.Array("OneIndices"), false)
	case mask.Value("ZeroIndices") != nil:
		sel = filterIndices(sel, mask.Array("ZeroIndices"), true)
	}
	added := make([]int64, 0, len(sel))
	added = append(added, sel...)
	for _, v := range delta.Array("addUnitTags") {
		if tag, ok := v.(int64); ok {
			added = append(added, tag)
		}
	}
	t.selections[userID] = added
}

// filterIndices keeps the listed positions when keep is set and drops them
// otherwise.
func filterIndices(sel []int64, indices []interface{}, keep bool) []int64 {
	listed := make(map[int64]bool, len(indices))
	for _, v := range indices {
		if i, ok := v.(int64); ok {
			listed[i] = true
		}
	}
	out := make([]int64, 0, len(sel))
	for i, tag := range sel {
		if listed[int64(i)] == keep {
			out = append(out, tag)
		}
	}
	return out
}

// command translates a Cmd event. Commands the catalog can name take the
// single selected unit as producer. Unnamed ones are kept only when their
// shape is a boost cast: casters selected, own boostable structure targeted.
func (t *translator) command(loop, userID int64, s s2prot.Struct) {
	if s.Value("abil") == nil {
		return
	}
	pid, ok := t.userPlayers[userID]
	if !ok {
		pid = int(userID) + 1
	}
	var target int64
	if s.Value("data", "TargetUnit") != nil {
		target = s.Int("data", "TargetUnit", "tag")
	}
	sel := t.selections[userID]

	var producer int64
	ability, ok := t.catalog.Ability(t.build, s.Int("abil", "abilLink"), s.Int("abil", "abilCmdIndex"))
	switch {
	case ok:
		if len(sel) == 1 {
			producer = sel[0]
		}
	case t.boostCast(pid, sel, target):
		ability, producer = t.catalog.BoostAbility(), target
	default:
		return
	}
	t.commands = append(t.commands, buildorder.CommandEvent{
		Frame:      loop,
		PID:        pid,
		Ability:    ability,
		ProducerID: producer,
		TargetID:   target,
	})
}

func (t *translator) boostCast(pid int, sel []int64, target int64) bool {
	if target == 0 || len(sel) == 0 || t.catalog.BoostAbility() == "" {
		return false
	}
	if owner, ok := t.owners[target]; !ok || owner != pid || !t.catalog.IsBoostTarget(t.types[target]) {
		return false
	}
	for _, tag := range sel {
		if !t.catalog.IsBoostCaster(t.types[tag]) {
			return false
		}
	}
	return true
}

// sorted merges tracker and game events into one frame-ordered stream. At
// equal frames tracker events come first, in their decoded order.
func (t *translator) sorted() []buildorder.Event {
	out := make([]buildorder.Event, 0, len(t.tracked)+len(t.commands))
	out = append(out, t.tracked...)
	out = append(out, t.commands...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EventFrame() < out[j].EventFrame()
	})
	return out
}
