package buildorder

import (
	"github.com/google/uuid"
)

// Participant is one roster entry of a match.
type Participant struct {
	ID       int
	Name     string
	Faction  string
	Observer bool
}

// Match is the decoded input for one reconstruction.
type Match struct {
	ID           uuid.UUID
	Expansion    Expansion
	Speed        GameSpeed
	Participants []Participant
	Events       []Event
	// IllusionCastsUnknown is set by the decoder when decoy casts cannot be
	// recovered from the log, which turns on the prerequisite fallback.
	IllusionCastsUnknown bool
}

// Event is one decoded match-log event. The set of implementations is closed:
// every variant dispatches to exactly one method of eventHandler, so adding a
// variant without handling it fails to compile.
type Event interface {
	EventFrame() int64
	dispatch(h eventHandler)
}

type eventHandler interface {
	onRoster(ev RosterEvent)
	onSnapshot(ev ResourceSnapshotEvent)
	onCommand(ev CommandEvent)
	onObjectCreated(ev ObjectCreatedEvent)
	onObjectReady(ev ObjectReadyEvent)
	onObjectDestroyed(ev ObjectDestroyedEvent)
	onTechComplete(ev TechCompleteEvent)
	onObjectMorphed(ev ObjectMorphedEvent)
}

// RosterEvent announces a participant slot.
type RosterEvent struct {
	Frame       int64
	Participant Participant
}

// ResourceSnapshotEvent is a periodic supply sample for one participant.
type ResourceSnapshotEvent struct {
	Frame    int64
	PID      int
	Used     int
	Capacity int
}

// CommandEvent is an ability issued by a participant. ProducerID is the unit
// the command was issued on (0 when unknown), TargetID the unit it targets.
type CommandEvent struct {
	Frame      int64
	PID        int
	Ability    string
	ProducerID int64
	TargetID   int64
}

// ObjectCreatedEvent reports a new object. Units report it on completion;
// structures and warp-ins report it when placement or warping begins.
type ObjectCreatedEvent struct {
	Frame      int64
	PID        int
	ObjectID   int64
	TypeName   string
	ProducerID int64
	Structure  bool
	Warp       bool
}

// ObjectReadyEvent reports that a previously placed object finished.
type ObjectReadyEvent struct {
	Frame    int64
	ObjectID int64
}

// ObjectDestroyedEvent reports an object leaving the game.
type ObjectDestroyedEvent struct {
	Frame    int64
	ObjectID int64
}

// TechCompleteEvent reports a finished research item.
type TechCompleteEvent struct {
	Frame int64
	PID   int
	Name  string
}

// ObjectMorphedEvent reports an object changing type in place. It fires when
// the new type is complete.
type ObjectMorphedEvent struct {
	Frame    int64
	ObjectID int64
	TypeName string
}

func (ev RosterEvent) EventFrame() int64           { return ev.Frame }
func (ev ResourceSnapshotEvent) EventFrame() int64 { return ev.Frame }
func (ev CommandEvent) EventFrame() int64          { return ev.Frame }
func (ev ObjectCreatedEvent) EventFrame() int64    { return ev.Frame }
func (ev ObjectReadyEvent) EventFrame() int64      { return ev.Frame }
func (ev ObjectDestroyedEvent) EventFrame() int64  { return ev.Frame }
func (ev TechCompleteEvent) EventFrame() int64     { return ev.Frame }
func (ev ObjectMorphedEvent) EventFrame() int64    { return ev.Frame }

func (ev RosterEvent) dispatch(h eventHandler)           { h.onRoster(ev) }
func (ev ResourceSnapshotEvent) dispatch(h eventHandler) { h.onSnapshot(ev) }
func (ev CommandEvent) dispatch(h eventHandler)          { h.onCommand(ev) }
func (ev ObjectCreatedEvent) dispatch(h eventHandler)    { h.onObjectCreated(ev) }
func (ev ObjectReadyEvent) dispatch(h eventHandler)      { h.onObjectReady(ev) }
func (ev ObjectDestroyedEvent) dispatch(h eventHandler)  { h.onObjectDestroyed(ev) }
func (ev TechCompleteEvent) dispatch(h eventHandler)     { h.onTechComplete(ev) }
func (ev ObjectMorphedEvent) dispatch(h eventHandler)    { h.onObjectMorphed(ev) }
