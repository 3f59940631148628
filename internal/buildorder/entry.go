package buildorder

import (
	"github.com/google/uuid"
)

// Category separates inferred start rows from completion anchors.
type Category int

const (
	CategoryStart Category = iota
	CategoryFinish
	CategoryUpgrade
)

func (c Category) String() string {
	switch c {
	case CategoryStart:
		return "start"
	case CategoryFinish:
		return "finish"
	case CategoryUpgrade:
		return "upgrade"
	}
	return "unknown"
}

// Kind is the semantic class an event was classified into.
type Kind int

const (
	KindUnit Kind = iota
	KindWorker
	KindStructure
	KindUpgrade
	KindWarpIn
	KindMorph
	KindIllusion
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindWorker:
		return "worker"
	case KindStructure:
		return "structure"
	case KindUpgrade:
		return "upgrade"
	case KindWarpIn:
		return "warp-in"
	case KindMorph:
		return "morph"
	case KindIllusion:
		return "illusion"
	}
	return "unknown"
}

// Entry is one production action on the timeline.
type Entry struct {
	Seconds  float64
	Supply   int
	Cap      int
	Label    string
	Category Category
	Kind     Kind
	Count    int
}

// Repeat returns the number of identical actions the entry stands for.
func (e Entry) Repeat() int {
	if e.Count < 1 {
		return 1
	}
	return e.Count
}

// BuildOrder is the reconstructed timeline for one participant.
type BuildOrder struct {
	MatchID   uuid.UUID
	Player    Participant
	Entries   []Entry
	Lines     []string
	Anomalies []Anomaly
	// Halted is set when a stop ceiling ended processing early.
	Halted bool
}
