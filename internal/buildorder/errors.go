package buildorder

import (
	"errors"
	"fmt"
)

// ErrNoParticipants is returned when the roster has no non-observer entries.
var ErrNoParticipants = errors.New("no active participants")

// AnomalyKind classifies a recoverable per-event problem.
type AnomalyKind string

const (
	// PlayerNotFound: the requested player matched no roster entry; the first
	// eligible participant was used instead.
	PlayerNotFound AnomalyKind = "player_not_found"
	// MalformedEvent: the event referenced state that was never seen; skipped.
	MalformedEvent AnomalyKind = "malformed_event"
	// DurationUnknown: no tabulated duration; completion time used as start.
	DurationUnknown AnomalyKind = "duration_unknown"
)

// Anomaly records a skipped or degraded event.
type Anomaly struct {
	Kind   AnomalyKind
	Frame  int64
	Detail string
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("%s at frame %d: %s", a.Kind, a.Frame, a.Detail)
}
