package buildorder

import (
	"strconv"
)

// Options are the caller-selected reconstruction and rendering switches.
// StopSupply and StopTime are disabled when zero; StopTime is in minutes.
type Options struct {
	Player         string `json:"player,omitempty"`
	ExcludeWorkers bool   `json:"exclude_workers,omitempty"`
	ExcludeUnits   bool   `json:"exclude_units,omitempty"`
	ExcludeSupply  bool   `json:"exclude_supply,omitempty"`
	ExcludeTime    bool   `json:"exclude_time,omitempty"`
	Compact        bool   `json:"compact,omitempty"`
	StopSupply     int    `json:"stop_supply,omitempty"`
	StopTime       int    `json:"stop_time,omitempty"`
	// IllusionHeuristics turns on both decoy fallbacks for this pass.
	IllusionHeuristics bool `json:"illusion_heuristics,omitempty"`
}

// normalized applies the option implications (compact hides the time column).
func (o Options) normalized() Options {
	if o.Compact {
		o.ExcludeTime = true
	}
	return o
}

// StopSeconds returns the time ceiling in in-game seconds, or 0 when unset.
func (o Options) StopSeconds() float64 {
	if o.StopTime <= 0 {
		return 0
	}
	return float64(o.StopTime * 60)
}

// SelectParticipant picks the participant named by want (slot id or display
// name) among non-observers, falling back to the first one. matched is false
// when want was given but nothing matched it.
func SelectParticipant(roster []Participant, want string) (p Participant, matched bool, err error) {
	var eligible []Participant
	for _, r := range roster {
		if !r.Observer {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		return Participant{}, false, ErrNoParticipants
	}
	if want == "" {
		return eligible[0], true, nil
	}
	for _, r := range eligible {
		if strconv.Itoa(r.ID) == want || r.Name == want {
			return r, true, nil
		}
	}
	return eligible[0], false, nil
}
