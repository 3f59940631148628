package buildorder

import (
	"errors"
	"testing"
)

func TestSelectParticipant(t *testing.T) {
	roster := []Participant{
		{ID: 1, Name: "Caster", Observer: true},
		{ID: 2, Name: "Alice", Faction: "Protoss"},
		{ID: 3, Name: "Bob", Faction: "Zerg"},
	}

	cases := []struct {
		want    string
		id      int
		matched bool
	}{
		{"", 2, true},
		{"3", 3, true},
		{"Bob", 3, true},
		{"1", 2, false},
		{"Caster", 2, false},
		{"Nobody", 2, false},
	}
	for _, tc := range cases {
		p, matched, err := SelectParticipant(roster, tc.want)
		if err != nil {
			t.Fatalf("SelectParticipant(%q): %v", tc.want, err)
		}
		if p.ID != tc.id || matched != tc.matched {
			t.Fatalf("SelectParticipant(%q) = %d/%t, want %d/%t", tc.want, p.ID, matched, tc.id, tc.matched)
		}
	}
}

func TestSelectParticipantOnlyObservers(t *testing.T) {
	_, _, err := SelectParticipant([]Participant{{ID: 1, Observer: true}}, "")
	if !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants, got %v", err)
	}
	if _, _, err := SelectParticipant(nil, "1"); !errors.Is(err, ErrNoParticipants) {
		t.Fatalf("expected ErrNoParticipants for empty roster, got %v", err)
	}
}

func TestCompactImpliesNoTime(t *testing.T) {
	if o := (Options{Compact: true}).normalized(); !o.ExcludeTime {
		t.Fatalf("compact should hide the time column")
	}
	if o := (Options{}).normalized(); o.ExcludeTime {
		t.Fatalf("time column hidden without compact")
	}
}

func TestStopSeconds(t *testing.T) {
	if got := (Options{}).StopSeconds(); got != 0 {
		t.Fatalf("expected disabled ceiling, got %v", got)
	}
	if got := (Options{StopTime: -2}).StopSeconds(); got != 0 {
		t.Fatalf("negative minutes should disable the ceiling, got %v", got)
	}
	if got := (Options{StopTime: 3}).StopSeconds(); got != 180 {
		t.Fatalf("expected 180s, got %v", got)
	}
}
