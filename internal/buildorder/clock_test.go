package buildorder

import (
	"math"
	"testing"
)

func TestSpeedFactor(t *testing.T) {
	cases := []struct {
		exp   Expansion
		speed GameSpeed
		want  float64
	}{
		{WingsOfLiberty, SpeedNormal, 1.0},
		{WingsOfLiberty, SpeedFaster, 1.4},
		{HeartOfTheSwarm, SpeedSlower, 0.6},
		{LegacyOfTheVoid, SpeedNormal, 0.6},
		{LegacyOfTheVoid, SpeedFaster, 1.4},
		{"lotv", "faster", 1.4},
		{"Unknown", SpeedFaster, 1.0},
		{"", "", 1.0},
	}
	for _, tc := range cases {
		if got := SpeedFactor(tc.exp, tc.speed); got != tc.want {
			t.Fatalf("SpeedFactor(%q, %q) = %v, want %v", tc.exp, tc.speed, got, tc.want)
		}
	}
}

func TestClockRoundTrip(t *testing.T) {
	c := NewClock(LegacyOfTheVoid, SpeedFaster)
	if got := c.Seconds(224); math.Abs(got-10) > 1e-9 {
		t.Fatalf("Seconds(224) = %v, want 10", got)
	}
	if got := c.Frame(10); got != 224 {
		t.Fatalf("Frame(10) = %d, want 224", got)
	}
	for _, frame := range []int64{0, 1, 16, 999, 22400} {
		if got := c.Frame(c.Seconds(frame)); got != frame {
			t.Fatalf("round trip of frame %d gave %d", frame, got)
		}
	}
}

func TestZeroClockUsesDefaults(t *testing.T) {
	var c Clock
	if got := c.Seconds(32); got != 2 {
		t.Fatalf("zero clock Seconds(32) = %v, want 2", got)
	}
}
