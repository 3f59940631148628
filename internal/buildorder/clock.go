package buildorder

import "strings"

// FramesPerSecond is the match-log frame rate at Normal speed.
const FramesPerSecond = 16.0

// Expansion identifies the game release that produced the match log.
type Expansion string

const (
	WingsOfLiberty  Expansion = "WoL"
	HeartOfTheSwarm Expansion = "HotS"
	LegacyOfTheVoid Expansion = "LotV"
)

// GameSpeed is the lobby speed setting.
type GameSpeed string

const (
	SpeedSlower GameSpeed = "Slower"
	SpeedSlow   GameSpeed = "Slow"
	SpeedNormal GameSpeed = "Normal"
	SpeedFast   GameSpeed = "Fast"
	SpeedFaster GameSpeed = "Faster"
)

var speedFactors = map[Expansion]map[GameSpeed]float64{
	WingsOfLiberty:  {SpeedSlower: 0.6, SpeedSlow: 0.8, SpeedNormal: 1.0, SpeedFast: 1.2, SpeedFaster: 1.4},
	HeartOfTheSwarm: {SpeedSlower: 0.6, SpeedSlow: 0.8, SpeedNormal: 1.0, SpeedFast: 1.2, SpeedFaster: 1.4},
	LegacyOfTheVoid: {SpeedSlower: 0.2, SpeedSlow: 0.4, SpeedNormal: 0.6, SpeedFast: 0.8, SpeedFaster: 1.0},
}

// The LotV table reports 1.0 for Faster, but its frames still run at 16 per
// game second, so the in-game clock needs the full 1.4 factor.
var speedOverrides = map[Expansion]map[GameSpeed]float64{
	LegacyOfTheVoid: {SpeedFaster: 1.4},
}

// Clock converts frames to in-game seconds for one match.
type Clock struct {
	FPS    float64
	Factor float64
}

// NewClock looks up the speed factor for the expansion and speed setting.
// Unknown combinations use a factor of 1.0.
func NewClock(exp Expansion, speed GameSpeed) Clock {
	return Clock{FPS: FramesPerSecond, Factor: SpeedFactor(exp, speed)}
}

// SpeedFactor returns the divisor applied to real frame seconds.
func SpeedFactor(exp Expansion, speed GameSpeed) float64 {
	exp = Expansion(normalizeKey(string(exp)))
	speed = GameSpeed(normalizeKey(string(speed)))
	if f, ok := speedOverrides[exp][speed]; ok {
		return f
	}
	if f, ok := speedFactors[exp][speed]; ok {
		return f
	}
	return 1.0
}

func normalizeKey(s string) string {
	s = strings.TrimSpace(s)
	for _, known := range []string{
		string(WingsOfLiberty), string(HeartOfTheSwarm), string(LegacyOfTheVoid),
		string(SpeedSlower), string(SpeedSlow), string(SpeedNormal), string(SpeedFast), string(SpeedFaster),
	} {
		if strings.EqualFold(s, known) {
			return known
		}
	}
	return s
}

// Seconds converts a frame number to in-game seconds.
func (c Clock) Seconds(frame int64) float64 {
	return (float64(frame) / c.fps()) / c.factor()
}

// Frame converts in-game seconds back to the nearest frame at or before it.
func (c Clock) Frame(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	// Nudge before flooring so exact round trips survive float error.
	return int64(seconds*c.factor()*c.fps() + 1e-6)
}

func (c Clock) fps() float64 {
	if c.FPS <= 0 {
		return FramesPerSecond
	}
	return c.FPS
}

func (c Clock) factor() float64 {
	if c.Factor <= 0 {
		return 1.0
	}
	return c.Factor
}
