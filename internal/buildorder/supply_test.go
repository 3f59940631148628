package buildorder

import "testing"

func TestSupplyOracleAtFrame(t *testing.T) {
	o := NewSupplyOracle(NewClock(WingsOfLiberty, SpeedNormal), Supply{})
	o.Record(1, 0, Supply{Used: 12, Capacity: 15})
	o.Record(1, 160, Supply{Used: 14, Capacity: 15})
	o.Record(1, 480, Supply{Used: 16, Capacity: 23})

	cases := []struct {
		frame int64
		want  Supply
	}{
		{0, Supply{12, 15}},
		{100, Supply{12, 15}},
		{160, Supply{14, 15}},
		{479, Supply{14, 15}},
		{480, Supply{16, 23}},
		{10000, Supply{16, 23}},
	}
	for _, tc := range cases {
		if got := o.AtFrame(1, tc.frame); got != tc.want {
			t.Fatalf("AtFrame(%d) = %+v, want %+v", tc.frame, got, tc.want)
		}
	}

	if got := o.AtSeconds(1, 10); got != (Supply{14, 15}) {
		t.Fatalf("AtSeconds(10) = %+v", got)
	}
	if got := o.Latest(1); got != (Supply{16, 23}) {
		t.Fatalf("Latest = %+v", got)
	}
}

func TestSupplyOracleBeforeFirstSample(t *testing.T) {
	o := NewSupplyOracle(Clock{}, Supply{Used: 6, Capacity: 10})
	if got := o.AtFrame(1, 50); got != (Supply{6, 10}) {
		t.Fatalf("expected start supply, got %+v", got)
	}
	o.Record(1, 100, Supply{Used: 12, Capacity: 15})
	if got := o.AtFrame(1, 50); got != (Supply{6, 10}) {
		t.Fatalf("expected start supply before first sample, got %+v", got)
	}
	if got := o.AtFrame(2, 500); got != (Supply{6, 10}) {
		t.Fatalf("expected start supply for unknown participant, got %+v", got)
	}
}

func TestSupplyOracleRecordOrdering(t *testing.T) {
	o := NewSupplyOracle(Clock{}, Supply{})
	if !o.Record(1, 100, Supply{Used: 12, Capacity: 15}) {
		t.Fatalf("expected first record to succeed")
	}
	if !o.Record(1, 100, Supply{Used: 13, Capacity: 15}) {
		t.Fatalf("expected same-frame record to replace")
	}
	if got := o.AtFrame(1, 100); got.Used != 13 {
		t.Fatalf("expected replaced sample, got %+v", got)
	}
	if o.Record(1, 50, Supply{Used: 1}) {
		t.Fatalf("expected out-of-order record to be rejected")
	}
	if got := o.AtFrame(1, 60); got != (Supply{}) {
		t.Fatalf("rejected sample must not be visible, got %+v", got)
	}
}

func TestSupplyOracleExactFrames(t *testing.T) {
	o := NewSupplyOracle(Clock{}, Supply{})
	samples := map[int64]Supply{0: {12, 15}, 16: {13, 15}, 32: {14, 15}, 48: {16, 23}}
	for _, f := range []int64{0, 16, 32, 48} {
		o.Record(1, f, samples[f])
	}
	for f, want := range samples {
		if got := o.AtFrame(1, f); got != want {
			t.Fatalf("AtFrame(%d) = %+v, want %+v", f, got, want)
		}
	}
}

func TestSupplyOracleAround(t *testing.T) {
	o := NewSupplyOracle(Clock{}, Supply{})
	o.Record(1, 100, Supply{Used: 20, Capacity: 23})
	o.Record(1, 200, Supply{Used: 22, Capacity: 23})

	before, after, ok := o.Around(1, 150)
	if !ok || before.Used != 20 || after.Used != 22 {
		t.Fatalf("unexpected Around(150): %+v %+v %v", before, after, ok)
	}
	if _, _, ok := o.Around(1, 200); ok {
		t.Fatalf("expected no later sample at the last frame")
	}
}
