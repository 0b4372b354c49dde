package flow

import (
	"math"
	"testing"

	"pipegrid.ai/internal/sim/network/volume"
)

func filled(capacity, water float64) *volume.Container {
	c := volume.New(volume.Config{Capacity: capacity, Filters: map[string]volume.Filter{"WATER": volume.AllowAll()}})
	if water > 0 {
		c.TryAdd("WATER", water)
	}
	return c
}

func TestCurves(t *testing.T) {
	if p := (Linear{}).Pressure(0.25); p != 25 {
		t.Fatalf("linear=%v", p)
	}
	th := Threshold{Threshold: 0.5, Exponent: 2}
	if p := th.Pressure(0.4); math.Abs(p-40) > 1e-9 {
		t.Fatalf("below threshold=%v", p)
	}
	// 0.5 + 0.5*(0.5^2) = 0.625
	if p := th.Pressure(0.75); math.Abs(p-62.5) > 1e-9 {
		t.Fatalf("above threshold=%v", p)
	}
	if p := th.Pressure(1); math.Abs(p-100) > 1e-9 {
		t.Fatalf("full=%v", p)
	}
	prev := -1.0
	for f := 0.0; f <= 1.0; f += 0.05 {
		p := th.Pressure(f)
		if p < prev {
			t.Fatalf("not monotonic at %v", f)
		}
		prev = p
	}
	if _, err := ParseCurve("bogus", 0, 0); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDampedWave_Flow(t *testing.T) {
	w := DampedWave{Friction: 0.1, CSquared: 0.1}
	in := Input{PressureFrom: 60, PressureTo: 20, Prev: 10}
	// 10*0.9 + 40*0.1
	if f := w.Flow(in); math.Abs(f-13) > 1e-9 {
		t.Fatalf("flow=%v", f)
	}

	w.CounterFriction = 0.4
	in.Prev = -10
	// -10*(1-0.5) + 4
	if f := w.Flow(in); math.Abs(f+1) > 1e-9 {
		t.Fatalf("counter flow=%v", f)
	}
}

func TestDampedWave_Pressure(t *testing.T) {
	w := DampedWave{}
	if p := w.Pressure(filled(200, 50)); p != 25 {
		t.Fatalf("pressure=%v", p)
	}
	if p := w.Pressure(nil); p != 0 {
		t.Fatalf("nil pressure=%v", p)
	}
}

func TestFractionClamp(t *testing.T) {
	src, dst := filled(100, 40), filled(100, 70)
	ctx := ClampContext{Source: src, Dest: dst}
	c := FractionClamp{MinDivider: 4, MaxDivider: 2}

	cases := []struct {
		kind Kind
		in   float64
		want float64
	}{
		{Outflow, 5, 5},
		{Outflow, 50, 10},
		{Inflow, 5, 5},
		{Inflow, 50, 15},
		{Outflow, -3, 0},
	}
	for _, tc := range cases {
		if got := c.Clamp(ctx, tc.in, tc.kind); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%v(%v)=%v want %v", tc.kind, tc.in, got, tc.want)
		}
	}
}

func TestConnectionClamp(t *testing.T) {
	src, dst := filled(100, 60), filled(100, 20)
	ctx := ClampContext{Source: src, Dest: dst, SourceDegree: 3, DestDegree: 0}
	c := ConnectionClamp{}
	if got := c.Clamp(ctx, 50, Outflow); math.Abs(got-20) > 1e-9 {
		t.Fatalf("outflow=%v", got)
	}
	if got := c.Clamp(ctx, 100, Inflow); math.Abs(got-80) > 1e-9 {
		t.Fatalf("inflow=%v", got)
	}
	if _, err := ParseClamp("connection", 0, 0); err != nil {
		t.Fatalf("parse: %v", err)
	}
}
