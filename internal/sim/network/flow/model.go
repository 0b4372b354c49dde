package flow

import (
	"fmt"
	"math"
	"strings"

	"pipegrid.ai/internal/sim/network/graph"
	"pipegrid.ai/internal/sim/network/volume"
)

// Curve maps a fill fraction in [0,1] to a pressure in [0,100].
type Curve interface {
	Pressure(fraction float64) float64
}

// Linear pressure is the percent full.
type Linear struct{}

func (Linear) Pressure(f float64) float64 { return clamp01(f) * 100 }

// Threshold is linear up to Threshold and rises as a power curve above it,
// still reaching 100 when full.
type Threshold struct {
	Threshold float64
	Exponent  float64
}

func (c Threshold) Pressure(f float64) float64 {
	f = clamp01(f)
	t := clamp01(c.Threshold)
	if f <= t || t >= 1 {
		return f * 100
	}
	exp := c.Exponent
	if exp <= 0 {
		exp = 1
	}
	over := (f - t) / (1 - t)
	return (t + (1-t)*math.Pow(over, exp)) * 100
}

// ParseCurve builds a curve from its config name ("linear", "threshold").
func ParseCurve(name string, threshold, exponent float64) (Curve, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "linear":
		return Linear{}, nil
	case "threshold":
		return Threshold{Threshold: threshold, Exponent: exponent}, nil
	default:
		return nil, fmt.Errorf("unknown pressure curve %q", name)
	}
}

// Input is everything a flow model sees for one edge on one tick.
type Input struct {
	Edge *graph.Edge
	From *volume.Container
	To   *volume.Container

	PressureFrom float64
	PressureTo   float64

	// Prev is the signed flow the edge carried last tick.
	Prev float64
	// Viscosity is added to the friction for the resources currently at the source.
	Viscosity float64
}

// Gradient is positive when pressure favours From -> To.
func (in Input) Gradient() float64 { return in.PressureFrom - in.PressureTo }

type FlowModel interface {
	Pressure(c *volume.Container) float64
	Flow(in Input) float64
}

// DampedWave is flow' = flow*(1-friction) + (pFrom-pTo)*CSquared.
// CounterFriction adds damping while the remembered flow opposes the gradient.
// Adhesion adds damping proportional to how much the endpoints changed last tick.
type DampedWave struct {
	Friction        float64
	CSquared        float64
	CounterFriction float64
	Adhesion        float64
	Curve           Curve
}

func (w DampedWave) Pressure(c *volume.Container) float64 {
	if c == nil {
		return 0
	}
	curve := w.Curve
	if curve == nil {
		curve = Linear{}
	}
	return curve.Pressure(c.StoredPercent())
}

func (w DampedWave) Flow(in Input) float64 {
	grad := in.Gradient()
	friction := w.Friction + in.Viscosity
	if w.CounterFriction > 0 && in.Prev*grad < 0 {
		friction += w.CounterFriction
	}
	if w.Adhesion > 0 {
		friction += w.Adhesion * (recentFraction(in.From) + recentFraction(in.To)) / 2
	}
	friction = clamp01(friction)
	return in.Prev*(1-friction) + grad*w.CSquared
}

func recentFraction(c *volume.Container) float64 {
	if c == nil || c.Capacity() <= 0 {
		return 0
	}
	return clamp01(c.RecentChange() / c.Capacity())
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
