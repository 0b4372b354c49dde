package flow

import (
	"fmt"
	"strings"

	"pipegrid.ai/internal/sim/network/volume"
)

type Kind int

const (
	// Outflow bounds what may leave the source.
	Outflow Kind = iota
	// Inflow bounds what may enter the destination.
	Inflow
)

func (k Kind) String() string {
	if k == Inflow {
		return "INFLOW"
	}
	return "OUTFLOW"
}

// ClampContext is oriented along the actual direction of movement.
type ClampContext struct {
	Source *volume.Container
	Dest   *volume.Container

	SourceDegree int
	DestDegree   int
}

// ClampModel bounds a non-negative flow magnitude. Results are never negative
// and never exceed the magnitude passed in.
type ClampModel interface {
	Clamp(ctx ClampContext, magnitude float64, kind Kind) float64
}

// FractionClamp caps outflow at Stored/MinDivider of the source and inflow at
// Free/MaxDivider of the destination.
type FractionClamp struct {
	MinDivider float64
	MaxDivider float64
}

func (f FractionClamp) Clamp(ctx ClampContext, magnitude float64, kind Kind) float64 {
	switch kind {
	case Outflow:
		if ctx.Source == nil {
			return 0
		}
		return bound(magnitude, ctx.Source.Stored()/divider(f.MinDivider))
	default:
		if ctx.Dest == nil {
			return 0
		}
		return bound(magnitude, ctx.Dest.Free()/divider(f.MaxDivider))
	}
}

// ConnectionClamp splits each endpoint's content or room evenly across its live
// connections, so a node feeding several neighbours cannot overdraw.
type ConnectionClamp struct{}

func (ConnectionClamp) Clamp(ctx ClampContext, magnitude float64, kind Kind) float64 {
	switch kind {
	case Outflow:
		if ctx.Source == nil {
			return 0
		}
		return bound(magnitude, ctx.Source.Stored()/divider(float64(ctx.SourceDegree)))
	default:
		if ctx.Dest == nil {
			return 0
		}
		return bound(magnitude, ctx.Dest.Free()/divider(float64(ctx.DestDegree)))
	}
}

// ParseClamp builds a clamp policy from its config name ("fraction", "connection").
func ParseClamp(name string, minDivider, maxDivider float64) (ClampModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fraction":
		return FractionClamp{MinDivider: minDivider, MaxDivider: maxDivider}, nil
	case "connection", "connections":
		return ConnectionClamp{}, nil
	default:
		return nil, fmt.Errorf("unknown clamp policy %q", name)
	}
}

func divider(d float64) float64 {
	if d < 1 {
		return 1
	}
	return d
}

func bound(magnitude, limit float64) float64 {
	if magnitude <= 0 || limit <= 0 {
		return 0
	}
	if magnitude > limit {
		return limit
	}
	return magnitude
}
