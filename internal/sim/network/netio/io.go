package netio

import "strings"

// Mode is a flag set describing what a port cell does.
type Mode uint8

const (
	None   Mode = 0
	Input  Mode = 1 << 0
	Output Mode = 1 << 1
	// Visual cells are drawn but never connect.
	Visual Mode = 1 << 2

	Bidirectional = Input | Output
)

func (m Mode) CanInput() bool  { return m&Input != 0 }
func (m Mode) CanOutput() bool { return m&Output != 0 }

func (m Mode) String() string {
	switch m & Bidirectional {
	case Bidirectional:
		return "BOTH"
	case Input:
		return "IN"
	case Output:
		return "OUT"
	}
	if m&Visual != 0 {
		return "VISUAL"
	}
	return "NONE"
}

func ParseMode(s string) Mode {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "IN", "INPUT":
		return Input
	case "OUT", "OUTPUT":
		return Output
	case "BOTH", "BIDIRECTIONAL", "INOUT":
		return Bidirectional
	case "VISUAL":
		return Visual
	default:
		return None
	}
}

// Cell is one port: the structure cell it sits on, the direction it faces and its mode.
type Cell struct {
	Pos  Pos
	Dir  Dir
	Mode Mode
}

// Target is the cell this port reaches into.
func (c Cell) Target(t Topology) Pos { return Neighbor(t, c.Pos, c.Dir) }

// Profile is the set of ports a structure exposes.
type Profile struct {
	Cells []Cell
}

func (p Profile) Empty() bool { return len(p.Cells) == 0 }

// Has reports whether c is one of the profile's ports.
func (p Profile) Has(c Cell) bool {
	for _, x := range p.Cells {
		if x == c {
			return true
		}
	}
	return false
}

// Result describes a resolved connection between side A and side B.
// An invalid result is a normal outcome, not an error.
type Result struct {
	Valid bool

	A Cell
	B Cell

	// Effective modes: AMode has Output when A feeds B, Input when B feeds A.
	AMode Mode
	BMode Mode
}

// AToB reports whether resources may move from A into B.
func (r Result) AToB() bool { return r.Valid && r.AMode.CanOutput() && r.BMode.CanInput() }

// BToA reports whether resources may move from B into A.
func (r Result) BToA() bool { return r.Valid && r.BMode.CanOutput() && r.AMode.CanInput() }

// Connects returns the first connection between a and b in profile order.
func Connects(t Topology, a, b Profile) Result {
	for _, ca := range a.Cells {
		if r := ConnectCell(t, ca, b); r.Valid {
			return r
		}
	}
	return Result{}
}

// ConnectCell resolves a single port of side A against every port of b.
func ConnectCell(t Topology, ca Cell, b Profile) Result {
	if ca.Mode&Bidirectional == None {
		return Result{}
	}
	target := ca.Target(t)
	for _, cb := range b.Cells {
		if cb.Pos != target || cb.Dir != t.Opposite(ca.Dir) {
			continue
		}
		if cb.Mode&Bidirectional == None {
			continue
		}
		var am, bm Mode
		if ca.Mode.CanOutput() && cb.Mode.CanInput() {
			am |= Output
			bm |= Input
		}
		if cb.Mode.CanOutput() && ca.Mode.CanInput() {
			am |= Input
			bm |= Output
		}
		if am == None {
			continue
		}
		return Result{Valid: true, A: ca, B: cb, AMode: am, BMode: bm}
	}
	return Result{}
}

// Place converts a profile defined relative to the origin into world cells,
// rotating offsets and facings by steps.
func Place(t Topology, origin Pos, rel []Cell, steps int) Profile {
	out := make([]Cell, 0, len(rel))
	for _, c := range rel {
		out = append(out, Cell{
			Pos:  origin.Add(t.Rotate(c.Pos, steps)),
			Dir:  RotateDir(t, c.Dir, steps),
			Mode: c.Mode,
		})
	}
	return Profile{Cells: out}
}
