package netio

import "fmt"

// Pos is a cell on the 2-D grid. Hex topologies use axial coordinates (q=X, r=Y).
type Pos struct {
	X int
	Y int
}

func (p Pos) Add(o Pos) Pos { return Pos{X: p.X + o.X, Y: p.Y + o.Y} }

func (p Pos) ToArray() [2]int { return [2]int{p.X, p.Y} }

func (p Pos) String() string { return fmt.Sprintf("%d,%d", p.X, p.Y) }

// Dir indexes a topology's direction table.
type Dir int

// Topology describes grid adjacency.
type Topology interface {
	Name() string
	Dirs() int
	Offset(d Dir) Pos
	Opposite(d Dir) Dir
	// Rotate turns a relative offset clockwise by steps.
	Rotate(p Pos, steps int) Pos
}

func Neighbor(t Topology, p Pos, d Dir) Pos { return p.Add(t.Offset(d)) }

// RotateDir returns the direction d points to after rotating by steps.
func RotateDir(t Topology, d Dir, steps int) Dir {
	off := t.Rotate(t.Offset(d), steps)
	for i := 0; i < t.Dirs(); i++ {
		if t.Offset(Dir(i)) == off {
			return Dir(i)
		}
	}
	return d
}

// ParseTopology resolves a tuning name; the empty string selects Cardinal.
func ParseTopology(name string) (Topology, error) {
	switch name {
	case "", "cardinal", "square", "4":
		return Cardinal{}, nil
	case "hex", "hexagonal", "6":
		return Hex{}, nil
	default:
		return nil, fmt.Errorf("unknown topology %q", name)
	}
}

// Cardinal is the 4-neighbour square grid: N(+Y), E(+X), S(-Y), W(-X).
type Cardinal struct{}

const (
	North Dir = iota
	East
	South
	West
)

var cardinalOffsets = [4]Pos{{X: 0, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: -1}, {X: -1, Y: 0}}

func (Cardinal) Name() string { return "cardinal" }
func (Cardinal) Dirs() int    { return 4 }

func (Cardinal) Offset(d Dir) Pos {
	return cardinalOffsets[mod(int(d), 4)]
}

func (Cardinal) Opposite(d Dir) Dir { return Dir(mod(int(d)+2, 4)) }

func (Cardinal) Rotate(p Pos, steps int) Pos {
	for i := 0; i < mod(steps, 4); i++ {
		p = Pos{X: p.Y, Y: -p.X}
	}
	return p
}

// Hex is the 6-neighbour axial grid.
type Hex struct{}

var hexOffsets = [6]Pos{{X: 1, Y: 0}, {X: 1, Y: -1}, {X: 0, Y: -1}, {X: -1, Y: 0}, {X: -1, Y: 1}, {X: 0, Y: 1}}

func (Hex) Name() string { return "hex" }
func (Hex) Dirs() int    { return 6 }

func (Hex) Offset(d Dir) Pos {
	return hexOffsets[mod(int(d), 6)]
}

func (Hex) Opposite(d Dir) Dir { return Dir(mod(int(d)+3, 6)) }

func (Hex) Rotate(p Pos, steps int) Pos {
	for i := 0; i < mod(steps, 6); i++ {
		// Cube rotation by 60 degrees: (x,y,z) -> (-z,-x,-y), with q=x and r=z.
		p = Pos{X: -p.Y, Y: p.X + p.Y}
	}
	return p
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
