package geom

import "fmt"

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Position is a top-left coordinate in the virtual screen.
type Position struct {
	X int
	Y int
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Add returns p shifted by d.
func (p Position) Add(d Position) Position {
	return Position{X: p.X + d.X, Y: p.Y + d.Y}
}

// Topology is the combined virtual-desktop size of the connected displays.
// It is the key under which window layouts are remembered; display positions
// are not part of it.
type Topology struct {
	Width  int
	Height int
}

// String returns the "WxH" label that rules match against.
func (t Topology) String() string {
	return fmt.Sprintf("%dx%d", t.Width, t.Height)
}

// Geometry is a window rectangle.
type Geometry struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Position returns the top-left corner.
func (g Geometry) Position() Position {
	return Position{X: g.X, Y: g.Y}
}

// Size returns the width and height.
func (g Geometry) Size() Size {
	return Size{Width: g.Width, Height: g.Height}
}

// String renders the wmctrl move argument "0,x,y,w,h". The leading gravity
// field is always 0 (static).
func (g Geometry) String() string {
	return fmt.Sprintf("0,%d,%d,%d,%d", g.X, g.Y, g.Width, g.Height)
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
