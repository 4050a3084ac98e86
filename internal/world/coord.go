package world

import "fmt"

// GridCoord identifies a chunk in the unbounded world grid.
type GridCoord struct {
	X, Y int
}

func (c GridCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// DistSq returns the squared Euclidean distance to o.
func (c GridCoord) DistSq(o GridCoord) int {
	dx := c.X - o.X
	dy := c.Y - o.Y
	return dx*dx + dy*dy
}

// Manhattan returns the Manhattan distance to o.
func (c GridCoord) Manhattan(o GridCoord) int {
	return abs(c.X-o.X) + abs(c.Y-o.Y)
}

// FloorDiv divides rounding toward negative infinity.
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
