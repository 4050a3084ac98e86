package world

// GridIndex maps world grid coordinates onto a wrapping square array.
// The window covers [startX, startX+size) x [startY, startY+size); the
// offsets rotate the array so the window can move without moving data.
type GridIndex struct {
	size             int
	startX, startY   int
	offsetX, offsetY int
}

// NewGridIndex returns an index for a square array of the given side.
func NewGridIndex(size int) GridIndex {
	return GridIndex{size: size}
}

// Size returns the side length of the array.
func (g GridIndex) Size() int { return g.size }

// Origin returns the grid coordinate of the window's lower corner.
func (g GridIndex) Origin() GridCoord { return GridCoord{X: g.startX, Y: g.startY} }

// Offset returns the current rotation of the array.
func (g GridIndex) Offset() (int, int) { return g.offsetX, g.offsetY }

// Contains reports whether the grid coordinate is inside the window.
func (g GridIndex) Contains(gridX, gridY int) bool {
	rx := gridX - g.startX
	ry := gridY - g.startY
	return rx >= 0 && rx < g.size && ry >= 0 && ry < g.size
}

// GridToArray returns the array slot holding the grid coordinate.
// ok is false when the coordinate falls outside the current window.
func (g GridIndex) GridToArray(gridX, gridY int) (slotX, slotY int, ok bool) {
	if !g.Contains(gridX, gridY) {
		return -1, -1, false
	}
	slotX = (gridX - g.startX + g.offsetX) % g.size
	slotY = (gridY - g.startY + g.offsetY) % g.size
	return slotX, slotY, true
}

// ArrayToGrid returns the grid coordinate stored at an array slot.
func (g GridIndex) ArrayToGrid(slotX, slotY int) (gridX, gridY int) {
	gridX = g.startX + mod(slotX-g.offsetX, g.size)
	gridY = g.startY + mod(slotY-g.offsetY, g.size)
	return gridX, gridY
}

// shifted returns the index moved by (dx, dy) with the offsets advanced so
// every coordinate that stays inside the window keeps its slot.
func (g GridIndex) shifted(dx, dy int) GridIndex {
	g.startX += dx
	g.startY += dy
	g.offsetX = (g.offsetX + dx%g.size + g.size) % g.size
	g.offsetY = (g.offsetY + dy%g.size + g.size) % g.size
	return g
}

// reset returns the index with a new origin and no rotation.
func (g GridIndex) reset(startX, startY int) GridIndex {
	return GridIndex{size: g.size, startX: startX, startY: startY}
}
