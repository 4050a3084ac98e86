package world

// Chunk is a renderable chunk resource owned by a ChunkRing.
// Dispose releases whatever the resource holds and is called exactly once.
type Chunk interface {
	Dispose()
}

// ChunkRing is a fixed-size toroidal store of chunks around a moving center.
// It is not safe for concurrent use; the owning thread mutates it.
type ChunkRing struct {
	radius int
	index  GridIndex
	slots  []Chunk
}

// NewChunkRing creates a store of side 2*radius+1 centered on the origin.
func NewChunkRing(radius int) *ChunkRing {
	size := 2*radius + 1
	r := &ChunkRing{
		radius: radius,
		index:  NewGridIndex(size),
		slots:  make([]Chunk, size*size),
	}
	r.index = r.index.reset(-radius, -radius)
	return r
}

// Radius returns the render radius in chunks.
func (r *ChunkRing) Radius() int { return r.radius }

// Index returns the current grid-to-slot mapping.
func (r *ChunkRing) Index() GridIndex { return r.index }

// Center returns the grid coordinate at the middle of the window.
func (r *ChunkRing) Center() GridCoord {
	o := r.index.Origin()
	return GridCoord{X: o.X + r.radius, Y: o.Y + r.radius}
}

func (r *ChunkRing) slot(x, y int) *Chunk {
	return &r.slots[y*r.index.size+x]
}

// ChunkAt returns the chunk stored for the coordinate, or nil when the
// coordinate is outside the window or not loaded.
func (r *ChunkRing) ChunkAt(c GridCoord) Chunk {
	sx, sy, ok := r.index.GridToArray(c.X, c.Y)
	if !ok {
		return nil
	}
	return *r.slot(sx, sy)
}

// Place stores ch for the coordinate. It returns false and leaves the store
// untouched when the coordinate is outside the window or already occupied.
func (r *ChunkRing) Place(c GridCoord, ch Chunk) bool {
	sx, sy, ok := r.index.GridToArray(c.X, c.Y)
	if !ok {
		return false
	}
	s := r.slot(sx, sy)
	if *s != nil {
		return false
	}
	*s = ch
	return true
}

// Occupied reports whether the coordinate is inside the window and loaded.
func (r *ChunkRing) Occupied(c GridCoord) bool {
	return r.ChunkAt(c) != nil
}

// Len returns the number of loaded chunks.
func (r *ChunkRing) Len() int {
	n := 0
	for _, ch := range r.slots {
		if ch != nil {
			n++
		}
	}
	return n
}

// ForEach calls fn for every loaded chunk. fn must not modify the store.
func (r *ChunkRing) ForEach(fn func(GridCoord, Chunk)) {
	size := r.index.size
	for sy := 0; sy < size; sy++ {
		for sx := 0; sx < size; sx++ {
			ch := *r.slot(sx, sy)
			if ch == nil {
				continue
			}
			gx, gy := r.index.ArrayToGrid(sx, sy)
			fn(GridCoord{X: gx, Y: gy}, ch)
		}
	}
}

// forEachSlot visits every slot, loaded or not, with its grid coordinate.
func (r *ChunkRing) forEachSlot(fn func(GridCoord, Chunk)) {
	size := r.index.size
	for sy := 0; sy < size; sy++ {
		for sx := 0; sx < size; sx++ {
			gx, gy := r.index.ArrayToGrid(sx, sy)
			fn(GridCoord{X: gx, Y: gy}, *r.slot(sx, sy))
		}
	}
}

// Clear disposes every loaded chunk and returns how many were disposed.
func (r *ChunkRing) Clear() int {
	n := 0
	for i, ch := range r.slots {
		if ch != nil {
			ch.Dispose()
			r.slots[i] = nil
			n++
		}
	}
	return n
}

// Recenter moves the window so (cx, cy) is its center and returns the number
// of chunks disposed. Only chunks that leave the window are touched.
func (r *ChunkRing) Recenter(cx, cy int) int {
	size := r.index.size
	origin := r.index.Origin()
	dx := cx - r.radius - origin.X
	dy := cy - r.radius - origin.Y
	if dx == 0 && dy == 0 {
		return 0
	}

	if abs(dx) >= size || abs(dy) >= size {
		n := r.Clear()
		r.index = r.index.reset(cx-r.radius, cy-r.radius)
		return n
	}

	n := 0
	// Trailing columns: grid x values that fall off the old window.
	if dx > 0 {
		n += r.clearColumns(origin.X, origin.X+dx)
	} else if dx < 0 {
		n += r.clearColumns(origin.X+size+dx, origin.X+size)
	}
	if dy > 0 {
		n += r.clearRows(origin.Y, origin.Y+dy)
	} else if dy < 0 {
		n += r.clearRows(origin.Y+size+dy, origin.Y+size)
	}

	r.index = r.index.shifted(dx, dy)
	return n
}

// clearColumns disposes every slot with grid x in [fromX, toX).
func (r *ChunkRing) clearColumns(fromX, toX int) int {
	o := r.index.Origin()
	n := 0
	for gx := fromX; gx < toX; gx++ {
		for gy := o.Y; gy < o.Y+r.index.size; gy++ {
			n += r.clearAt(gx, gy)
		}
	}
	return n
}

// clearRows disposes every slot with grid y in [fromY, toY).
func (r *ChunkRing) clearRows(fromY, toY int) int {
	o := r.index.Origin()
	n := 0
	for gy := fromY; gy < toY; gy++ {
		for gx := o.X; gx < o.X+r.index.size; gx++ {
			n += r.clearAt(gx, gy)
		}
	}
	return n
}

func (r *ChunkRing) clearAt(gx, gy int) int {
	sx, sy, ok := r.index.GridToArray(gx, gy)
	if !ok {
		return 0
	}
	s := r.slot(sx, sy)
	if *s == nil {
		return 0
	}
	(*s).Dispose()
	*s = nil
	return 1
}
