package meshing

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is raw triangle data ready for upload. It holds no GPU handles.
type Mesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	Indices   []uint32
}

// VertexBytes returns the size of positions and normals as packed float32s.
func (m *Mesh) VertexBytes() int {
	return (len(m.Positions) + len(m.Normals)) * 3 * 4
}

// IndexBytes returns the size of the index buffer.
func (m *Mesh) IndexBytes() int {
	return len(m.Indices) * 4
}

// Interleaved packs position and normal per vertex (6 floats).
func (m *Mesh) Interleaved() []float32 {
	out := make([]float32, 0, len(m.Positions)*6)
	for i, p := range m.Positions {
		n := m.Normals[i]
		out = append(out, p[0], p[1], p[2], n[0], n[1], n[2])
	}
	return out
}

// BuildHeightfield triangulates a (size+1)x(size+1) height lattice laid out
// row-major along Z. origin is the world XZ position of lattice point (0,0)
// and cell the spacing between points.
func BuildHeightfield(size int, heights []float32, origin mgl32.Vec2, cell float32) (Mesh, error) {
	side := size + 1
	if size <= 0 || len(heights) != side*side {
		return Mesh{}, fmt.Errorf("meshing: %d heights for a %dx%d heightfield", len(heights), side, side)
	}

	m := Mesh{
		Positions: make([]mgl32.Vec3, 0, side*side),
		Normals:   make([]mgl32.Vec3, 0, side*side),
		Indices:   make([]uint32, 0, size*size*6),
	}

	at := func(x, z int) float32 {
		x = min(max(x, 0), size)
		z = min(max(z, 0), size)
		return heights[z*side+x]
	}

	for z := 0; z < side; z++ {
		for x := 0; x < side; x++ {
			m.Positions = append(m.Positions, mgl32.Vec3{
				origin[0] + float32(x)*cell,
				heights[z*side+x],
				origin[1] + float32(z)*cell,
			})
			// Central differences; one-sided on the border.
			dx := (at(x+1, z) - at(x-1, z)) / (float32(min(x+1, size)-max(x-1, 0)) * cell)
			dz := (at(x, z+1) - at(x, z-1)) / (float32(min(z+1, size)-max(z-1, 0)) * cell)
			m.Normals = append(m.Normals, mgl32.Vec3{-dx, 1, -dz}.Normalize())
		}
	}

	for z := 0; z < size; z++ {
		for x := 0; x < size; x++ {
			i0 := uint32(z*side + x)
			i1 := i0 + 1
			i2 := i0 + uint32(side)
			i3 := i2 + 1
			// Counter-clockwise seen from above (+Y).
			m.Indices = append(m.Indices, i0, i2, i1, i1, i2, i3)
		}
	}
	return m, nil
}
