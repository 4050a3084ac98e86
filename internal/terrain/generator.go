package terrain

import (
	"context"
	"fmt"

	"terrain-stream/internal/meshing"
	"terrain-stream/internal/world"

	"github.com/go-gl/mathgl/mgl32"
)

// DefaultQuads is the number of quads along one side of a chunk.
const DefaultQuads = 32

// Payload is generated chunk data that is not yet resident anywhere.
type Payload struct {
	Coord   world.GridCoord
	Quads   int
	Heights []float32 // (Quads+1)^2, row-major along Z
	Mesh    meshing.Mesh
}

// MaxHeight returns the highest sample in the payload.
func (p *Payload) MaxHeight() float32 {
	if len(p.Heights) == 0 {
		return 0
	}
	m := p.Heights[0]
	for _, h := range p.Heights[1:] {
		m = max(m, h)
	}
	return m
}

// Source produces the height lattice of a chunk. Implementations are called
// from several workers at once and must not share mutable state.
type Source interface {
	Heights(ctx context.Context, c world.GridCoord) ([]float32, error)
	Quads() int
}

// Noise is a seeded fractal value-noise height source.
type Noise struct {
	seed        int64
	quads       int
	scale       float64
	baseHeight  float64
	amp         float64
	octaves     int
	persistence float64
	lacunarity  float64
}

// NewNoise creates a noise source with default shape parameters.
func NewNoise(seed int64, quads int) *Noise {
	if quads <= 0 {
		quads = DefaultQuads
	}
	return &Noise{
		seed:        seed,
		quads:       quads,
		scale:       1.0 / 64.0,
		baseHeight:  32,
		amp:         48,
		octaves:     5,
		persistence: 0.5,
		lacunarity:  2.0,
	}
}

// Seed returns the seed the source was created with.
func (n *Noise) Seed() int64 { return n.seed }

func (n *Noise) Quads() int { return n.quads }

// HeightAt returns the surface height at lattice position (x, z).
func (n *Noise) HeightAt(x, z int) float32 {
	v := octaveNoise2D(float64(x)*n.scale, float64(z)*n.scale, n.seed, n.octaves, n.persistence, n.lacunarity)
	return float32(n.baseHeight + (v-0.5)*2*n.amp)
}

// Heights samples the chunk lattice. Edge samples coincide with those of
// the neighbouring chunks.
func (n *Noise) Heights(ctx context.Context, c world.GridCoord) ([]float32, error) {
	side := n.quads + 1
	out := make([]float32, side*side)
	baseX := c.X * n.quads
	baseZ := c.Y * n.quads
	for z := 0; z < side; z++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := out[z*side : (z+1)*side]
		for x := range row {
			row[x] = n.HeightAt(baseX+x, baseZ+z)
		}
	}
	return out, nil
}

// Flat is a constant-height source, mostly for tests.
type Flat struct {
	Height float32
	Size   int
}

// NewFlat creates a flat source.
func NewFlat(height float32, quads int) *Flat {
	if quads <= 0 {
		quads = DefaultQuads
	}
	return &Flat{Height: height, Size: quads}
}

func (f *Flat) Quads() int { return f.Size }

func (f *Flat) Heights(ctx context.Context, c world.GridCoord) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	side := f.Size + 1
	out := make([]float32, side*side)
	for i := range out {
		out[i] = f.Height
	}
	return out, nil
}

// PayloadGenerator turns a height source into chunk payloads with meshes.
// It implements world.Generator[*Payload].
type PayloadGenerator struct {
	src      Source
	cellSize float32
}

// NewPayloadGenerator wraps src. cellSize is the world distance between
// lattice samples.
func NewPayloadGenerator(src Source, cellSize float32) *PayloadGenerator {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &PayloadGenerator{src: src, cellSize: cellSize}
}

// ChunkWorldSize returns the world extent of one chunk side.
func (g *PayloadGenerator) ChunkWorldSize() float32 {
	return float32(g.src.Quads()) * g.cellSize
}

func (g *PayloadGenerator) Generate(ctx context.Context, c world.GridCoord) (*Payload, error) {
	heights, err := g.src.Heights(ctx, c)
	if err != nil {
		return nil, err
	}
	return g.Assemble(c, heights)
}

// Assemble builds the mesh for an already sampled height lattice.
func (g *PayloadGenerator) Assemble(c world.GridCoord, heights []float32) (*Payload, error) {
	q := g.src.Quads()
	size := g.ChunkWorldSize()
	origin := mgl32.Vec2{float32(c.X) * size, float32(c.Y) * size}
	mesh, err := meshing.BuildHeightfield(q, heights, origin, g.cellSize)
	if err != nil {
		return nil, fmt.Errorf("terrain: chunk %v: %w", c, err)
	}
	return &Payload{Coord: c, Quads: q, Heights: heights, Mesh: mesh}, nil
}
