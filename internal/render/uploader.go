package render

import (
	"fmt"

	"terrain-stream/internal/terrain"
	"terrain-stream/internal/world"
)

// MeshChunk is a chunk whose mesh has been handed to the resident layer.
// The headless build keeps only sizes and a height summary.
type MeshChunk struct {
	Coord       world.GridCoord
	VertexBytes int
	IndexBytes  int
	Triangles   int
	MinHeight   float32
	MaxHeight   float32
	MeanHeight  float32

	owner    *Uploader
	disposed bool
}

// Dispose releases the chunk's accounted memory.
func (c *MeshChunk) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	c.owner.resident -= int64(c.VertexBytes + c.IndexBytes)
	c.owner.chunks--
}

// Disposed reports whether Dispose has run.
func (c *MeshChunk) Disposed() bool { return c.disposed }

// Uploader is the resident resource layer for terrain payloads. It
// implements world.Builder[*terrain.Payload] and must be used from the
// thread that owns the chunk store.
type Uploader struct {
	resident int64
	chunks   int
	uploads  uint64
}

// NewUploader creates an empty uploader.
func NewUploader() *Uploader {
	return &Uploader{}
}

func (u *Uploader) Build(c world.GridCoord, p *terrain.Payload) (world.Chunk, error) {
	if p == nil {
		return nil, fmt.Errorf("render: nil payload for %v", c)
	}
	if p.Coord != c {
		return nil, fmt.Errorf("render: payload for %v delivered to %v", p.Coord, c)
	}
	if len(p.Mesh.Indices) == 0 {
		return nil, fmt.Errorf("render: empty mesh for %v", c)
	}

	ch := &MeshChunk{
		Coord:       c,
		VertexBytes: p.Mesh.VertexBytes(),
		IndexBytes:  p.Mesh.IndexBytes(),
		Triangles:   len(p.Mesh.Indices) / 3,
		owner:       u,
	}
	ch.MinHeight, ch.MaxHeight, ch.MeanHeight = summarize(p.Heights)

	u.resident += int64(ch.VertexBytes + ch.IndexBytes)
	u.chunks++
	u.uploads++
	return ch, nil
}

func summarize(h []float32) (lo, hi, mean float32) {
	if len(h) == 0 {
		return 0, 0, 0
	}
	lo, hi = h[0], h[0]
	var sum float64
	for _, v := range h {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += float64(v)
	}
	return lo, hi, float32(sum / float64(len(h)))
}

// ResidentBytes returns the bytes held by undisposed chunks.
func (u *Uploader) ResidentBytes() int64 { return u.resident }

// ResidentChunks returns the number of undisposed chunks.
func (u *Uploader) ResidentChunks() int { return u.chunks }

// Uploads returns the total number of chunks built.
func (u *Uploader) Uploads() uint64 { return u.uploads }
