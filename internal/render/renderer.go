package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	"terrain-stream/internal/world"
)

// ChunkSource is the read-only view of a chunk store the renderer needs.
type ChunkSource interface {
	ForEachChunk(fn func(world.GridCoord, world.Chunk))
	Center() world.GridCoord
	Radius() int
}

// FrameStats summarizes one frame of draw submission.
type FrameStats struct {
	DrawCalls int
	Triangles int
}

// Draw walks every loaded chunk and counts the draws it would issue.
// It never mutates the store.
func Draw(src ChunkSource) FrameStats {
	var fs FrameStats
	src.ForEachChunk(func(_ world.GridCoord, ch world.Chunk) {
		mc, ok := ch.(*MeshChunk)
		if !ok {
			return
		}
		fs.DrawCalls++
		fs.Triangles += mc.Triangles
	})
	return fs
}

// Minimap renders one pixel per chunk slot, shaded by mean height, scaled
// up by pixelsPerChunk. Empty slots are dark.
func Minimap(src ChunkSource, pixelsPerChunk int) *image.RGBA {
	r := src.Radius()
	side := 2*r + 1
	center := src.Center()

	small := image.NewRGBA(image.Rect(0, 0, side, side))
	for i := range small.Pix {
		small.Pix[i] = 0x10
	}
	for i := 3; i < len(small.Pix); i += 4 {
		small.Pix[i] = 0xff
	}

	var lo, hi float32
	first := true
	src.ForEachChunk(func(_ world.GridCoord, ch world.Chunk) {
		mc, ok := ch.(*MeshChunk)
		if !ok {
			return
		}
		if first {
			lo, hi, first = mc.MeanHeight, mc.MeanHeight, false
			return
		}
		lo = min(lo, mc.MeanHeight)
		hi = max(hi, mc.MeanHeight)
	})
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	src.ForEachChunk(func(c world.GridCoord, ch world.Chunk) {
		mc, ok := ch.(*MeshChunk)
		if !ok {
			return
		}
		t := (mc.MeanHeight - lo) / span
		// Image Y grows downwards; grid Y grows upwards.
		px := c.X - center.X + r
		py := r - (c.Y - center.Y)
		small.SetRGBA(px, py, color.RGBA{
			R: uint8(40 + 120*t),
			G: uint8(90 + 150*t),
			B: uint8(40 + 60*t),
			A: 0xff,
		})
	})

	if pixelsPerChunk <= 1 {
		return small
	}
	out := image.NewRGBA(image.Rect(0, 0, side*pixelsPerChunk, side*pixelsPerChunk))
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	return out
}

// WriteMinimap encodes Minimap(src, pixelsPerChunk) as PNG at path.
func WriteMinimap(path string, src ChunkSource, pixelsPerChunk int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, Minimap(src, pixelsPerChunk)); err != nil {
		f.Close()
		return fmt.Errorf("render: encode minimap: %w", err)
	}
	return f.Close()
}
