package game

import (
	"fmt"
	"log"
	"math"

	"terrain-stream/internal/config"
	"terrain-stream/internal/persistence/chunkcache"
	"terrain-stream/internal/profiling"
	"terrain-stream/internal/render"
	"terrain-stream/internal/terrain"
	"terrain-stream/internal/world"

	"github.com/go-gl/mathgl/mgl32"
)

// TerrainManager is the chunk manager specialised for terrain payloads.
type TerrainManager = world.ChunkManager[*terrain.Payload]

// Session drives one streaming run: a viewer moving over the terrain with
// the chunk window following it.
type Session struct {
	Settings  config.Settings
	Manager   *TerrainManager
	Uploader  *render.Uploader
	Generator *terrain.PayloadGenerator

	cache  *chunkcache.Cache
	cached *chunkcache.Source

	Position mgl32.Vec3
	Velocity mgl32.Vec3

	Frames    int
	LastFrame render.FrameStats
}

// NewSession builds the generator stack and the chunk manager for s and
// queues the initial window around the viewer.
func NewSession(s config.Settings) (*Session, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	sess := &Session{
		Settings: s,
		Uploader: render.NewUploader(),
		Position: mgl32.Vec3{s.Viewer.StartX, 0, s.Viewer.StartZ},
	}
	heading := mgl32.DegToRad(s.Viewer.Heading)
	sess.Velocity = mgl32.Vec3{
		float32(math.Cos(float64(heading))),
		0,
		float32(math.Sin(float64(heading))),
	}.Mul(s.Viewer.Speed)

	var src terrain.Source = terrain.NewNoise(s.Seed, s.ChunkQuads)
	if s.CachePath != "" {
		cache, err := chunkcache.Open(s.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open chunk cache: %w", err)
		}
		sess.cache = cache
		sess.cached = chunkcache.Wrap(src, cache, s.Seed)
		src = sess.cached
	}
	sess.Generator = terrain.NewPayloadGenerator(src, s.CellSize)

	config.SetRenderRadius(s.RenderRadius)
	if err := sess.rebuildManager(config.GetRenderRadius()); err != nil {
		sess.Cleanup()
		return nil, err
	}
	return sess, nil
}

func (s *Session) rebuildManager(radius int) error {
	if s.Manager != nil {
		s.Manager.Close()
	}
	m, err := world.NewChunkManager(world.Options{
		Radius:             radius,
		Workers:            s.Settings.Workers,
		Round:              s.Settings.RoundRadius,
		TaskTimeout:        s.Settings.TaskTimeout,
		MaxUploadsPerFrame: s.Settings.MaxUploadsPerFrame,
	}, world.Generator[*terrain.Payload](s.Generator), world.Builder[*terrain.Payload](s.Uploader))
	if err != nil {
		return err
	}
	s.Manager = m
	c := s.CenterChunk()
	m.SetCenter(c.X, c.Y)
	m.RefreshPendingWork()
	return nil
}

// CenterChunk returns the chunk under the viewer.
func (s *Session) CenterChunk() world.GridCoord {
	size := float64(s.Generator.ChunkWorldSize())
	return world.GridCoord{
		X: int(math.Floor(float64(s.Position[0]) / size)),
		Y: int(math.Floor(float64(s.Position[2]) / size)),
	}
}

// Tick advances the viewer by dt seconds and runs one frame of streaming.
func (s *Session) Tick(dt float64) {
	defer profiling.Track("game.Tick")()

	if r := config.GetRenderRadius(); r != s.Manager.Radius() {
		log.Printf("render radius %d -> %d, rebuilding chunk window", s.Manager.Radius(), r)
		if err := s.rebuildManager(r); err != nil {
			log.Printf("rebuild chunk window: %v", err)
		}
	}

	s.Position = s.Position.Add(s.Velocity.Mul(float32(dt)))
	c := s.CenterChunk()
	s.Manager.SetCenter(c.X, c.Y)

	s.Manager.ProcessPending()
	if s.Manager.NeedsRefresh() {
		s.Manager.RefreshPendingWork()
	}

	s.LastFrame = render.Draw(s.Manager)
	s.Frames++
}

// Reload drops every chunk and streams the window again.
func (s *Session) Reload() {
	s.Manager.Reload()
}

// CacheStats returns cache hits and misses; both are zero without a cache.
func (s *Session) CacheStats() (hits, misses uint64) {
	if s.cached == nil {
		return 0, 0
	}
	return s.cached.Hits(), s.cached.Misses()
}

// Cleanup stops the workers, releases every chunk and closes the cache.
func (s *Session) Cleanup() {
	if s.Manager != nil {
		s.Manager.Close()
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.Printf("close chunk cache: %v", err)
		}
		s.cache = nil
	}
}
