package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"terrain-stream/internal/profiling"
)

var (
	ErrInvalidRadius  = errors.New("world: render radius must be positive")
	ErrInvalidWorkers = errors.New("world: worker count must not be negative")
	ErrNilGenerator   = errors.New("world: nil chunk generator")
	ErrNilBuilder     = errors.New("world: nil chunk builder")
)

// Generator produces chunk payloads off the main thread. It is called
// concurrently for different coordinates and must not touch shared state.
type Generator[P any] interface {
	Generate(ctx context.Context, c GridCoord) (P, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc[P any] func(ctx context.Context, c GridCoord) (P, error)

func (f GeneratorFunc[P]) Generate(ctx context.Context, c GridCoord) (P, error) {
	return f(ctx, c)
}

// Builder turns a payload into a resident chunk. Only called on the thread
// that owns the store.
type Builder[P any] interface {
	Build(c GridCoord, payload P) (Chunk, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc[P any] func(c GridCoord, payload P) (Chunk, error)

func (f BuilderFunc[P]) Build(c GridCoord, payload P) (Chunk, error) {
	return f(c, payload)
}

// Options configures a ChunkManager.
type Options struct {
	// Radius is the render radius in chunks; the store is 2*Radius+1 wide.
	Radius int
	// Workers caps the generation pool. Zero means runtime.NumCPU().
	Workers int
	// Round limits loading to the disc of Radius instead of the full window.
	Round bool
	// TaskTimeout bounds a single generation task. Zero disables it.
	TaskTimeout time.Duration
	// MaxUploadsPerFrame bounds ProcessPending. Zero drains the queue.
	MaxUploadsPerFrame int
}

// Stats is a point-in-time view of the manager.
type Stats struct {
	Center            GridCoord
	Loaded            int
	PendingGeneration int
	Loading           int
	PendingUpload     int
	Workers           int

	Generated uint64
	Placed    uint64
	Discarded uint64
	Disposed  uint64
	Failed    uint64
}

// ChunkManager streams chunks into a toroidal store around a moving center.
//
// SetCenter, RefreshPendingWork, ProcessPending, Reload, ChunkAt,
// ForEachChunk and Close belong to the owning (render) thread. Generation
// runs on a pool of worker goroutines that never touch the store.
type ChunkManager[P any] struct {
	opts    Options
	gen     Generator[P]
	builder Builder[P]

	ring *ChunkRing

	genQ    generationQueue
	upQ     uploadQueue[P]
	loading loadingSet
	running int // guarded by genQ.mu

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool

	dirty atomic.Bool

	generated atomic.Uint64
	placed    atomic.Uint64
	discarded atomic.Uint64
	disposed  atomic.Uint64
	failed    atomic.Uint64
}

// NewChunkManager creates a manager centered on the grid origin. No work is
// queued until SetCenter or RefreshPendingWork is called.
func NewChunkManager[P any](opts Options, gen Generator[P], builder Builder[P]) (*ChunkManager[P], error) {
	if opts.Radius <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRadius, opts.Radius)
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, opts.Workers)
	}
	if gen == nil {
		return nil, ErrNilGenerator
	}
	if builder == nil {
		return nil, ErrNilBuilder
	}
	if opts.Workers == 0 {
		opts.Workers = max(runtime.NumCPU(), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &ChunkManager[P]{
		opts:    opts,
		gen:     gen,
		builder: builder,
		ring:    NewChunkRing(opts.Radius),
		ctx:     ctx,
		cancel:  cancel,
	}
	m.genQ.set = make(map[GridCoord]struct{})
	m.upQ.set = make(map[GridCoord]struct{})
	m.loading.tasks = make(map[GridCoord]context.CancelFunc)
	m.dirty.Store(true)
	return m, nil
}

// Radius returns the render radius in chunks.
func (m *ChunkManager[P]) Radius() int { return m.opts.Radius }

// Center returns the current center coordinate.
func (m *ChunkManager[P]) Center() GridCoord { return m.ring.Center() }

// Index returns the current grid-to-slot mapping of the store.
func (m *ChunkManager[P]) Index() GridIndex { return m.ring.Index() }

// inRange reports whether c should be loaded for the current center.
func (m *ChunkManager[P]) inRange(c GridCoord) bool {
	if !m.ring.index.Contains(c.X, c.Y) {
		return false
	}
	if m.opts.Round {
		r := m.opts.Radius
		return c.DistSq(m.ring.Center()) <= r*r
	}
	return true
}

// SetCenter moves the window to (x, y), disposes chunks that left it,
// cancels generation that can no longer land, and queues the new work.
func (m *ChunkManager[P]) SetCenter(x, y int) {
	defer profiling.Track("world.SetCenter")()
	if m.closed {
		return
	}
	if c := m.ring.Center(); c.X == x && c.Y == y {
		return
	}
	n := m.ring.Recenter(x, y)
	m.disposed.Add(uint64(n))

	m.loading.mu.Lock()
	m.loading.cancelWhere(func(c GridCoord) bool { return !m.inRange(c) })
	m.loading.mu.Unlock()

	m.RefreshPendingWork()
}

// RefreshPendingWork queues every empty in-range slot that is not already
// queued, loading or waiting for upload, then makes sure enough workers run.
func (m *ChunkManager[P]) RefreshPendingWork() {
	defer profiling.Track("world.RefreshPendingWork")()
	if m.closed {
		return
	}
	m.dirty.Store(false)

	m.genQ.mu.Lock()
	defer m.genQ.mu.Unlock()
	m.upQ.mu.Lock()
	m.loading.mu.Lock()
	m.reconcileLocked()
	m.loading.mu.Unlock()
	m.upQ.mu.Unlock()

	m.startWorkersLocked()
}

// reconcileLocked rebuilds the generation queue. All three queue locks
// must be held.
func (m *ChunkManager[P]) reconcileLocked() {
	m.genQ.retain(m.inRange)
	m.ring.forEachSlot(func(c GridCoord, ch Chunk) {
		if ch != nil || !m.inRange(c) {
			return
		}
		if m.genQ.has(c) || m.loading.has(c) || m.upQ.has(c) {
			return
		}
		m.genQ.push(c)
	})

	center := m.ring.Center()
	sort.Slice(m.genQ.coords, func(i, j int) bool {
		a, b := m.genQ.coords[i], m.genQ.coords[j]
		da, db := a.Manhattan(center), b.Manhattan(center)
		if da != db {
			return da > db
		}
		if a.X != b.X {
			return a.X > b.X
		}
		return a.Y > b.Y
	})
}

// startWorkersLocked tops the pool up to min(Workers, ceil(pending/3)).
// genQ.mu must be held.
func (m *ChunkManager[P]) startWorkersLocked() {
	pending := len(m.genQ.coords)
	if pending == 0 {
		return
	}
	want := max(min(m.opts.Workers, (pending+2)/3), 1)
	for m.running < want {
		m.running++
		m.wg.Add(1)
		go m.worker()
	}
}

// ProcessPending moves generated payloads into the store, nearest first,
// and returns how many chunks were placed. It never blocks on workers.
func (m *ChunkManager[P]) ProcessPending() int {
	defer profiling.Track("world.ProcessPending")()
	if m.closed {
		return 0
	}
	center := m.ring.Center()
	placed := 0
	for m.opts.MaxUploadsPerFrame <= 0 || placed < m.opts.MaxUploadsPerFrame {
		m.upQ.mu.Lock()
		e, ok := m.upQ.popNearest(center)
		m.upQ.mu.Unlock()
		if !ok {
			break
		}

		if !m.inRange(e.coord) {
			m.discard()
			continue
		}
		if m.ring.Occupied(e.coord) {
			log.Printf("world: chunk %v already loaded, discarding payload", e.coord)
			m.discard()
			continue
		}
		ch, err := m.builder.Build(e.coord, e.payload)
		if err != nil {
			log.Printf("world: build chunk %v: %v", e.coord, err)
			m.discard()
			continue
		}
		m.ring.Place(e.coord, ch)
		m.placed.Add(1)
		placed++
	}
	return placed
}

func (m *ChunkManager[P]) discard() {
	m.discarded.Add(1)
	m.dirty.Store(true)
}

// NeedsRefresh reports whether work was dropped since the last
// RefreshPendingWork, so some in-range slot may be empty and unqueued.
func (m *ChunkManager[P]) NeedsRefresh() bool {
	return m.dirty.Load()
}

// Reload disposes every chunk, drops all queued and in-flight work and
// queues the whole window again.
func (m *ChunkManager[P]) Reload() {
	defer profiling.Track("world.Reload")()
	if m.closed {
		return
	}
	m.disposed.Add(uint64(m.ring.Clear()))

	m.genQ.mu.Lock()
	m.upQ.mu.Lock()
	m.loading.mu.Lock()
	m.genQ.reset()
	m.upQ.reset()
	m.loading.cancelWhere(func(GridCoord) bool { return true })
	m.loading.mu.Unlock()
	m.upQ.mu.Unlock()
	m.genQ.mu.Unlock()

	m.RefreshPendingWork()
	// Cancelled tasks still occupy loading; pick their slots up later.
	m.dirty.Store(true)
}

// ChunkAt returns the loaded chunk at c, or nil.
func (m *ChunkManager[P]) ChunkAt(c GridCoord) Chunk {
	return m.ring.ChunkAt(c)
}

// ForEachChunk calls fn for every loaded chunk. fn must not modify the store.
func (m *ChunkManager[P]) ForEachChunk(fn func(GridCoord, Chunk)) {
	m.ring.ForEach(fn)
}

// Stats returns counters and queue sizes. Queue sizes are sampled one lock
// at a time and may be mutually inconsistent by a task or two.
func (m *ChunkManager[P]) Stats() Stats {
	s := Stats{
		Center:    m.ring.Center(),
		Loaded:    m.ring.Len(),
		Generated: m.generated.Load(),
		Placed:    m.placed.Load(),
		Discarded: m.discarded.Load(),
		Disposed:  m.disposed.Load(),
		Failed:    m.failed.Load(),
	}
	m.genQ.mu.Lock()
	s.PendingGeneration = len(m.genQ.coords)
	s.Workers = m.running
	m.genQ.mu.Unlock()
	m.upQ.mu.Lock()
	s.PendingUpload = len(m.upQ.entries)
	m.upQ.mu.Unlock()
	m.loading.mu.Lock()
	s.Loading = len(m.loading.tasks)
	m.loading.mu.Unlock()
	return s
}

// Close cancels all generation, waits for the workers to exit and disposes
// every loaded chunk. The manager is unusable afterwards.
func (m *ChunkManager[P]) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.cancel()
	m.wg.Wait()

	m.upQ.mu.Lock()
	m.upQ.reset()
	m.upQ.mu.Unlock()
	m.disposed.Add(uint64(m.ring.Clear()))
}
