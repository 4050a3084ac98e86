package world

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testPayload struct {
	coord GridCoord
}

func coordGenerator() GeneratorFunc[testPayload] {
	return func(ctx context.Context, c GridCoord) (testPayload, error) {
		return testPayload{coord: c}, nil
	}
}

// recordingBuilder builds testChunks and remembers every placement.
type recordingBuilder struct {
	mu     sync.Mutex
	built  map[GridCoord]int
	chunks []*testChunk
}

func newRecordingBuilder() *recordingBuilder {
	return &recordingBuilder{built: make(map[GridCoord]int)}
}

func (b *recordingBuilder) Build(c GridCoord, p testPayload) (Chunk, error) {
	if p.coord != c {
		return nil, errors.New("payload coordinate mismatch")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.built[c]++
	ch := &testChunk{coord: c}
	b.chunks = append(b.chunks, ch)
	return ch, nil
}

func newTestManager(t *testing.T, opts Options, gen Generator[testPayload], b Builder[testPayload]) *ChunkManager[testPayload] {
	t.Helper()
	m, err := NewChunkManager(opts, gen, b)
	if err != nil {
		t.Fatalf("NewChunkManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

// pump drives the frame-side calls until done returns true.
func pump(t *testing.T, m *ChunkManager[testPayload], done func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !done() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, stats %+v", m.Stats())
		}
		m.ProcessPending()
		if m.NeedsRefresh() {
			m.RefreshPendingWork()
		}
		time.Sleep(time.Millisecond)
	}
}

func windowArea(radius int) int {
	return (2*radius + 1) * (2*radius + 1)
}

func TestNewChunkManagerValidation(t *testing.T) {
	b := newRecordingBuilder()
	cases := []struct {
		name string
		opts Options
		gen  Generator[testPayload]
		b    Builder[testPayload]
		want error
	}{
		{"zero radius", Options{Radius: 0}, coordGenerator(), b, ErrInvalidRadius},
		{"negative radius", Options{Radius: -3}, coordGenerator(), b, ErrInvalidRadius},
		{"negative workers", Options{Radius: 1, Workers: -1}, coordGenerator(), b, ErrInvalidWorkers},
		{"nil generator", Options{Radius: 1}, nil, b, ErrNilGenerator},
		{"nil builder", Options{Radius: 1}, coordGenerator(), nil, ErrNilBuilder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewChunkManager(tc.opts, tc.gen, tc.b)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func lockAll(m *ChunkManager[testPayload]) func() {
	m.genQ.mu.Lock()
	m.upQ.mu.Lock()
	m.loading.mu.Lock()
	return func() {
		m.loading.mu.Unlock()
		m.upQ.mu.Unlock()
		m.genQ.mu.Unlock()
	}
}

func TestReconcileEmptyStoreQueuesWindowNearestLast(t *testing.T) {
	m := newTestManager(t, Options{Radius: 2, Workers: 1}, coordGenerator(), newRecordingBuilder())

	unlock := lockAll(m)
	m.reconcileLocked()
	coords := append([]GridCoord(nil), m.genQ.coords...)
	unlock()

	if len(coords) != 25 {
		t.Fatalf("queued %d coordinates, want 25", len(coords))
	}
	if last := coords[len(coords)-1]; last != (GridCoord{}) {
		t.Errorf("last queued = %v, want (0,0)", last)
	}
	center := GridCoord{}
	for i := 1; i < len(coords); i++ {
		if coords[i-1].Manhattan(center) < coords[i].Manhattan(center) {
			t.Fatalf("queue not sorted farthest first at %d: %v before %v", i, coords[i-1], coords[i])
		}
	}
}

func TestReconcileRoundUsesDisc(t *testing.T) {
	m := newTestManager(t, Options{Radius: 2, Workers: 1, Round: true}, coordGenerator(), newRecordingBuilder())

	unlock := lockAll(m)
	m.reconcileLocked()
	n := len(m.genQ.coords)
	unlock()

	if n != 13 {
		t.Errorf("queued %d coordinates, want 13", n)
	}
}

func TestReconcileSkipsQueuedLoadingAndUploads(t *testing.T) {
	m := newTestManager(t, Options{Radius: 1, Workers: 1}, coordGenerator(), newRecordingBuilder())
	m.ring.Place(GridCoord{X: 1, Y: 1}, &testChunk{})

	unlock := lockAll(m)
	m.loading.tasks[GridCoord{X: -1, Y: 0}] = func() {}
	m.upQ.push(GridCoord{X: 0, Y: 1}, testPayload{coord: GridCoord{X: 0, Y: 1}})
	m.reconcileLocked()
	m.reconcileLocked()
	coords := append([]GridCoord(nil), m.genQ.coords...)
	delete(m.loading.tasks, GridCoord{X: -1, Y: 0})
	m.upQ.reset()
	m.genQ.reset()
	unlock()

	if len(coords) != 6 {
		t.Fatalf("queued %d coordinates, want 6: %v", len(coords), coords)
	}
	for _, c := range coords {
		switch c {
		case GridCoord{X: 1, Y: 1}, GridCoord{X: -1, Y: 0}, GridCoord{X: 0, Y: 1}:
			t.Errorf("coordinate %v queued twice", c)
		}
	}
}

func TestManagerFillsWindow(t *testing.T) {
	b := newRecordingBuilder()
	m := newTestManager(t, Options{Radius: 3, Workers: 4}, coordGenerator(), b)
	m.RefreshPendingWork()

	pump(t, m, func() bool { return m.Stats().Loaded == windowArea(3) })

	b.mu.Lock()
	defer b.mu.Unlock()
	for c, n := range b.built {
		if n != 1 {
			t.Errorf("chunk %v built %d times", c, n)
		}
	}
	s := m.Stats()
	if s.Generated != uint64(windowArea(3)) || s.Placed != uint64(windowArea(3)) {
		t.Errorf("unexpected counters %+v", s)
	}
}

// TestWorkersNeverShareCoordinates checks, from inside the generator, that
// the loading set and the generation queue stay disjoint and that no
// coordinate is generated twice at once.
func TestWorkersNeverShareCoordinates(t *testing.T) {
	var m *ChunkManager[testPayload]
	var mu sync.Mutex
	active := make(map[GridCoord]bool)
	var violations []string

	gen := GeneratorFunc[testPayload](func(ctx context.Context, c GridCoord) (testPayload, error) {
		mu.Lock()
		if active[c] {
			violations = append(violations, "concurrent generation of "+c.String())
		}
		active[c] = true
		mu.Unlock()

		m.genQ.mu.Lock()
		m.loading.mu.Lock()
		for q := range m.genQ.set {
			if m.loading.has(q) {
				mu.Lock()
				violations = append(violations, "queued and loading: "+q.String())
				mu.Unlock()
			}
		}
		m.loading.mu.Unlock()
		m.genQ.mu.Unlock()

		time.Sleep(100 * time.Microsecond)
		mu.Lock()
		delete(active, c)
		mu.Unlock()
		return testPayload{coord: c}, nil
	})

	b := newRecordingBuilder()
	m = newTestManager(t, Options{Radius: 4, Workers: 8}, gen, b)
	m.RefreshPendingWork()
	for i := 0; i < 10; i++ {
		m.RefreshPendingWork()
		m.ProcessPending()
	}
	pump(t, m, func() bool { return m.Stats().Loaded == windowArea(4) })

	mu.Lock()
	defer mu.Unlock()
	for _, v := range violations {
		t.Error(v)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for c, n := range b.built {
		if n != 1 {
			t.Errorf("chunk %v built %d times", c, n)
		}
	}
}

// TestLivenessAfterMoves moves the center around and checks that every
// in-range slot ends up loaded and that no chunk is disposed twice.
func TestLivenessAfterMoves(t *testing.T) {
	b := newRecordingBuilder()
	m := newTestManager(t, Options{Radius: 3, Workers: 3, MaxUploadsPerFrame: 4}, coordGenerator(), b)

	path := [][2]int{{0, 0}, {1, 0}, {2, 1}, {2, 3}, {-5, 3}, {-4, 2}, {30, 30}, {29, 31}}
	for _, p := range path {
		m.SetCenter(p[0], p[1])
		m.ProcessPending()
	}
	pump(t, m, func() bool { return m.Stats().Loaded == windowArea(3) })

	c := m.Center()
	if c != (GridCoord{X: 29, Y: 31}) {
		t.Fatalf("center = %v", c)
	}
	for x := c.X - 3; x <= c.X+3; x++ {
		for y := c.Y - 3; y <= c.Y+3; y++ {
			ch, ok := m.ChunkAt(GridCoord{X: x, Y: y}).(*testChunk)
			if !ok || ch.coord != (GridCoord{X: x, Y: y}) {
				t.Errorf("slot (%d,%d) holds wrong chunk", x, y)
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.chunks {
		if ch.disposed > 1 {
			t.Errorf("chunk %v disposed %d times", ch.coord, ch.disposed)
		}
	}
}

func TestProcessPendingDiscardsStaleAndDuplicate(t *testing.T) {
	b := newRecordingBuilder()
	m := newTestManager(t, Options{Radius: 1, Workers: 1}, coordGenerator(), b)

	existing := &testChunk{coord: GridCoord{}}
	m.ring.Place(GridCoord{}, existing)

	m.upQ.mu.Lock()
	m.upQ.push(GridCoord{X: 9, Y: 9}, testPayload{coord: GridCoord{X: 9, Y: 9}})
	m.upQ.push(GridCoord{}, testPayload{coord: GridCoord{}})
	m.upQ.push(GridCoord{X: 1, Y: 0}, testPayload{coord: GridCoord{X: 1, Y: 0}})
	m.upQ.mu.Unlock()

	if placed := m.ProcessPending(); placed != 1 {
		t.Errorf("placed %d, want 1", placed)
	}
	if got := m.Stats().Discarded; got != 2 {
		t.Errorf("discarded %d, want 2", got)
	}
	if m.ChunkAt(GridCoord{}) != Chunk(existing) {
		t.Error("occupied slot was overwritten")
	}
	if existing.disposed != 0 {
		t.Error("existing chunk disposed")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.built) != 1 || b.built[GridCoord{X: 1, Y: 0}] != 1 {
		t.Errorf("unexpected builds %v", b.built)
	}
	if !m.NeedsRefresh() {
		t.Error("discards should request a refresh")
	}
}

func TestProcessPendingNearestFirstWithBudget(t *testing.T) {
	b := newRecordingBuilder()
	m := newTestManager(t, Options{Radius: 2, Workers: 1, MaxUploadsPerFrame: 1}, coordGenerator(), b)

	m.upQ.mu.Lock()
	for _, c := range []GridCoord{{X: 2, Y: 2}, {X: 1, Y: 0}, {X: -2, Y: 1}} {
		m.upQ.push(c, testPayload{coord: c})
	}
	m.upQ.mu.Unlock()

	want := []GridCoord{{X: 1, Y: 0}, {X: -2, Y: 1}, {X: 2, Y: 2}}
	for i, w := range want {
		if n := m.ProcessPending(); n != 1 {
			t.Fatalf("frame %d placed %d, want 1", i, n)
		}
		if m.ChunkAt(w) == nil {
			t.Errorf("frame %d: %v not placed", i, w)
		}
	}
}

func TestGenerationTimeoutCountsFailure(t *testing.T) {
	gen := GeneratorFunc[testPayload](func(ctx context.Context, c GridCoord) (testPayload, error) {
		if c == (GridCoord{}) {
			<-ctx.Done()
			return testPayload{}, ctx.Err()
		}
		return testPayload{coord: c}, nil
	})
	m := newTestManager(t, Options{Radius: 1, Workers: 2, TaskTimeout: 10 * time.Millisecond}, gen, newRecordingBuilder())
	m.RefreshPendingWork()

	deadline := time.Now().Add(5 * time.Second)
	for m.Stats().Failed == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timeout never reported, stats %+v", m.Stats())
		}
		m.ProcessPending()
		time.Sleep(time.Millisecond)
	}
	if m.ChunkAt(GridCoord{}) != nil {
		t.Error("timed out chunk was placed")
	}
	if !m.NeedsRefresh() {
		t.Error("failure should request a refresh")
	}
}

func TestSetCenterCancelsStaleGeneration(t *testing.T) {
	started := make(chan GridCoord, 64)
	gen := GeneratorFunc[testPayload](func(ctx context.Context, c GridCoord) (testPayload, error) {
		started <- c
		<-ctx.Done()
		return testPayload{coord: c}, nil
	})
	m := newTestManager(t, Options{Radius: 1, Workers: 1}, gen, newRecordingBuilder())
	m.RefreshPendingWork()

	first := <-started
	if first != (GridCoord{}) {
		t.Fatalf("first generated %v, want nearest (0,0)", first)
	}
	m.SetCenter(100, 100)

	select {
	case next := <-started:
		if next != (GridCoord{X: 100, Y: 100}) {
			t.Errorf("after recenter generated %v, want (100,100)", next)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("stale task not cancelled, stats %+v", m.Stats())
	}

	m.loading.mu.Lock()
	stale := m.loading.has(GridCoord{})
	m.loading.mu.Unlock()
	if stale {
		t.Error("stale coordinate still loading")
	}
	m.ProcessPending()
	if m.Stats().Placed != 0 {
		t.Error("cancelled payload was placed")
	}
}

func TestReloadDisposesAndRefills(t *testing.T) {
	b := newRecordingBuilder()
	m := newTestManager(t, Options{Radius: 2, Workers: 2}, coordGenerator(), b)
	m.RefreshPendingWork()
	pump(t, m, func() bool { return m.Stats().Loaded == windowArea(2) })

	b.mu.Lock()
	first := append([]*testChunk(nil), b.chunks...)
	b.mu.Unlock()

	m.Reload()
	for _, ch := range first {
		if ch.disposed != 1 {
			t.Errorf("chunk %v disposed %d times after reload", ch.coord, ch.disposed)
		}
	}
	pump(t, m, func() bool { return m.Stats().Loaded == windowArea(2) })
}

func TestCloseStopsWorkersAndDisposes(t *testing.T) {
	b := newRecordingBuilder()
	m, err := NewChunkManager[testPayload](Options{Radius: 2, Workers: 2}, coordGenerator(), b)
	if err != nil {
		t.Fatal(err)
	}
	m.RefreshPendingWork()
	pump(t, m, func() bool { return m.Stats().Loaded > 0 })

	m.Close()
	s := m.Stats()
	if s.Workers != 0 || s.Loaded != 0 || s.PendingUpload != 0 {
		t.Errorf("unexpected stats after close %+v", s)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.chunks {
		if ch.disposed != 1 {
			t.Errorf("chunk %v disposed %d times", ch.coord, ch.disposed)
		}
	}
	m.Close()
}

// blockingGenerator parks every task until its context is cancelled while
// block is set.
func blockingGenerator(block *atomic.Bool) GeneratorFunc[testPayload] {
	return func(ctx context.Context, c GridCoord) (testPayload, error) {
		if block.Load() {
			<-ctx.Done()
			return testPayload{}, ctx.Err()
		}
		return testPayload{coord: c}, nil
	}
}

func TestWorkerPoolSizing(t *testing.T) {
	cases := []struct {
		name   string
		radius int
		placed []GridCoord
		want   int
	}{
		{"capped by pool", 2, nil, 8},
		{"one per three pending", 1, []GridCoord{{X: 1, Y: 1}, {X: -1, Y: -1}}, 3},
		{"single pending", 1, []GridCoord{{X: -1, Y: -1}, {X: -1, Y: 0}, {X: -1, Y: 1}, {X: 0, Y: -1}, {X: 0, Y: 1}, {X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1}}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var block atomic.Bool
			block.Store(true)
			m := newTestManager(t, Options{Radius: tc.radius, Workers: 8}, blockingGenerator(&block), newRecordingBuilder())
			for _, c := range tc.placed {
				m.ring.Place(c, &testChunk{coord: c})
			}
			m.RefreshPendingWork()
			if got := m.Stats().Workers; got != tc.want {
				t.Errorf("workers = %d, want %d", got, tc.want)
			}
			// A second refresh must not add workers beyond the target.
			m.RefreshPendingWork()
			if got := m.Stats().Workers; got > tc.want {
				t.Errorf("workers after refresh = %d, want at most %d", got, tc.want)
			}
		})
	}
}

func TestDrainedPoolRestartsOnRefresh(t *testing.T) {
	var block atomic.Bool
	m := newTestManager(t, Options{Radius: 1, Workers: 8}, blockingGenerator(&block), newRecordingBuilder())
	m.RefreshPendingWork()
	pump(t, m, func() bool {
		s := m.Stats()
		return s.Loaded == windowArea(1) && s.Workers == 0
	})

	block.Store(true)
	m.SetCenter(5, 5)
	if got := m.Stats().Workers; got != 3 {
		t.Errorf("workers after recenter = %d, want 3", got)
	}
}

// epochPayload records the Reload generation it was produced in.
type epochPayload struct {
	coord GridCoord
	epoch int32
}

func TestReloadDropsPayloadFinishedDuringReload(t *testing.T) {
	var epoch atomic.Int32
	var parked atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})
	gen := GeneratorFunc[epochPayload](func(ctx context.Context, c GridCoord) (epochPayload, error) {
		e := epoch.Load()
		if c == (GridCoord{}) && parked.CompareAndSwap(false, true) {
			close(started)
			<-release
		}
		return epochPayload{coord: c, epoch: e}, nil
	})
	var stale atomic.Int32
	b := BuilderFunc[epochPayload](func(c GridCoord, p epochPayload) (Chunk, error) {
		if p.epoch != epoch.Load() {
			stale.Add(1)
		}
		return &testChunk{coord: c}, nil
	})

	m, err := NewChunkManager[epochPayload](Options{Radius: 1, Workers: 1}, gen, b)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Close)
	m.RefreshPendingWork()
	<-started

	// Let the worker finish generating while the upload queue is held, so
	// it is waiting for the lock when Reload cancels its task.
	m.upQ.mu.Lock()
	close(release)
	time.Sleep(20 * time.Millisecond)
	reloaded := make(chan struct{})
	go func() {
		epoch.Store(1)
		m.Reload()
		close(reloaded)
	}()
	time.Sleep(20 * time.Millisecond)
	m.upQ.mu.Unlock()
	<-reloaded

	deadline := time.Now().Add(5 * time.Second)
	for m.Stats().Loaded != windowArea(1) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out, stats %+v", m.Stats())
		}
		m.ProcessPending()
		if m.NeedsRefresh() {
			m.RefreshPendingWork()
		}
		time.Sleep(time.Millisecond)
	}
	if n := stale.Load(); n != 0 {
		t.Errorf("%d payloads generated before Reload were placed", n)
	}
}
