package world

import (
	"context"
	"sync"
)

// Lock order for operations spanning queues: generation, upload, loading.

// generationQueue holds coordinates waiting for a worker. The slice is kept
// sorted farthest-first so workers pop the nearest from the tail.
type generationQueue struct {
	mu     sync.Mutex
	coords []GridCoord
	set    map[GridCoord]struct{}
}

func (q *generationQueue) has(c GridCoord) bool {
	_, ok := q.set[c]
	return ok
}

func (q *generationQueue) push(c GridCoord) {
	q.coords = append(q.coords, c)
	q.set[c] = struct{}{}
}

func (q *generationQueue) popTail() (GridCoord, bool) {
	n := len(q.coords)
	if n == 0 {
		return GridCoord{}, false
	}
	c := q.coords[n-1]
	q.coords = q.coords[:n-1]
	delete(q.set, c)
	return c, true
}

// retain drops every coordinate for which keep returns false.
func (q *generationQueue) retain(keep func(GridCoord) bool) {
	kept := q.coords[:0]
	for _, c := range q.coords {
		if keep(c) {
			kept = append(kept, c)
		} else {
			delete(q.set, c)
		}
	}
	q.coords = kept
}

func (q *generationQueue) reset() {
	q.coords = q.coords[:0]
	clear(q.set)
}

type uploadEntry[P any] struct {
	coord   GridCoord
	payload P
}

// uploadQueue holds generated payloads waiting for the main thread.
type uploadQueue[P any] struct {
	mu      sync.Mutex
	entries []uploadEntry[P]
	set     map[GridCoord]struct{}
}

func (q *uploadQueue[P]) has(c GridCoord) bool {
	_, ok := q.set[c]
	return ok
}

func (q *uploadQueue[P]) push(c GridCoord, payload P) {
	q.entries = append(q.entries, uploadEntry[P]{coord: c, payload: payload})
	q.set[c] = struct{}{}
}

// popNearest removes the entry closest to center by Euclidean distance.
func (q *uploadQueue[P]) popNearest(center GridCoord) (uploadEntry[P], bool) {
	if len(q.entries) == 0 {
		return uploadEntry[P]{}, false
	}
	best := 0
	bestDist := q.entries[0].coord.DistSq(center)
	for i := 1; i < len(q.entries); i++ {
		if d := q.entries[i].coord.DistSq(center); d < bestDist {
			best, bestDist = i, d
		}
	}
	e := q.entries[best]
	last := len(q.entries) - 1
	q.entries[best] = q.entries[last]
	q.entries[last] = uploadEntry[P]{}
	q.entries = q.entries[:last]
	delete(q.set, e.coord)
	return e, true
}

func (q *uploadQueue[P]) reset() {
	clear(q.entries)
	q.entries = q.entries[:0]
	clear(q.set)
}

// loadingSet tracks coordinates a worker is generating, with the cancel
// function of each task.
type loadingSet struct {
	mu    sync.Mutex
	tasks map[GridCoord]context.CancelFunc
}

func (s *loadingSet) has(c GridCoord) bool {
	_, ok := s.tasks[c]
	return ok
}

// cancelWhere cancels every in-flight task whose coordinate matches and
// returns how many were cancelled. Entries stay until their worker finishes.
func (s *loadingSet) cancelWhere(match func(GridCoord) bool) int {
	n := 0
	for c, cancel := range s.tasks {
		if match(c) {
			cancel()
			n++
		}
	}
	return n
}
