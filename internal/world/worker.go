package world

import (
	"context"
	"errors"
	"log"
)

// worker generates queued coordinates until the queue is empty.
func (m *ChunkManager[P]) worker() {
	defer m.wg.Done()
	for {
		c, ctx, cancel, ok := m.claim()
		if !ok {
			return
		}

		payload, err := m.gen.Generate(ctx, c)

		m.upQ.mu.Lock()
		m.loading.mu.Lock()
		// Cancellation happens under loading.mu, so this check cannot miss
		// a Reload or recenter that ran after Generate returned.
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		if err == nil {
			m.upQ.push(c, payload)
		}
		delete(m.loading.tasks, c)
		m.loading.mu.Unlock()
		m.upQ.mu.Unlock()
		cancel()

		switch {
		case err == nil:
			m.generated.Add(1)
		case errors.Is(err, context.Canceled):
			m.dirty.Store(true)
		default:
			if errors.Is(err, context.DeadlineExceeded) {
				log.Printf("world: generate chunk %v: timed out after %v", c, m.opts.TaskTimeout)
			} else {
				log.Printf("world: generate chunk %v: %v", c, err)
			}
			m.failed.Add(1)
			m.dirty.Store(true)
		}
	}
}

// claim pops the nearest queued coordinate and records it as loading in
// one step, so reconciliation never sees it in neither set.
func (m *ChunkManager[P]) claim() (GridCoord, context.Context, context.CancelFunc, bool) {
	m.genQ.mu.Lock()
	defer m.genQ.mu.Unlock()

	if m.ctx.Err() != nil {
		m.running--
		return GridCoord{}, nil, nil, false
	}
	c, ok := m.genQ.popTail()
	if !ok {
		m.running--
		return GridCoord{}, nil, nil, false
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if m.opts.TaskTimeout > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, m.opts.TaskTimeout)
	} else {
		ctx, cancel = context.WithCancel(m.ctx)
	}

	m.loading.mu.Lock()
	m.loading.tasks[c] = cancel
	m.loading.mu.Unlock()
	return c, ctx, cancel, true
}
