package chunkcache

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"terrain-stream/internal/terrain"
	"terrain-stream/internal/world"
)

// Source serves height lattices from the cache and fills it from an
// underlying source on a miss. Cache errors never fail generation.
type Source struct {
	src   terrain.Source
	cache *Cache
	seed  int64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// Wrap returns a caching terrain.Source keyed by seed.
func Wrap(src terrain.Source, cache *Cache, seed int64) *Source {
	return &Source{src: src, cache: cache, seed: seed}
}

func (s *Source) Quads() int { return s.src.Quads() }

func (s *Source) Heights(ctx context.Context, c world.GridCoord) ([]float32, error) {
	q := s.src.Quads()
	h, ok, err := s.cache.Get(ctx, s.seed, c, q)
	switch {
	case err != nil && ctx.Err() == nil:
		log.Printf("chunkcache: %v", err)
	case ok:
		s.hits.Add(1)
		return h, nil
	}
	s.misses.Add(1)

	h, err = s.src.Heights(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, s.seed, c, q, h); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("chunkcache: %v", err)
	}
	return h, nil
}

// Hits returns the number of lattices served from the cache.
func (s *Source) Hits() uint64 { return s.hits.Load() }

// Misses returns the number of lattices generated by the wrapped source.
func (s *Source) Misses() uint64 { return s.misses.Load() }
