package chunkcache

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"terrain-stream/internal/world"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	seed INTEGER NOT NULL,
	x    INTEGER NOT NULL,
	y    INTEGER NOT NULL,
	data BLOB    NOT NULL,
	PRIMARY KEY (seed, x, y)
);`

type record struct {
	Quads   int
	Heights []float32
}

// Cache stores generated height lattices in SQLite, zstd-compressed.
// It is safe for concurrent use.
type Cache struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("chunkcache: empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("chunkcache: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chunkcache: open: %w", err)
	}
	// One writer at a time; workers queue on the pool instead of on SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("chunkcache: schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &Cache{db: db, enc: enc, dec: dec}, nil
}

// Close releases the database and codecs.
func (c *Cache) Close() error {
	c.dec.Close()
	if err := c.enc.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

// Get returns the cached lattice for the chunk. ok is false on a miss or
// when the stored lattice has a different resolution.
func (c *Cache) Get(ctx context.Context, seed int64, coord world.GridCoord, quads int) (heights []float32, ok bool, err error) {
	var blob []byte
	row := c.db.QueryRowContext(ctx, `SELECT data FROM chunks WHERE seed=? AND x=? AND y=?`, seed, coord.X, coord.Y)
	if err := row.Scan(&blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("chunkcache: get %v: %w", coord, err)
	}

	raw, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, false, fmt.Errorf("chunkcache: decompress %v: %w", coord, err)
	}
	var rec record
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, false, fmt.Errorf("chunkcache: gob decode %v: %w", coord, err)
	}
	if rec.Quads != quads || len(rec.Heights) != (quads+1)*(quads+1) {
		return nil, false, nil
	}
	return rec.Heights, true, nil
}

// Put stores the lattice for the chunk, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, seed int64, coord world.GridCoord, quads int, heights []float32) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(record{Quads: quads, Heights: heights}); err != nil {
		return fmt.Errorf("chunkcache: gob encode %v: %w", coord, err)
	}
	blob := c.enc.EncodeAll(buf.Bytes(), nil)
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks(seed, x, y, data) VALUES(?, ?, ?, ?)`,
		seed, coord.X, coord.Y, blob)
	if err != nil {
		return fmt.Errorf("chunkcache: put %v: %w", coord, err)
	}
	return nil
}

// Len returns the number of cached chunks for seed.
func (c *Cache) Len(ctx context.Context, seed int64) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE seed=?`, seed).Scan(&n)
	return n, err
}
