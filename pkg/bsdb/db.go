// Package bsdb is the thin façade wiring pkg/pagecache, pkg/recordstore
// and pkg/btree into one database handle (spec.md 6.2). It owns no
// algorithm of its own: every call sequences the three layers and
// translates their errors into the programmatic surface a caller sees.
package bsdb

import (
	"github.com/nainya/bsdb/common"
	"github.com/nainya/bsdb/internal/config"
	"github.com/nainya/bsdb/internal/logger"
	"github.com/nainya/bsdb/internal/metrics"
	"github.com/nainya/bsdb/pkg/btree"
	"github.com/nainya/bsdb/pkg/pagecache"
	"github.com/nainya/bsdb/pkg/recordstore"
)

// DB is a single open bsdb file: one page cache, one record store, one
// index tree. Not safe for concurrent use (spec.md 5, "Shared mutability").
type DB struct {
	cache *pagecache.Cache
	store *recordstore.Store
	tree  *btree.Tree

	cfg    *config.Config
	log    *logger.Logger
	met    *metrics.Metrics
	closed bool
}

// Open opens path, creating it if absent, and wires the three layers
// together. A nil cfg uses config.Default().
func Open(path string, cfg *config.Config) (*DB, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.Normalize()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	met := metrics.New()

	cache, err := pagecache.Open(path, pagecache.Options{
		CacheBytes: cfg.CacheBytes,
		ReadOnly:   cfg.ReadOnly,
		Logger:     log,
		Metrics:    met,
	})
	if err != nil {
		return nil, err
	}

	store, err := recordstore.Open(cache, recordstore.Options{
		ReadOnly:        cfg.ReadOnly,
		FreeLookupDepth: cfg.FreeLookupDepth,
		Logger:          log,
		Metrics:         met,
	})
	if err != nil {
		cache.Close()
		return nil, err
	}

	tree, err := btree.Open(store, btree.Options{
		Order:   cfg.TreeOrder,
		Logger:  log,
		Metrics: met,
	})
	if err != nil {
		cache.Close()
		return nil, err
	}

	return &DB{cache: cache, store: store, tree: tree, cfg: cfg, log: log, met: met}, nil
}

// Close flushes (unless read-only) and releases the database. Idempotent.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	return db.cache.Close()
}

// Size returns the number of key/value entries in the database.
func (db *DB) Size() uint64 {
	return db.tree.Size()
}

// Contains reports whether key is present.
func (db *DB) Contains(key uint64) (bool, error) {
	if db.closed {
		return false, common.ErrClosed
	}
	_, found, err := db.tree.Search(key)
	return found, err
}

// Insert adds (key, value); fails if key is already present.
func (db *DB) Insert(key uint64, value string) error {
	if db.closed {
		return common.ErrClosed
	}
	return db.tree.Insert(key, value)
}

// InsertAuto adds value under the next auto-assigned key and returns it.
func (db *DB) InsertAuto(value string) (uint64, error) {
	if db.closed {
		return 0, common.ErrClosed
	}
	return db.tree.InsertAuto(value)
}

// Get returns the value for key, or found=false if absent.
func (db *DB) Get(key uint64) (value string, found bool, err error) {
	if db.closed {
		return "", false, common.ErrClosed
	}
	return db.tree.Search(key)
}

// Update overwrites the value for an existing key; fails if absent.
func (db *DB) Update(key uint64, value string) error {
	if db.closed {
		return common.ErrClosed
	}
	return db.tree.Update(key, value)
}

// Erase removes key; fails if absent.
func (db *DB) Erase(key uint64) error {
	if db.closed {
		return common.ErrClosed
	}
	return db.tree.Erase(key)
}

// First anchors the cursor at the minimum key.
func (db *DB) First() (key uint64, value string, found bool, err error) {
	if db.closed {
		return 0, "", false, common.ErrClosed
	}
	return db.tree.First()
}

// Last anchors the cursor at the maximum key.
func (db *DB) Last() (key uint64, value string, found bool, err error) {
	if db.closed {
		return 0, "", false, common.ErrClosed
	}
	return db.tree.Last()
}

// Next advances the cursor.
func (db *DB) Next() (key uint64, value string, found bool, err error) {
	if db.closed {
		return 0, "", false, common.ErrClosed
	}
	return db.tree.Next()
}

// Previous retreats the cursor.
func (db *DB) Previous() (key uint64, value string, found bool, err error) {
	if db.closed {
		return 0, "", false, common.ErrClosed
	}
	return db.tree.Previous()
}

// Flush persists all dirty pages through to the backing file.
func (db *DB) Flush() error {
	if db.closed {
		return common.ErrClosed
	}
	return db.tree.Flush()
}

// Stats returns one page cache counter (spec.md 6.2 "stats(kind)").
func (db *DB) Stats(kind pagecache.StatKind) uint64 {
	return db.cache.Stats(kind)
}

// HitRate returns the page cache's running hit rate.
func (db *DB) HitRate() float64 {
	return db.cache.HitRate()
}

// Metrics exposes the database's private Prometheus registry so a
// caller can serve /metrics for this handle.
func (db *DB) Metrics() *metrics.Metrics {
	return db.met
}
