package pebblestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = pebble.ErrNotFound

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every committed batch.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing entirely to Pebble.
	FsyncModeNever
)

// Options configures the store.
type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning. Nil uses Pebble defaults.
	PebbleOptions *pebble.Options
	// Metrics observes operation latency and size. Optional.
	Metrics MetricsHook
}

// Operation names passed to MetricsHook.
const (
	OpGet    = "get"
	OpCommit = "commit"
	OpScan   = "scan"
)

// MetricsHook observes store operations.
type MetricsHook interface {
	Observe(op string, elapsed time.Duration, bytes int)
}

// NoopMetrics is used when no hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) Observe(string, time.Duration, int) {}

// DB is a Pebble database with a fixed fsync policy.
type DB struct {
	inner     *pebble.DB
	writeSync bool
	metrics   MetricsHook
}

// Open creates or opens the database in opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	switch opts.Fsync {
	case FsyncModeAlways, FsyncModeNever:
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.DataDir, err)
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &DB{
		inner:     inner,
		writeSync: opts.Fsync == FsyncModeAlways,
		metrics:   metrics,
	}, nil
}

// Close closes the database. It is safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// Update runs fn against a fresh batch and commits it atomically. Nothing is
// written if fn returns an error.
func (db *DB) Update(fn func(b *pebble.Batch) error) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := fn(b); err != nil {
		return err
	}
	return db.commit(b)
}

func (db *DB) commit(b *pebble.Batch) error {
	start := time.Now()
	size := b.Len()
	sync := pebble.NoSync
	if db.writeSync {
		sync = pebble.Sync
	}
	err := b.Commit(sync)
	db.metrics.Observe(OpCommit, time.Since(start), size)
	return err
}

// Set writes a single key.
func (db *DB) Set(key, value []byte) error {
	return db.Update(func(b *pebble.Batch) error { return b.Set(key, value, nil) })
}

// Delete removes a single key.
func (db *DB) Delete(key []byte) error {
	return db.Update(func(b *pebble.Batch) error { return b.Delete(key, nil) })
}

// Get returns a copy of the value for key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.Observe(OpGet, time.Since(start), len(buf))
	return buf, nil
}

// ScanPrefix calls fn for each key starting with prefix, in key order. The
// slices are only valid during the call. A non-nil error from fn stops the
// scan and is returned.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	start := time.Now()
	iter, err := db.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	bytes := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		v, err := iter.ValueAndErr()
		if err != nil {
			_ = iter.Close()
			return err
		}
		bytes += len(v)
		if err := fn(iter.Key(), v); err != nil {
			_ = iter.Close()
			return err
		}
	}
	db.metrics.Observe(OpScan, time.Since(start), bytes)
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return err
	}
	return iter.Close()
}

// Check opens and closes an iterator to confirm the store is readable.
func (db *DB) Check() error {
	if db == nil || db.inner == nil {
		return errors.New("pebble: store not open")
	}
	iter, err := db.inner.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	iter.First()
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return err
	}
	return iter.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if there is none.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
