// Package pebblestore wraps Pebble as the local key/value store behind the
// membership and token records. It adds an fsync policy, prefix scans,
// atomic multi-key updates and an observation hook for latency metrics.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	    Metrics: pebblestore.PrometheusMetrics{},
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	_ = db.Update(func(b *pebble.Batch) error {
//	    _ = b.Set([]byte("member/u1/o1"), []byte(`{"role":"admin"}`), nil)
//	    return b.Set([]byte("org/o1/u1"), nil, nil)
//	})
//	_ = db.ScanPrefix([]byte("member/u1/"), func(k, v []byte) error { return nil })
package pebblestore
