// Package stream runs live invalidation sessions for connected clients.
//
// An Endpoint admits a request in a fixed order: the caller must be
// authenticated (401), be a member of the requested organization (403), the
// broker must reach other processes (503), the optional filter must compile
// (400) and the connection limiter must grant a slot (429). An admitted
// Session registers with the broker and is then driven by Run, which owns the
// transport writer:
//
//	sess, err := ep.Admit(ctx, stream.Request{...})
//	if err != nil { /* write the *AdmissionError status */ }
//	defer sess.Close()
//	_ = sess.Run(ctx, sink)
//
// Broker callbacks never block: events are queued on a bounded per-session
// channel and dropped when it is full. Nothing is written once ctx is done.
// Close unsubscribes, stops the heartbeat and releases the limiter slot,
// exactly once, whichever way the session ends.
package stream
