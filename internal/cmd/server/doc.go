// Package serverrun exposes the Run entrypoint used by the CLI to start the
// Pulse runtime with its HTTP gateway and gRPC health server.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()}
//	_ = serverrun.Run(ctx, opts)
package serverrun
