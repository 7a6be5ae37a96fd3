// Package client provides the `pulse` command-line client.
//
// The HTTP base URL comes from the embedding application through a
// BaseURLFunc (the standalone binary reads PULSE_HTTP, default
// http://127.0.0.1:8080). The gRPC address is read from PULSE_GRPC
// (default 127.0.0.1:50051) and the bearer token from PULSE_TOKEN.
//
// Usage
//
//	pulse member grant --user u1 --org org_1 --role ADMIN
//	export PULSE_TOKEN=$(pulse member token --user u1 --org org_1)
//
//	pulse subscribe --filter 'topic == "clients"'
//	pulse publish --topic clients --entity c_42
//
//	pulse status
//	pulse health
//	pulse config env
//
// Notes
//
//   - member commands open the store directly. With the local store the
//     server must be stopped; with --database-url they run alongside it.
//   - subscribe prints one JSON object per frame; heartbeats are hidden
//     unless --pings is set.
package client
