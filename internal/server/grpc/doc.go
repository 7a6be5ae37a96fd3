// Package grpcserver hosts the standard grpc.health.v1 service for Pulse.
// The "pulse.realtime" service reports SERVING only while storage is
// readable and the broker is Redis-backed.
//
// Example:
//
//	s := grpcserver.New(rt)
//	_ = s.ListenAndServe(ctx, ":50051")
package grpcserver
