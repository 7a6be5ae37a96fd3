package client

import (
	"context"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rzbill/pulse/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// grpcAddrFromEnv returns the gRPC server address from PULSE_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("PULSE_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// tokenFromEnv returns the bearer token used for authenticated calls.
func tokenFromEnv() string {
	return os.Getenv("PULSE_TOKEN")
}

// dialGRPCContext dials the Pulse gRPC endpoint with insecure transport for local/dev.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// httpTransport builds the realtime transport. An explicit token flag wins
// over PULSE_TOKEN.
func httpTransport(baseURL BaseURLFunc, token string) transports.RealtimeTransport {
	if token == "" {
		token = tokenFromEnv()
	}
	return transports.NewHTTPTransport(baseURL(), token)
}

func healthTransport() transports.HealthTransport {
	return transports.NewGrpcTransport(dialGRPCContext)
}
