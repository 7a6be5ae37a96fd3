package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rzbill/pulse/internal/runtime"
)

// ServiceName is the health service name clients query.
const ServiceName = "pulse.realtime"

const watchInterval = time.Second

// healthSvc derives status on every call: SERVING needs readable storage and
// a broker that reaches other processes.
type healthSvc struct {
	healthpb.UnimplementedHealthServer
	rt       *runtime.Runtime
	interval time.Duration
}

func (h *healthSvc) status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if err := h.rt.CheckHealth(ctx); err != nil {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	if !h.rt.Broker().Ready() {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

func known(service string) bool {
	return service == "" || service == ServiceName
}

func (h *healthSvc) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if !known(req.GetService()) {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	return &healthpb.HealthCheckResponse{Status: h.status(ctx)}, nil
}

// Watch sends the current status, then every change until the stream ends.
func (h *healthSvc) Watch(req *healthpb.HealthCheckRequest, stream healthpb.Health_WatchServer) error {
	ctx := stream.Context()
	if !known(req.GetService()) {
		return stream.Send(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVICE_UNKNOWN})
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_UNKNOWN
	for {
		if cur := h.status(ctx); cur != last {
			if err := stream.Send(&healthpb.HealthCheckResponse{Status: cur}); err != nil {
				return err
			}
			last = cur
		}
		select {
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		case <-ticker.C:
		}
	}
}
