package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reported for the widget.
const HealthService = "outdial.Widget"

// HealthServer exposes the standard gRPC health protocol so orchestrators
// can probe the widget without speaking HTTP.
type HealthServer struct {
	addr       string
	grpcServer *grpc.Server
	health     *health.Server
}

// NewHealthServer creates a gRPC health server on bind:port.
// The widget service starts as NOT_SERVING until SetServing(true).
func NewHealthServer(bind string, port int) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	return &HealthServer{
		addr:       fmt.Sprintf("%s:%d", bind, port),
		grpcServer: gs,
		health:     hs,
	}
}

// Start listens and serves in the background.
func (h *HealthServer) Start() error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", h.addr, err)
	}
	return h.Serve(listener)
}

// Serve serves on an existing listener in the background.
func (h *HealthServer) Serve(listener net.Listener) error {
	slog.Info("[Health] gRPC health server listening", "address", listener.Addr().String())
	go func() {
		if err := h.grpcServer.Serve(listener); err != nil {
			slog.Error("[Health] gRPC server error", "error", err)
		}
	}()
	return nil
}

// SetServing reports the widget as serving or not.
func (h *HealthServer) SetServing(ok bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(HealthService, status)
	h.health.SetServingStatus("", status)
}

// Stop marks every service NOT_SERVING and drains the gRPC server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpcServer.GracefulStop()
}
