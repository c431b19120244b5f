package workers

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthWorker exposes the standard grpc.health.v1.Health service so that
// orchestrators can probe the relay without speaking websocket.
type GRPCHealthWorker struct {
	address string
	health  *health.Server
	log     *slog.Logger
}

func NewGRPCHealthWorker(address string, log *slog.Logger) *GRPCHealthWorker {
	return &GRPCHealthWorker{address: address, health: health.NewServer(), log: log}
}

// Health returns the underlying status holder, to flip services to NOT_SERVING.
func (w *GRPCHealthWorker) Health() *health.Server {
	return w.health
}

func (w *GRPCHealthWorker) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", w.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", w.address, err)
	}

	s := grpc.NewServer()
	healthpb.RegisterHealthServer(s, w.health)
	w.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC health server", "address", listener.Addr().String(), "at", time.Now().UTC())
		if err := s.Serve(listener); err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return fmt.Errorf("gRPC health server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	w.health.Shutdown()
	s.GracefulStop()
	w.log.Info("gRPC health server stopped")
	return nil
}
