package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/orderdesk/internal/health"
)

const grpcHealthSyncInterval = 5 * time.Second

// startMetricsServer отдаёт /metrics из registry и health-пробы.
func startMetricsServer(ctx context.Context, lis net.Listener, registry *prometheus.Registry, healthHandler *healthcheck.Handler, logger *log.Entry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: apiReadHeaderTimeout}
	go func() {
		addr := lis.Addr().String()
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 5*time.Second, logger)
	}()

	return srv
}

// grpcHealthServer - стандартный grpc.health.v1 для оркестраторов,
// статус которого следует за /readyz.
type grpcHealthServer struct {
	server *grpc.Server
	health *health.Server
	cancel context.CancelFunc
	done   chan struct{}
}

func startGRPCHealthServer(ctx context.Context, lis net.Listener, registry *prometheus.Registry, healthHandler *healthcheck.Handler, logger *log.Entry) *grpcHealthServer {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := registry.Register(grpcMetrics); err != nil {
		logger.WithError(err).Warn("failed to register grpc metrics")
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	ctx, cancel := context.WithCancel(ctx)
	g := &grpcHealthServer{server: server, health: healthServer, cancel: cancel, done: make(chan struct{})}
	g.sync(ctx, healthHandler)

	go func() {
		logger.Infof("gRPC health слушает %s", lis.Addr())
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.WithError(err).Warn("grpc health server failed")
		}
	}()

	go func() {
		defer close(g.done)
		ticker := time.NewTicker(grpcHealthSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.sync(ctx, healthHandler)
			}
		}
	}()

	return g
}

func (g *grpcHealthServer) sync(ctx context.Context, healthHandler *healthcheck.Handler) {
	status := healthpb.HealthCheckResponse_SERVING
	if healthHandler.Evaluate(ctx).Status == healthcheck.StatusUnhealthy {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
}

// stop переводит health в NOT_SERVING и останавливает сервер, не дольше timeout.
func (g *grpcHealthServer) stop(timeout time.Duration, logger *log.Entry) {
	if g == nil {
		return
	}
	g.cancel()
	<-g.done
	g.health.Shutdown()

	stoppedCh := make(chan struct{})
	go func() {
		g.server.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		g.server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
