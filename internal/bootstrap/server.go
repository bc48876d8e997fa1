package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	_ "github.com/Domenick1991/airline-backoffice/api/docs"
	"github.com/Domenick1991/airline-backoffice/config"
)

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	grpcLis    net.Listener
	httpLis    net.Listener
	conn       *grpc.ClientConn
	health     *HealthReporter
	cfg        *config.Config
	logger     *zap.Logger
}

// New binds both listeners and wires the HTTP side: /healthz through the
// grpc-gateway health endpoint, /docs/ to the swagger UI and everything else
// to handler.
func New(cfg *config.Config, handler http.Handler, health *HealthReporter, logger *zap.Logger) (*Servers, error) {
	grpcLis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return nil, fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTP.Address)
	if err != nil {
		_ = grpcLis.Close()
		return nil, fmt.Errorf("listen HTTP %s: %w", cfg.HTTP.Address, err)
	}

	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, health.Server())

	conn, err := grpc.NewClient(grpcLis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		_ = grpcLis.Close()
		_ = httpLis.Close()
		return nil, fmt.Errorf("dial gRPC health: %w", err)
	}

	gwmux := runtime.NewServeMux(runtime.WithHealthzEndpoint(healthpb.NewHealthClient(conn)))

	mux := http.NewServeMux()
	mux.Handle("/healthz", gwmux)
	mux.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))
	mux.Handle("/", handler)

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{Handler: mux},
		grpcLis:    grpcLis,
		httpLis:    httpLis,
		conn:       conn,
		health:     health,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

func (s *Servers) HTTPAddr() string {
	return s.httpLis.Addr().String()
}

func (s *Servers) GRPCAddr() string {
	return s.grpcLis.Addr().String()
}

// Serve blocks until ctx is canceled or a server fails, then shuts both
// servers down within cfg.HTTP.ShutdownTimeout.
func (s *Servers) Serve(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() { errCh <- s.grpcServer.Serve(s.grpcLis) }()
	go func() { errCh <- s.httpServer.Serve(s.httpLis) }()

	s.logger.Info("servers started",
		zap.String("http", s.HTTPAddr()),
		zap.String("grpc", s.GRPCAddr()),
	)

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	return errors.Join(serveErr, s.shutdown())
}

func (s *Servers) shutdown() error {
	s.health.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	s.grpcServer.GracefulStop()
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close gRPC health client: %w", err))
	}
	s.logger.Info("servers stopped")
	return errors.Join(errs...)
}

// Run is New followed by Serve.
func Run(ctx context.Context, cfg *config.Config, handler http.Handler, health *HealthReporter, logger *zap.Logger) error {
	s, err := New(cfg, handler, health, logger)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}
