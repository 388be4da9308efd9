// Package grpc exposes the attendance services over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/rollkeeper/internal/logging"
	"github.com/dmitrijs2005/rollkeeper/internal/server/services"
	"google.golang.org/grpc"
)

type GRPCServer struct {
	address    string
	sessions   *services.SessionService
	ledger     *services.LedgerService
	imports    *services.ImportService
	reconciler *services.Reconciler
	logger     logging.Logger
	jwtSecret  []byte
}

// Services groups the collaborators the gRPC handlers delegate to.
type Services struct {
	Sessions   *services.SessionService
	Ledger     *services.LedgerService
	Imports    *services.ImportService
	Reconciler *services.Reconciler
}

func NewGRPCServer(a string, l logging.Logger, svc Services, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:    a,
		logger:     l.With("module", "grpc_server"),
		sessions:   svc.Sessions,
		ledger:     svc.Ledger,
		imports:    svc.Imports,
		reconciler: svc.Reconciler,
		jwtSecret:  []byte(secretKey),
	}
}

// newServer creates a grpc.Server with the auth interceptor and the
// Attendance service registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv.RegisterService(&ServiceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
