package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/spooky-finn/go-cryptomarkets-view/config"
	"github.com/spooky-finn/go-cryptomarkets-view/helpers"
	"github.com/spooky-finn/go-cryptomarkets-view/usecase"
)

const (
	// watchBuffer is the per-client event backlog. Events beyond it are dropped for that client.
	watchBuffer         = 256
	gracefulStopTimeout = 5 * time.Second
)

type server struct {
	marketView        *usecase.MarketViewUseCase
	validationService *ValidationService
	logger            *zap.Logger
}

func NewServer(marketView *usecase.MarketViewUseCase, conf *ValidationServiceConfig, logger *zap.Logger) *server {
	return &server{
		marketView:        marketView,
		validationService: NewValidationService(conf),
		logger:            logger,
	}
}

// NewGRPCServer registers s on a fresh grpc.Server with request logging.
func NewGRPCServer(s *server) *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.loggingInterceptor),
	)
	RegisterMarketDataServiceServer(grpcServer, s)
	return grpcServer
}

// Serve listens on port and blocks until ctx is cancelled or the server fails.
func Serve(ctx context.Context, grpcServer *grpc.Server, port int, logger *zap.Logger) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		stopGracefully(grpcServer, gracefulStopTimeout)
	}()

	logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	return grpcServer.Serve(lis)
}

// stopGracefully waits for running calls up to timeout, then cuts open Watch streams.
func stopGracefully(grpcServer *grpc.Server, timeout time.Duration) {
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(timeout):
		grpcServer.Stop()
	}
}

func (s *server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("took", time.Since(start)),
		zap.String("code", status.Code(err).String()),
	}
	if config.DebugMode {
		fields = append(fields, zap.String("request", helpers.ToJsonString(req)))
	}

	if err != nil {
		s.logger.Warn("grpc request failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("grpc request", fields...)
	}
	return resp, err
}
