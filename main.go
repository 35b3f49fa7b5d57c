package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/spooky-finn/go-cryptomarkets-view/config"
	"github.com/spooky-finn/go-cryptomarkets-view/domain"
	"github.com/spooky-finn/go-cryptomarkets-view/infrastructure/logger"
	promclient "github.com/spooky-finn/go-cryptomarkets-view/infrastructure/prometheus"
	"github.com/spooky-finn/go-cryptomarkets-view/provider"
	"github.com/spooky-finn/go-cryptomarkets-view/rest"
	"github.com/spooky-finn/go-cryptomarkets-view/rpc"
	"github.com/spooky-finn/go-cryptomarkets-view/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %s\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %s\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	interval, err := domain.ParseInterval(cfg.Candle.Interval)
	if err != nil {
		return err
	}

	initial, err := domain.NewMarketSymbolFromString(cfg.Markets[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := promclient.NewRegistry()

	connManager := provider.NewConnectionManager(cfg, log)
	defer connManager.Close()

	marketView := usecase.NewMarketViewUseCase(connManager.SyncAPI(), connManager.StreamAPI(), usecase.MarketViewOptions{
		DepthLimit:    cfg.Book.DepthLimit,
		MergeInterval: cfg.Book.MergeInterval,
		Validator:     connManager.DepthUpdateValidator(),
		Interval:      interval,
		WindowSize:    cfg.Candle.Window,
	}, log.Named("market-view"))
	defer marketView.Close()

	if err := marketView.SelectInstrument(ctx, initial); err != nil {
		return err
	}

	grpcServer := rpc.NewGRPCServer(rpc.NewServer(
		marketView,
		&rpc.ValidationServiceConfig{AvailableMarkets: cfg.Markets},
		log.Named("grpc"),
	))

	httpServer := rest.New(marketView, cfg.Markets, registry, log.Named("http"))
	httpServer.RegisterFiberRoutes()

	errc := make(chan error, 2)
	grpcDone := make(chan struct{})
	go func() {
		defer close(grpcDone)
		if err := rpc.Serve(ctx, grpcServer, cfg.Server.GRPCPort, log); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errc <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.HttpAddr))
		if err := httpServer.Listen(cfg.Server.HttpAddr); err != nil {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errc:
	}

	stop()
	if serr := httpServer.Close(); serr != nil {
		log.Warn("http server shutdown", zap.Error(serr))
	}
	<-grpcDone

	return err
}
