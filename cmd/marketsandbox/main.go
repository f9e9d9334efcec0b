// Command marketsandbox serves an in-memory bank over JSON-RPC and an in-memory
// marketplace over gRPC, for running marketclient against real transports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_client/internal/bootstrap"
	"market_client/internal/config"
	"market_client/internal/core"
	"market_client/internal/mock"
	"market_client/internal/transport/grpcmarket"
	"market_client/internal/transport/rpcbank"
	"market_client/pkg/logging"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

func main() {
	bankAddr := flag.String("bank-addr", "127.0.0.1:1234", "JSON-RPC bank listen address")
	bankToken := flag.String("bank-token", os.Getenv("SANDBOX_BANK_TOKEN"), "bearer token required by the bank")
	marketAddr := flag.String("market-addr", "127.0.0.1:50051", "gRPC marketplace listen address")
	marketName := flag.String("market-name", "sandbox", "marketplace name reported to clients")
	apiKey := flag.String("api-key", os.Getenv("SANDBOX_API_KEY"), "API key required by the marketplace")
	tlsCert := flag.String("tls-cert", "", "TLS certificate file for the marketplace")
	tlsKey := flag.String("tls-key", "", "TLS key file for the marketplace")
	autoPurchase := flag.Bool("auto-purchase", true, "buy newly listed items for matching wishes")
	seed := flag.Bool("seed", true, "list the house catalogue on startup")
	logLevel := flag.String("log-level", "INFO", "log level")
	flag.Parse()

	zl, err := logging.New(logging.Options{Level: *logLevel, DisableOTel: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger := zl.WithField("service", "market_sandbox")

	bank := mock.NewBank()
	market := mock.NewMarketplace(*marketName, bank, *autoPurchase)
	if *seed {
		if err := mock.OpenHouse(context.Background(), bank, market, mock.Catalogue()); err != nil {
			logger.Fatal("Failed to seed the marketplace", "error", err)
		}
	}

	var serverOpts []grpc.ServerOption
	if *tlsCert != "" {
		creds, err := credentials.NewServerTLSFromFile(*tlsCert, *tlsKey)
		if err != nil {
			logger.Fatal("Failed to load TLS credentials", "error", err)
		}
		serverOpts = append(serverOpts, grpc.Creds(creds))
	}
	if *apiKey != "" {
		serverOpts = append(serverOpts, grpc.UnaryInterceptor(grpcmarket.APIKeyInterceptor(*apiKey, logger)))
	}

	gs := grpc.NewServer(serverOpts...)
	marketServer := grpcmarket.NewServer(market, func(ctx context.Context, owner string) (core.IAccount, error) {
		return bank.GetAccount(ctx, owner)
	}, logger)
	marketServer.RegisterOn(gs)

	app := &bootstrap.App{Cfg: config.DefaultConfig(), Logger: logger}

	grpcRunner := bootstrap.RunnerFunc(func(ctx context.Context) error {
		lis, err := net.Listen("tcp", *marketAddr)
		if err != nil {
			return fmt.Errorf("marketplace listener: %w", err)
		}
		logger.Info("Marketplace listening", "addr", lis.Addr().String(), "name", *marketName)

		errCh := make(chan error, 1)
		go func() { errCh <- gs.Serve(lis) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			gs.GracefulStop()
			marketServer.Close()
			return nil
		}
	})

	bankRunner := bootstrap.RunnerFunc(func(ctx context.Context) error {
		srv := &http.Server{
			Addr:              *bankAddr,
			Handler:           rpcbank.NewRouter(bank, *bankToken, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("Bank listening", "addr", *bankAddr, "path", "/rpc/v0")

		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, grpcRunner, bankRunner); err != nil {
		os.Exit(1)
	}
}
