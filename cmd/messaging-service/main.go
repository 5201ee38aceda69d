package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	appmessaging "rentme-realtime/internal/app/messaging"
	"rentme-realtime/internal/config"
	"rentme-realtime/internal/infra/obs"
	"rentme-realtime/internal/infra/storage/memory"
	"rentme-realtime/internal/infra/storage/scylla"
	pb "rentme-realtime/internal/proto/messagingv1"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		obs.NewLogger("dev").Error("env file load failed", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadMessaging()
	if err != nil {
		obs.NewLogger("dev").Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	var store appmessaging.Store
	switch cfg.StoreMode {
	case "memory":
		store = memory.NewMessagingStore()
		logger.Warn("using in-memory message store; data is lost on restart")
	default:
		session, err := scylla.NewSession(ctx, cfg, logger)
		if err != nil {
			logger.Error("scylla init failed", "error", err)
			os.Exit(1)
		}
		defer session.Close()
		store = scylla.NewStore(session, logger)
	}

	grpcServer := grpc.NewServer()
	pb.RegisterMessagingServiceServer(grpcServer, &appmessaging.Server{
		Store:  store,
		Logger: logger,
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen", "error", err, "addr", cfg.GRPCAddr)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down grpc server")
		grpcServer.GracefulStop()
	}()

	logger.Info("messaging-service starting", "addr", cfg.GRPCAddr, "env", cfg.Env, "store", cfg.StoreMode)
	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("grpc server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("messaging-service stopped")
}
