// Package main 异步点检任务执行器入口
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"rail-inspection-ai-api/internal/bootstrap"
	"rail-inspection-ai-api/internal/config"
	"rail-inspection-ai-api/internal/infrastructure/messaging"
	grpcserver "rail-inspection-ai-api/internal/interfaces/grpc/server"
	einoobs "rail-inspection-ai-api/internal/observability/eino"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    "inspection-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	einoobs.Init()

	infra, err := bootstrap.NewInfra(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize infrastructure", err)
	}
	defer infra.Close()
	if infra.Redis == nil || infra.Postgres == nil {
		logger.Fatal(ctx, "inspection-worker requires redis and postgres", fmt.Errorf("cache.redis.enabled and database.postgres.enabled must be true"))
	}

	svc, err := bootstrap.NewServices(ctx, cfg, infra)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize services", err)
	}
	defer svc.Close()

	streamCfg := cfg.Messaging.RedisStream
	consumer := messaging.NewConsumer(infra.Redis.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.StreamInspectionJobs,
		Group:         messaging.ConsumerGroupInspectionWorker,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  streamCfg.BlockTimeout,
		ClaimInterval: streamCfg.ClaimInterval,
		RetryLimit:    streamCfg.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    streamCfg.RetryBackoff.Initial,
			Max:        streamCfg.RetryBackoff.Max,
			Multiplier: streamCfg.RetryBackoff.Multiplier,
		},
	})
	consumer.RegisterHandler(messaging.TypeInspectionJob, newInspectionJobHandler(svc.Inspection, svc.Jobs))

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, streamCfg.DLQAlertThreshold)

	if cfg.Server.GRPC.Enabled {
		gs := grpcserver.New(&cfg.Server.GRPC, "inspection-worker", bootstrap.GRPCCheckers(infra))
		go func() {
			if err := gs.Run(ctx); err != nil {
				logger.Error(ctx, "grpc server error", err)
				stop()
			}
		}()
	}

	logger.Info(ctx, "inspection-worker started")
	<-ctx.Done()

	logger.Info(context.Background(), "inspection-worker shutting down")
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
