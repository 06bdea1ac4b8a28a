// Package main 点检报告 HTTP API 服务入口
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rail-inspection-ai-api/internal/bootstrap"
	"rail-inspection-ai-api/internal/config"
	grpcserver "rail-inspection-ai-api/internal/interfaces/grpc/server"
	einoobs "rail-inspection-ai-api/internal/observability/eino"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting inspection-api",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	// 初始化追踪
	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error(ctx, "failed to shutdown tracer", err)
		}
	}()

	// 初始化 Eino 全局 callbacks（指标/追踪）
	einoobs.Init()

	infra, err := bootstrap.NewInfra(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize infrastructure", err)
	}
	defer infra.Close()

	svc, err := bootstrap.NewServices(ctx, cfg, infra)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize services", err)
	}
	defer svc.Close()

	r := bootstrap.NewHTTPRouter(cfg, Version, infra, svc)

	// 创建 HTTP 服务器
	addr := cfg.Server.HTTP.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "http server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server error", err)
			stop()
		}
	}()

	if cfg.Server.GRPC.Enabled {
		gs := grpcserver.New(&cfg.Server.GRPC, cfg.App.Name, bootstrap.GRPCCheckers(infra))
		go func() {
			if err := gs.Run(ctx); err != nil {
				logger.Error(ctx, "grpc server error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down server...")

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server forced to shutdown", err)
	}

	logger.Info(shutdownCtx, "server exited")
}
