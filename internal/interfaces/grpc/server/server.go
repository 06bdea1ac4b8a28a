// Package server 提供 gRPC 服务端，仅注册标准健康检查服务供编排系统探测
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"rail-inspection-ai-api/internal/config"
	"rail-inspection-ai-api/pkg/logger"
)

// Checker 依赖健康检查
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Server gRPC 服务端
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	addr     string
	service  string
	checkers map[string]Checker
	interval time.Duration
}

// New 创建服务端；service 为健康检查中上报的服务名
func New(cfg *config.GRPCServerConfig, service string, checkers map[string]Checker) *Server {
	opts := []grpc.ServerOption{}
	if cfg.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize))
	}
	if cfg.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(cfg.MaxSendMsgSize))
	}
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	return &Server{
		grpc:     s,
		health:   hs,
		addr:     cfg.Addr(),
		service:  service,
		checkers: checkers,
		interval: 10 * time.Second,
	}
}

// Health 底层健康检查服务
func (s *Server) Health() *health.Server {
	return s.health
}

// CheckNow 执行一次依赖检查并更新服务状态；任一依赖失败即 NOT_SERVING
func (s *Server) CheckNow(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, c := range s.checkers {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.HealthCheck(cctx)
		cancel()
		if err != nil {
			logger.Warn(ctx, "dependency unhealthy", "dependency", name, "error", err.Error())
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus(s.service, status)
	s.health.SetServingStatus("", status)
	return status
}

// Run 启动服务并周期性探测依赖，ctx 取消时优雅停止
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.CheckNow(ctx)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CheckNow(ctx)
			}
		}
	}()

	logger.Info(ctx, "grpc server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info(ctx, "grpc server shutting down")
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return fmt.Errorf("grpc server error: %w", err)
	}
}
