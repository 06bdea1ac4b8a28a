package bootstrap

import (
	"rail-inspection-ai-api/internal/config"
	grpcserver "rail-inspection-ai-api/internal/interfaces/grpc/server"
	"rail-inspection-ai-api/internal/interfaces/http/handler"
	"rail-inspection-ai-api/internal/interfaces/http/middleware"
	"rail-inspection-ai-api/internal/interfaces/http/router"
)

// HealthDependencies 就绪检查依赖；Redis 与 Milvus 为必需，Postgres 未启用时标记 disabled
func HealthDependencies(infra *Infra) []handler.Dependency {
	deps := []handler.Dependency{
		{Name: "postgres", Required: true},
		{Name: "redis", Required: true},
		{Name: "milvus", Required: true},
	}
	if infra.Postgres != nil {
		deps[0].Checker = infra.Postgres
	}
	if infra.Redis != nil {
		deps[1].Checker = infra.Redis
	}
	if infra.Milvus != nil {
		deps[2].Checker = infra.Milvus
	}
	return deps
}

// NewHTTPRouter 组装处理器与路由
func NewHTTPRouter(cfg *config.Config, version string, infra *Infra, svc *Services) *router.Router {
	var publisher handler.JobPublisher
	if svc.Producer != nil && svc.Jobs != nil {
		publisher = svc.Producer
	}
	var invalidator handler.AnswerInvalidator
	if svc.Cache != nil {
		invalidator = svc.Cache
	}
	var limiter middleware.RateLimiter
	if svc.RateLimiter != nil {
		limiter = svc.RateLimiter
	}

	handlers := router.Handlers{
		Health:     handler.NewHealthHandler(version, HealthDependencies(infra)...),
		Chat:       handler.NewChatHandler(svc.Chat),
		Inspection: handler.NewInspectionHandler(svc.Inspection, publisher),
		Regulation: handler.NewRegulationHandler(svc.Regulations, invalidator),
		Report:     handler.NewReportHandler(svc.Documents, svc.Reports),
	}
	if svc.Jobs != nil {
		handlers.Job = handler.NewJobHandler(svc.Jobs, svc.Documents)
	}
	return router.New(cfg, handlers, limiter)
}

// GRPCCheckers gRPC 健康检查依赖，仅包含已启用的组件
func GRPCCheckers(infra *Infra) map[string]grpcserver.Checker {
	out := make(map[string]grpcserver.Checker)
	if infra.Postgres != nil {
		out["postgres"] = infra.Postgres
	}
	if infra.Redis != nil {
		out["redis"] = infra.Redis
	}
	if infra.Milvus != nil {
		out["milvus"] = infra.Milvus
	}
	return out
}
