package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"rail-inspection-ai-api/pkg/logger"
)

// Trace otelgin 追踪；探活请求不产生 span
func Trace(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			return !isInfraPath(r.URL.Path)
		}),
	)
}

// TraceContext 将 trace_id/span_id 写入日志上下文与响应头，并把请求 ID 记为 span 属性
func TraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		sc := span.SpanContext()
		if sc.IsValid() {
			traceID := sc.TraceID().String()
			spanID := sc.SpanID().String()
			c.Set("trace_id", traceID)
			c.Set("span_id", spanID)

			ctx := logger.WithContext(c.Request.Context(), logger.TraceIDKey, traceID)
			c.Request = c.Request.WithContext(logger.WithContext(ctx, logger.SpanIDKey, spanID))
			c.Header("X-Trace-ID", traceID)

			if rid := c.GetString("request_id"); rid != "" {
				span.SetAttributes(attribute.String("request.id", rid))
			}
		}

		c.Next()

		if op := OperatorID(c); op != "" && sc.IsValid() {
			span.SetAttributes(attribute.String("operator.id", op))
		}
	}
}
