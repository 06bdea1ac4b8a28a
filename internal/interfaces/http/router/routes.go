package router

import (
	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/interfaces/http/middleware"
)

// RegisterV1Routes 注册 v1 版本路由；写操作要求 operator 角色
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	operator := middleware.RequireOperator()

	// 问答
	if h.Chat != nil {
		v1.POST("/chat/ask", h.Chat.Ask)
		v1.GET("/reports/summary", h.Chat.Summary)
	}

	// 点检流水线
	if h.Inspection != nil {
		inspections := v1.Group("/inspections", operator)
		{
			inspections.POST("", h.Inspection.Run)
			inspections.POST("/async", h.Inspection.Submit)
		}
	}

	// 规程索引
	if h.Regulation != nil {
		regulations := v1.Group("/regulations")
		{
			regulations.GET("", h.Regulation.List)
			regulations.GET("/stats", h.Regulation.Stats)
			regulations.POST("", operator, h.Regulation.Ingest)
			regulations.DELETE("", operator, h.Regulation.Clear)
			regulations.DELETE("/:rid", operator, h.Regulation.Delete)
		}
	}

	// 点检报告
	if h.Report != nil {
		reports := v1.Group("/reports")
		{
			reports.GET("", h.Report.List)
			reports.GET("/index/stats", h.Report.IndexStats)
			reports.GET("/:did", h.Report.Get)
		}
	}

	// 任务
	if h.Job != nil {
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", h.Job.ListJobs)
			jobs.GET("/:jid", h.Job.GetJob)
			jobs.GET("/:jid/documents", h.Job.ListJobDocuments)
		}
	}
}
