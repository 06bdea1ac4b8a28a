package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"rail-inspection-ai-api/internal/domain/repository"
)

// BindPage 读取 ?page=&page_size=；无法解析的值按缺省处理
func BindPage(c *gin.Context) repository.Pagination {
	return repository.NewPagination(queryInt(c, "page"), queryInt(c, "page_size"))
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// 路径参数
func BindJobID(c *gin.Context) string        { return c.Param("jid") }
func BindDocumentID(c *gin.Context) string   { return c.Param("did") }
func BindRegulationID(c *gin.Context) string { return c.Param("rid") }
