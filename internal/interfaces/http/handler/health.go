// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const readyTimeout = 2 * time.Second

// 依赖检查状态
const (
	depOK       = "ok"
	depDisabled = "disabled"
	depDegraded = "degraded"
	depDown     = "error"
)

// HealthChecker 依赖健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependency 就绪检查中的一个依赖。Checker 为 nil 表示未启用；
// Required 依赖失败时 /ready 返回 503，其余依赖失败只标记 degraded。
type Dependency struct {
	Name     string
	Checker  HealthChecker
	Required bool
}

// HealthHandler 存活与就绪探针
type HealthHandler struct {
	version string
	deps    []Dependency
}

func NewHealthHandler(version string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{version: version, deps: deps}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type depStatus struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

type readinessResponse struct {
	Status string                `json:"status"`
	Checks map[string]*depStatus `json:"checks,omitempty"`
}

// Health 健康检查
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: depOK, Version: h.version})
}

// Ready 并发探测全部依赖
// @Summary 就绪检查
// @Description Postgres、Redis、Milvus、对象存储等依赖的连通性
// @Tags System
// @Produce json
// @Success 200 {object} readinessResponse
// @Failure 503 {object} readinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		checks = make(map[string]*depStatus, len(h.deps))
		ready  = true
	)
	var g errgroup.Group
	for _, dep := range h.deps {
		g.Go(func() error {
			st, ok := checkDependency(ctx, dep)
			mu.Lock()
			checks[dep.Name] = st
			ready = ready && ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	resp := readinessResponse{Status: depOK, Checks: checks}
	status := http.StatusOK
	if !ready {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// checkDependency 第二个返回值为 false 表示必需依赖不可用
func checkDependency(ctx context.Context, dep Dependency) (*depStatus, bool) {
	if dep.Checker == nil {
		return &depStatus{Status: depDisabled}, true
	}
	start := time.Now()
	err := dep.Checker.HealthCheck(ctx)
	st := &depStatus{Status: depOK, LatencyMs: time.Since(start).Milliseconds()}
	if err == nil {
		return st, true
	}
	st.Error = err.Error()
	if dep.Required {
		st.Status = depDown
		return st, false
	}
	st.Status = depDegraded
	return st, true
}

// Live 存活检查
// @Summary 存活检查
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: depOK})
}
