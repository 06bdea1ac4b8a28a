// Package middleware 提供 HTTP 中间件
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "rail-inspection-ai-api/pkg/errors"
	"rail-inspection-ai-api/pkg/logger"
	"rail-inspection-ai-api/pkg/utils"
)

// AuthConfig 认证配置。SkipPaths 按前缀匹配。
type AuthConfig struct {
	Enabled   bool
	Secret    string
	Issuer    string
	SkipPaths []string
}

const (
	ctxKeyOperatorID = "operator_id"
	ctxKeyRole       = "role"
)

// DefaultSkipPaths 探活与指标路径，不需要认证
var DefaultSkipPaths = []string{"/health", "/ready", "/live", "/metrics"}

// errNoBearer Authorization 头存在但不是 Bearer 形式
var errNoBearer = errors.New("authorization header is not a bearer token")

// Auth 校验 Bearer JWT，并把运维人员编号写入 gin.Context 与日志上下文。
// 关闭认证时请求以 operator 角色匿名通过。
func Auth(cfg AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Set(ctxKeyRole, utils.RoleOperator)
			c.Next()
		}
	}

	jm := utils.NewJWTManager(cfg.Secret, cfg.Issuer)
	return func(c *gin.Context) {
		if skipped(c.Request.URL.Path, cfg.SkipPaths) {
			c.Next()
			return
		}

		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			code := apperrors.CodeTokenMissing
			if errors.Is(err, errNoBearer) {
				code = apperrors.CodeTokenInvalid
			}
			abort(c, http.StatusUnauthorized, code, err.Error())
			return
		}

		claims, err := jm.ParseToken(raw)
		switch {
		case errors.Is(err, utils.ErrExpiredToken):
			abort(c, http.StatusUnauthorized, apperrors.CodeTokenExpired, "token expired")
			return
		case err != nil:
			abort(c, http.StatusUnauthorized, apperrors.CodeTokenInvalid, "invalid token")
			return
		}

		c.Set(ctxKeyOperatorID, claims.OperatorID)
		c.Set(ctxKeyRole, claims.Role)
		c.Request = c.Request.WithContext(
			logger.WithContext(c.Request.Context(), logger.OperatorIDKey, claims.OperatorID))
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errNoBearer
	}
	return strings.TrimSpace(token), nil
}

func skipped(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// RequireOperator 写操作仅允许 operator 角色
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !(&utils.Claims{Role: c.GetString(ctxKeyRole)}).CanMutate() {
			abort(c, http.StatusForbidden, apperrors.CodePermissionDenied, "operator role required")
			return
		}
		c.Next()
	}
}

// OperatorID 当前请求的运维人员编号；未认证时为空
func OperatorID(c *gin.Context) string {
	return c.GetString(ctxKeyOperatorID)
}
