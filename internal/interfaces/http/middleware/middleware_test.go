package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/pkg/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthEngine(cfg AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(Auth(cfg))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/reports", func(c *gin.Context) { c.String(http.StatusOK, OperatorID(c)) })
	r.POST("/v1/regulations", RequireOperator(), func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	cfg := AuthConfig{Enabled: true, Secret: "s3cret", Issuer: "rail-inspection", SkipPaths: DefaultSkipPaths}
	r := newAuthEngine(cfg)
	jm := utils.NewJWTManager(cfg.Secret, cfg.Issuer)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/v1/reports", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/v1/reports", "garbage").Code)

	viewer, err := jm.GenerateToken("kim", utils.RoleViewer, time.Hour)
	require.NoError(t, err)
	w := do(r, http.MethodGet, "/v1/reports", viewer)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kim", w.Body.String())
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/v1/regulations", viewer).Code)

	operator, err := jm.GenerateToken("lee", utils.RoleOperator, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/v1/regulations", operator).Code)
}

func TestAuth_HeaderErrorCodes(t *testing.T) {
	r := newAuthEngine(AuthConfig{Enabled: true, Secret: "s3cret", Issuer: "rail-inspection"})

	w := do(r, http.MethodGet, "/v1/reports", "")
	assert.Contains(t, w.Body.String(), `"error_code":"2003"`)

	req := httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"2002"`)

	token, err := utils.NewJWTManager("s3cret", "rail-inspection").GenerateToken("park", utils.RoleViewer, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/v1/reports", nil)
	req.Header.Set("Authorization", "bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_DisabledAllowsMutation(t *testing.T) {
	r := newAuthEngine(AuthConfig{Enabled: false})
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/v1/regulations", "").Code)
}

type budgetLimiter struct {
	budget map[string]int
	err    error
}

func (l *budgetLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.budget[key]++
	return l.budget[key] <= limit, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &budgetLimiter{budget: map[string]int{}}
	keyFn := func(client, route string) string { return client + "|" + route }

	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{Enabled: true, RequestsPerSecond: 1, Burst: 1}, limiter, keyFn))
	r.GET("/v1/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/chat", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/chat", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodGet, "/v1/chat", "").Code)
}

func TestRateLimit_LimiterDownAllows(t *testing.T) {
	limiter := &budgetLimiter{err: assert.AnError}
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{Enabled: true}, limiter, func(c, r string) string { return c + r }))
	r.GET("/v1/chat", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/v1/chat", "").Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
}

func TestRequestID_RegeneratesUnsafeHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "bad id with spaces")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "bad id with spaces", w.Body.String())
	assert.Len(t, w.Body.String(), 36)
}

func TestRecovery_ReturnsErrorCode(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := do(r, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error_code":"1007"`)
}

func TestRateLimit_SetsRetryAfter(t *testing.T) {
	limiter := &budgetLimiter{budget: map[string]int{}}
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{Enabled: true, RequestsPerSecond: 1}, limiter, func(c, r string) string { return c + r }))
	r.GET("/v1/chat", func(c *gin.Context) { c.Status(http.StatusOK) })

	do(r, http.MethodGet, "/v1/chat", "")
	w := do(r, http.MethodGet, "/v1/chat", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"error_code":"1006"`)
}
