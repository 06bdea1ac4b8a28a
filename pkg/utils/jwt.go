// Package utils 提供运维 Token 签发与校验
package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// 运维角色
const (
	RoleOperator = "operator" // 可提交流水线、管理规程索引
	RoleViewer   = "viewer"   // 只读：问答与报告查询
)

// Claims 运维人员 JWT 声明
type Claims struct {
	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager 签发与校验运维 Token
type JWTManager struct {
	secret []byte
	issuer string
}

func NewJWTManager(secret, issuer string) *JWTManager {
	return &JWTManager{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// GenerateToken 签发 Token（部署脚本与测试使用）
func (m *JWTManager) GenerateToken(operatorID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		OperatorID: operatorID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// clockSkew 容忍签发方与本机的时钟偏差
const clockSkew = 30 * time.Second

// ParseToken 只接受本服务签发的 HS256 Token
func (m *JWTManager) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(clockSkew),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.OperatorID == "":
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CanMutate 判断角色是否允许写操作
func (c *Claims) CanMutate() bool {
	return c != nil && c.Role == RoleOperator
}
