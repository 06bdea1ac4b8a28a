// Package storage 提供批次报告归档（S3 或本地目录）
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"rail-inspection-ai-api/internal/config"
)

// 归档后端
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Archiver 写入归档对象，返回可定位的位置
type Archiver interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// New 按配置创建归档后端
func New(ctx context.Context, cfg *config.StorageConfig) (Archiver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendLocal:
		dir := cfg.Local.Dir
		if dir == "" {
			dir = "./data/reports"
		}
		return NewLocalStorage(dir)
	case BackendS3:
		return NewS3Storage(ctx, &cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// cleanKey 去掉前导斜杠与上级目录引用
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("empty storage key")
	}
	return k, nil
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
