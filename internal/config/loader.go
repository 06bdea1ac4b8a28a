// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// envPattern 匹配 ${VAR} 或 ${VAR:default}
// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 加载配置文件
// 按优先级加载：.env -> 默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	return LoadFrom("configs")
}

// LoadFrom 从指定目录加载配置
func LoadFrom(dir string) (*Config, error) {
	// .env 仅补充未设置的环境变量，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")

	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), false); err != nil {
		return nil, err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符，未定义且无默认值的保留原样
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPattern.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验检索与流水线参数的取值范围
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", r.ChunkSize)
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be in [0, chunk_size), got %d", r.ChunkOverlap)
	}
	for name, q := range map[string]QueryParams{
		"retrieval.regulations": r.Regulations,
		"retrieval.reports":     r.Reports,
		"retrieval.review":      r.Review,
		"chat.regulations":      c.Chat.Regulations,
		"chat.reports":          c.Chat.Reports,
	} {
		if q.TopK <= 0 {
			return fmt.Errorf("%s.top_k must be positive", name)
		}
		if q.Threshold < 0 || q.Threshold > 1 {
			return fmt.Errorf("%s.threshold must be in [0,1]", name)
		}
	}
	if c.Inspection.MaxRevisions < 0 {
		return fmt.Errorf("inspection.max_revisions must not be negative")
	}
	if c.Inspection.Workers <= 0 {
		return fmt.Errorf("inspection.workers must be positive")
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rail-inspection-ai-api")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "300s")
	v.SetDefault("server.http.idle_timeout", "120s")

	v.SetDefault("server.grpc.enabled", true)
	v.SetDefault("server.grpc.host", "0.0.0.0")
	v.SetDefault("server.grpc.port", 50051)
	v.SetDefault("server.grpc.max_recv_msg_size", 4194304)
	v.SetDefault("server.grpc.max_send_msg_size", 4194304)

	v.SetDefault("database.postgres.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.database", "rail_inspection")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "30m")
	v.SetDefault("database.postgres.conn_max_idle_time", "5m")
	v.SetDefault("database.postgres.auto_migrate", true)
	v.SetDefault("database.postgres.slow_query", "500ms")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", 50)
	v.SetDefault("cache.redis.min_idle_conns", 5)
	v.SetDefault("cache.redis.dial_timeout", "5s")
	v.SetDefault("cache.redis.read_timeout", "3s")
	v.SetDefault("cache.redis.write_timeout", "3s")

	v.SetDefault("vector.backend", "milvus")
	v.SetDefault("vector.milvus.host", "localhost")
	v.SetDefault("vector.milvus.port", 19530)
	v.SetDefault("vector.milvus.collection_prefix", "rail")
	v.SetDefault("vector.milvus.hnsw_m", 16)
	v.SetDefault("vector.milvus.hnsw_ef_construction", 200)
	v.SetDefault("vector.milvus.search_ef", 128)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.dir", "./data/reports")
	v.SetDefault("storage.s3.prefix", "batch-reports")

	v.SetDefault("llm.default_provider", "gemini")
	v.SetDefault("llm.rate_limit", 0)
	v.SetDefault("llm.rate_limit_window", "1m")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.batch_size", 32)

	v.SetDefault("retrieval.chunk_size", 500)
	v.SetDefault("retrieval.chunk_overlap", 200)
	v.SetDefault("retrieval.regulations.top_k", 5)
	v.SetDefault("retrieval.regulations.threshold", 0.1)
	v.SetDefault("retrieval.reports.top_k", 5)
	v.SetDefault("retrieval.reports.threshold", 0.3)
	v.SetDefault("retrieval.review.top_k", 3)
	v.SetDefault("retrieval.review.threshold", 0.1)

	v.SetDefault("inspection.max_revisions", 3)
	v.SetDefault("inspection.workers", 4)
	v.SetDefault("inspection.skip_review", false)
	v.SetDefault("inspection.call_timeout", "90s")
	v.SetDefault("inspection.retry.max_attempts", 2)
	v.SetDefault("inspection.retry.backoff.initial", "1s")
	v.SetDefault("inspection.retry.backoff.max", "10s")
	v.SetDefault("inspection.retry.backoff.multiplier", 2.0)

	v.SetDefault("chat.regulations.top_k", 3)
	v.SetDefault("chat.regulations.threshold", 0.1)
	v.SetDefault("chat.reports.top_k", 5)
	v.SetDefault("chat.reports.threshold", 0.3)
	v.SetDefault("chat.cache_ttl", "10m")
	v.SetDefault("chat.context_runes", 1000)

	v.SetDefault("web_search.enabled", false)
	v.SetDefault("web_search.max_results", 5)
	v.SetDefault("web_search.timeout", "15s")

	v.SetDefault("messaging.redis_stream.max_len", 10000)
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.claim_interval", "30s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "5s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "5m")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)
	v.SetDefault("messaging.redis_stream.dlq_alert_threshold", 100)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")

	v.SetDefault("security.jwt.enabled", false)
	v.SetDefault("security.jwt.issuer", "rail-inspection")
	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests_per_second", 20)
	v.SetDefault("security.rate_limit.burst", 40)
}
