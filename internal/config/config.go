// 包 config：分层配置（默认值 -> YAML 文件 -> 环境变量）
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/journal"
)

// EnvPrefix：可选前缀，INGRESS_ADDR 与 ADDR 等价
const EnvPrefix = "INGRESS_"

// PathEnv：配置文件路径所在的环境变量
const PathEnv = "INGRESS_CONFIG"

var knownKeys = func() map[string]struct{} {
	keys := []string{
		"addr", "api_base",
		"amap_web_key", "amap_server_key", "amap_web_base", "amap_rest_base",
		"credential_mode", "load_timeout_ms", "provider_timeout_s",
		"admin_token", "admin_allow_cidrs", "rate_limit_qps", "cors_allow_all", "max_sessions",
		"redis_enable", "redis_host", "redis_port", "redis_pass", "redis_db",
		"journal_enable", "pg_url", "pg_host", "pg_port", "pg_user", "pg_password", "pg_db", "pg_sslmode",
		"doc_cache_ttl_s", "doc_cache_size", "geoip_db_path", "portal_seed_path",
		"provider_check_interval_s", "tls_cert_path", "tls_key_path", "tls_self_signed", "tls_cn",
		"log_level", "log_format",
	}
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}()

// envKey：环境变量名 -> 配置键；未知变量返回空串（koanf 随即忽略）
func envKey(s string) string {
	k := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if _, ok := knownKeys[k]; !ok {
		return ""
	}
	return k
}

// Load：读取 YAML（不存在则跳过），再叠加环境变量
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv：路径取自 INGRESS_CONFIG
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(PathEnv))
}

// Validate：检查取值合法性
func (c *Config) Validate() error {
	if !document.CredentialMode(c.CredentialMode).Valid() {
		return fmt.Errorf("invalid credential_mode %q: must be one of inline, proxy", c.CredentialMode)
	}
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.LoadTimeoutMs < 0 {
		return fmt.Errorf("load_timeout_ms must be non-negative")
	}
	if c.RateLimitQPS < 0 {
		return fmt.Errorf("rate_limit_qps must be non-negative")
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max_sessions must be non-negative")
	}
	if (c.TLSCertPath == "") != (c.TLSKeyPath == "") {
		return fmt.Errorf("tls_cert_path and tls_key_path must be set together")
	}
	if c.DocCacheSize < 0 || c.DocCacheTTLS < 0 {
		return fmt.Errorf("doc cache size and ttl must be non-negative")
	}
	return nil
}

// RedisAddr：host:port
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + strconv.Itoa(c.RedisPort)
}

func (c *Config) PG() journal.PGConfig {
	return journal.PGConfig{
		URL:      c.PGURL,
		Host:     c.PGHost,
		Port:     c.PGPort,
		User:     c.PGUser,
		Password: c.PGPassword,
		DB:       c.PGDB,
		SSLMode:  c.PGSSLMode,
	}
}
