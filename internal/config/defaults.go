package config

import "github.com/dbsahdlks/INgress/internal/amap"

// Default：默认配置；与地图服务相关的默认值沿用原应用（10 秒加载时限、代理凭证模式）
func Default() *Config {
	return &Config{
		Addr:             ":8080",
		AMapWebBase:      amap.DefaultWebBase,
		AMapRESTBase:     amap.DefaultRESTBase,
		CredentialMode:   "proxy",
		LoadTimeoutMs:    10000,
		ProviderTimeoutS: 5,
		RateLimitQPS:     50,
		MaxSessions:      64,
		RedisHost:        "127.0.0.1",
		RedisPort:        6379,
		PGHost:           "localhost",
		PGPort:           5432,
		PGUser:           "postgres",
		PGDB:             "ingress",
		PGSSLMode:        "disable",
		DocCacheTTLS:     600,
		DocCacheSize:     256,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}
