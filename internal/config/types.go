package config

import "time"

// Config：服务配置；字段名与环境变量一一对应（小写）
type Config struct {
	Addr    string `yaml:"addr" koanf:"addr"`
	APIBase string `yaml:"api_base" koanf:"api_base"`

	AMapWebKey       string `yaml:"amap_web_key" koanf:"amap_web_key"`
	AMapServerKey    string `yaml:"amap_server_key" koanf:"amap_server_key"`
	AMapWebBase      string `yaml:"amap_web_base" koanf:"amap_web_base"`
	AMapRESTBase     string `yaml:"amap_rest_base" koanf:"amap_rest_base"`
	CredentialMode   string `yaml:"credential_mode" koanf:"credential_mode"`
	LoadTimeoutMs    int    `yaml:"load_timeout_ms" koanf:"load_timeout_ms"`
	ProviderTimeoutS int    `yaml:"provider_timeout_s" koanf:"provider_timeout_s"`

	AdminToken      string `yaml:"admin_token" koanf:"admin_token"`
	AdminAllowCIDRs string `yaml:"admin_allow_cidrs" koanf:"admin_allow_cidrs"`
	RateLimitQPS    int    `yaml:"rate_limit_qps" koanf:"rate_limit_qps"`
	CORSAllowAll    bool   `yaml:"cors_allow_all" koanf:"cors_allow_all"`
	MaxSessions     int    `yaml:"max_sessions" koanf:"max_sessions"`

	RedisEnable bool   `yaml:"redis_enable" koanf:"redis_enable"`
	RedisHost   string `yaml:"redis_host" koanf:"redis_host"`
	RedisPort   int    `yaml:"redis_port" koanf:"redis_port"`
	RedisPass   string `yaml:"redis_pass" koanf:"redis_pass"`
	RedisDB     int    `yaml:"redis_db" koanf:"redis_db"`

	JournalEnable bool   `yaml:"journal_enable" koanf:"journal_enable"`
	PGURL         string `yaml:"pg_url" koanf:"pg_url"`
	PGHost        string `yaml:"pg_host" koanf:"pg_host"`
	PGPort        int    `yaml:"pg_port" koanf:"pg_port"`
	PGUser        string `yaml:"pg_user" koanf:"pg_user"`
	PGPassword    string `yaml:"pg_password" koanf:"pg_password"`
	PGDB          string `yaml:"pg_db" koanf:"pg_db"`
	PGSSLMode     string `yaml:"pg_sslmode" koanf:"pg_sslmode"`

	DocCacheTTLS   int    `yaml:"doc_cache_ttl_s" koanf:"doc_cache_ttl_s"`
	DocCacheSize   int    `yaml:"doc_cache_size" koanf:"doc_cache_size"`
	GeoIPDBPath    string `yaml:"geoip_db_path" koanf:"geoip_db_path"`
	PortalSeedPath string `yaml:"portal_seed_path" koanf:"portal_seed_path"`

	ProviderCheckIntervalS int `yaml:"provider_check_interval_s" koanf:"provider_check_interval_s"`

	TLSCertPath   string `yaml:"tls_cert_path" koanf:"tls_cert_path"`
	TLSKeyPath    string `yaml:"tls_key_path" koanf:"tls_key_path"`
	TLSSelfSigned bool   `yaml:"tls_self_signed" koanf:"tls_self_signed"`
	TLSCN         string `yaml:"tls_cn" koanf:"tls_cn"`

	LogLevel  string `yaml:"log_level" koanf:"log_level"`
	LogFormat string `yaml:"log_format" koanf:"log_format"`
}

func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutMs) * time.Millisecond
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutS) * time.Second
}

func (c *Config) ProviderCheckInterval() time.Duration {
	return time.Duration(c.ProviderCheckIntervalS) * time.Second
}

// TLSEnabled：证书与私钥路径均已配置
func (c *Config) TLSEnabled() bool { return c.TLSCertPath != "" && c.TLSKeyPath != "" }

func (c *Config) DocCacheTTL() time.Duration {
	return time.Duration(c.DocCacheTTLS) * time.Second
}
