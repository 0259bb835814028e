package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "proxy", c.CredentialMode)
	assert.Equal(t, 10*time.Second, c.LoadTimeout())
	assert.Equal(t, "127.0.0.1:6379", c.RedisAddr())
	assert.Equal(t, "postgres://postgres@localhost:5432/ingress?sslmode=disable", c.PG().DSN())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingress.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
credential_mode: inline
load_timeout_ms: 2500
cors_allow_all: true
pg_db: bridge
`), 0o644))

	t.Setenv("INGRESS_ADDR", ":9100")
	t.Setenv("RATE_LIMIT_QPS", "7")
	t.Setenv("REDIS_ENABLE", "true")
	t.Setenv("UNRELATED_SETTING", "x")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", c.Addr)
	assert.Equal(t, "inline", c.CredentialMode)
	assert.Equal(t, 2500*time.Millisecond, c.LoadTimeout())
	assert.True(t, c.CORSAllowAll)
	assert.Equal(t, 7, c.RateLimitQPS)
	assert.True(t, c.RedisEnable)
	assert.Equal(t, "bridge", c.PGDB)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.CredentialMode = "plaintext"
	assert.ErrorContains(t, c.Validate(), "credential_mode")

	c = Default()
	c.RateLimitQPS = -1
	assert.Error(t, c.Validate())

	c = Default()
	c.Addr = ""
	assert.Error(t, c.Validate())

	c = Default()
	c.TLSCertPath = "cert.pem"
	assert.ErrorContains(t, c.Validate(), "tls")
	c.TLSKeyPath = "key.pem"
	assert.NoError(t, c.Validate())
	assert.True(t, c.TLSEnabled())
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "amap_web_key", envKey("AMAP_WEB_KEY"))
	assert.Equal(t, "amap_web_key", envKey("INGRESS_AMAP_WEB_KEY"))
	assert.Equal(t, "", envKey("PATH"))
	assert.Equal(t, "", envKey("INGRESS_CONFIG"))
}
