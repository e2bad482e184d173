package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://outreach:pw@localhost:5432/outreach?sslmode=disable"
  max_open_conns: 50

gateway:
  base_url: "https://gw.internal.example.com"
  api_key: "test-api-key"
  timeout_seconds: 45

worker:
  poll_interval_seconds: 5
  max_concurrent_campaigns: 8

evidence:
  enabled: true
  s3_bucket: "outreach-evidence"
  s3_region: "us-east-1"

alerts:
  enabled: true
  from: "alerts@outreach.example"
  operators:
    - "ops@outreach.example"
    - "oncall@outreach.example"

snowflake:
  account: "ORG-ACCT123"
  user: "exporter"
  database: "OUTREACH_LAKE"
  schema: "ROLLUPS"
  enabled: true

auth:
  enabled: true
  google_client_id: "client-id"
  allowed_domain: "outreach.example"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "postgres://outreach:pw@localhost:5432/outreach?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns, "idle conns should default")

	assert.Equal(t, "https://gw.internal.example.com", cfg.Gateway.BaseURL)
	assert.Equal(t, "test-api-key", cfg.Gateway.APIKey)
	assert.Equal(t, 45, cfg.Gateway.TimeoutSeconds)

	assert.Equal(t, 5, cfg.Worker.PollIntervalSeconds)
	assert.Equal(t, 8, cfg.Worker.MaxConcurrentCampaigns)
	assert.Equal(t, 120, cfg.Worker.LockTTLSeconds, "lock TTL should default")

	assert.True(t, cfg.Evidence.Enabled)
	assert.Equal(t, "outreach-evidence", cfg.Evidence.S3Bucket)

	assert.True(t, cfg.Alerts.Enabled)
	assert.Equal(t, "alerts@outreach.example", cfg.Alerts.From)
	assert.Len(t, cfg.Alerts.Operators, 2)

	assert.True(t, cfg.Snowflake.Enabled)
	assert.Equal(t, "ORG-ACCT123", cfg.Snowflake.Account)
	assert.Equal(t, "ROLLUPS", cfg.Snowflake.Schema)

	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "client-id", cfg.Auth.GoogleClientID)
	assert.Equal(t, "outreach.example", cfg.Auth.AllowedDomain)
}

func TestLoadDefaults(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  api_key: "test-key"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 90, cfg.Gateway.TimeoutSeconds)
	assert.Equal(t, 15, cfg.Worker.PollIntervalSeconds)
	assert.Equal(t, 4, cfg.Worker.MaxConcurrentCampaigns)
	assert.Equal(t, "us-east-1", cfg.Alerts.Region)
	assert.Equal(t, "us-east-1", cfg.Analyst.Region)
	assert.Equal(t, 30, cfg.Newsfeed.IntervalMinutes)
	assert.Equal(t, "outreach_session", cfg.Auth.CookieName)
	assert.Equal(t, 86400, cfg.Auth.CookieMaxAge)
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
database:
  url: "postgres://file-url"
gateway:
  api_key: "file-key"
`)

	os.Setenv("DATABASE_URL", "postgres://env-url")
	os.Setenv("GATEWAY_API_KEY", "env-key")
	os.Setenv("ALERT_OPERATORS", "a@x.com, b@x.com")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("GATEWAY_API_KEY")
		os.Unsetenv("ALERT_OPERATORS")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "postgres://env-url", cfg.Database.URL)
	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, cfg.Alerts.Operators)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	assert.Equal(t, 45*time.Second, GatewayConfig{TimeoutSeconds: 45}.Timeout())
	assert.Equal(t, 5*time.Second, WorkerConfig{PollIntervalSeconds: 5}.PollInterval())
	assert.Equal(t, 2*time.Minute, WorkerConfig{LockTTLSeconds: 120}.LockTTL())
	assert.Equal(t, 15*time.Minute, NewsfeedConfig{IntervalMinutes: 15}.Interval())
}
