package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jake-scott/findmy-relay/internal/pkg/webhook"
)

func loadYAML(t *testing.T, content string) *viper.Viper {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(configPath)
	require.NoError(t, v.ReadInConfig())

	return v
}

func TestFromViper(t *testing.T) {
	v := loadYAML(t, `
account:
  user: "alice@example.com"
  password: "hunter2"
device:
  selector: "iPhone"
poll:
  pause: 2
provider:
  url: "https://find.example.com"
webhooks:
  alarm:
    - "http://127.0.0.1:4000"
  map:
    - "http://127.0.0.1:5000"
    - "http://maps.local:5000/hooks"
  timeout: 3s
`)

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", cfg.Credentials.User)
	assert.Equal(t, "hunter2", cfg.Credentials.Password)
	assert.Equal(t, "iPhone", cfg.Device)
	assert.Equal(t, 2*time.Minute, cfg.Pause)
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, 4, cfg.WebhookConcurrency)
	assert.Equal(t, "findmy-relay", cfg.ProviderClientID)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)

	assert.Equal(t, []webhook.Sink{
		{Kind: webhook.KindAlarm, BaseURL: "http://127.0.0.1:4000"},
		{Kind: webhook.KindMap, BaseURL: "http://127.0.0.1:5000"},
		{Kind: webhook.KindMap, BaseURL: "http://maps.local:5000/hooks"},
	}, cfg.Sinks)
}

func TestDefaultPause(t *testing.T) {
	v := loadYAML(t, `
account: {user: a, password: b}
device: {selector: iPhone}
provider: {url: "https://find.example.com"}
webhooks: {alarm: ["http://127.0.0.1:4000"]}
`)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Pause)
}

func TestNoSinksIsAnError(t *testing.T) {
	v := loadYAML(t, `
account: {user: a, password: b}
device: {selector: iPhone}
provider: {url: "https://find.example.com"}
`)

	_, err := FromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhooks")
}

func TestValidateReportsEverything(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("poll.pause", 0)
	v.Set("webhooks.alarm", []string{"not a url"})

	_, err := FromViper(v)
	require.Error(t, err)

	msg := err.Error()
	for _, key := range []string{"account.user", "account.password", "device.selector", "provider.url", "poll.pause", "webhooks.alarm.0"} {
		assert.Contains(t, msg, key)
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("FINDMY_ACCOUNT_PASSWORD", "from-env")

	v := loadYAML(t, `
account: {user: a, password: b}
device: {selector: iPhone}
provider: {url: "https://find.example.com"}
webhooks: {map: ["http://127.0.0.1:5000"]}
`)
	BindEnv(v)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Credentials.Password)
}
