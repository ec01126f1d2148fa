package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/shanehull/resultalert/internal/errors"
	"github.com/shanehull/resultalert/internal/source"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resultalert.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Len(t, cfg.EnabledSources(), 2)
	assert.Equal(t, 3*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 10*time.Second, cfg.Pipeline.Deadline)
	assert.Equal(t, "partial", cfg.Pipeline.TimeoutPolicy)
	assert.Equal(t, "memory", cfg.Dedup.Backend)
	assert.Equal(t, time.Hour, cfg.Dedup.TTL)
	assert.InDelta(t, 0.6, cfg.Extraction.Threshold, 1e-9)
	assert.InDelta(t, 10.0, cfg.Analysis.Bands.StrongPositive, 1e-9)
	assert.InDelta(t, 0.5, cfg.Analysis.Weights.Profit, 1e-9)
	assert.Equal(t, []string{"QUARTERLY_RESULT"}, cfg.Filter.Types)
	assert.True(t, cfg.Notify.Console)
	assert.True(t, cfg.Notify.Telegram.FailureAlerts)
	assert.Equal(t, source.DefaultBSEHeaderURL, cfg.Poller.NameLookupURL)
}

const sampleTOML = `
[redis]
url = "redis://localhost:6379/0"

[[sources]]
name = "nse"
kind = "nse"
enabled = true
interval = "2s"

[[sources]]
name = "moneycontrol"
kind = "rss"
url = "https://www.moneycontrol.com/rss/results.xml"
enabled = false

[filter]
watchlist = ["RELIANCE", "TCS"]

[dedup]
backend = "redis"
ttl = "2h"

[pipeline]
workers = 8
queue_policy = "drop"
deadline = "8s"
timeout_policy = "fail"

[analysis.bands]
strong_positive = 8.0
positive = 3.0
neutral = -3.0
negative = -8.0

[notify.email]
enabled = true
smtp_user = "alerts@example.com"
to = "me@example.com"
`

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 2)
	enabled := cfg.EnabledSources()
	require.Len(t, enabled, 1)
	assert.Equal(t, 2*time.Second, enabled[0].Interval)
	assert.Equal(t, []string{"RELIANCE", "TCS"}, cfg.Filter.Watchlist)
	assert.Equal(t, "redis", cfg.Dedup.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Dedup.TTL)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 100, cfg.Pipeline.QueueSize)
	assert.Equal(t, "drop", cfg.Pipeline.QueuePolicy)
	assert.Equal(t, "fail", cfg.Pipeline.TimeoutPolicy)
	assert.InDelta(t, 8.0, cfg.Analysis.Bands.StrongPositive, 1e-9)
	assert.InDelta(t, 0.3, cfg.Analysis.Weights.Revenue, 1e-9)
	assert.Equal(t, "alerts@example.com", cfg.Notify.Email.FromEmail)
	assert.Equal(t, 587, cfg.Notify.Email.SMTPPort)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESULTALERT_PIPELINE_WORKERS", "2")
	t.Setenv("RESULTALERT_LOG_LEVEL", "debug")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_CHANNEL_ID", "@results")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := Load(writeConfig(t, "[notify.telegram]\nenabled = true\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "123:abc", cfg.Notify.Telegram.BotToken)
	assert.Equal(t, "@results", cfg.Notify.Telegram.ChannelID)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"no sources", "[[sources]]\nname = \"nse\"\nkind = \"nse\"\nenabled = false\n"},
		{"zero workers", "[pipeline]\nworkers = 0\n"},
		{"threshold", "[extraction]\nthreshold = 1.5\n"},
		{"bands", "[analysis.bands]\nstrong_positive = 1.0\npositive = 2.0\n"},
		{"redis dedup without url", "[dedup]\nbackend = \"redis\"\n"},
		{"unknown dedup", "[dedup]\nbackend = \"etcd\"\n"},
		{"telegram without token", "[notify.telegram]\nenabled = true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.toml))
			require.Error(t, err)
			assert.ErrorIs(t, err, rerrors.ErrConfigInvalid)
		})
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "[pipeline\nworkers = "))
	assert.Error(t, err)
}
