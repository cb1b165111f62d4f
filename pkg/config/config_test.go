package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/mozdata/pkg/config"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

const sampleINI = `[User-Agent]
name = release-mgmt-tools/1.0

[X-Forwarded-For]
data = 10.0.0.1

[Bugzilla]
token = bz-secret
url = https://bugzilla-dev.allizom.org

[Socorro]
token = socorro-secret

[Connection]
workers = 4
timeout = 10s
max_retries = 5
rate_limit = 2.5

[Logging]
level = debug
format = json

[Telemetry]
otlp_endpoint = localhost:4317
otlp_insecure = true
prometheus_addr = :9464
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "custom.ini", sampleINI)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "release-mgmt-tools/1.0", cfg.UserAgent.Name)
	assert.Equal(t, "10.0.0.1", cfg.ForwardedFor.Data)
	assert.Equal(t, "bz-secret", cfg.Bugzilla.Token)
	assert.Equal(t, "https://bugzilla-dev.allizom.org", cfg.Bugzilla.URL)
	assert.Equal(t, "socorro-secret", cfg.Socorro.Token)
	assert.Equal(t, config.DefaultSocorroURL, cfg.Socorro.URL)
	assert.Equal(t, config.DefaultMercurialURL, cfg.Mercurial.URL)
	assert.Equal(t, config.DefaultProductDetailsURL, cfg.ProductDetails.URL)
	assert.Equal(t, 4, cfg.Connection.Workers)
	assert.Equal(t, 10*time.Second, cfg.Connection.Timeout)
	assert.Equal(t, 5, cfg.Connection.MaxRetries)
	assert.InDelta(t, 2.5, cfg.Connection.RateLimit, 1e-9)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
	assert.Equal(t, ":9464", cfg.Telemetry.PrometheusAddr)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.ini"))
	require.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "negative workers", content: "[Connection]\nworkers = -1\n", wantErr: config.ErrInvalidWorkers},
		{name: "negative retries", content: "[Connection]\nmax_retries = -3\n", wantErr: config.ErrInvalidRetries},
		{name: "negative rate", content: "[Connection]\nrate_limit = -1\n", wantErr: config.ErrInvalidRateLimit},
		{name: "bad format", content: "[Logging]\nformat = xml\n", wantErr: config.ErrInvalidLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, t.TempDir(), "bad.ini", tt.content)

			_, err := config.LoadConfig(path)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfigSearchesWorkingDirThenHome(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()

	t.Setenv("HOME", home)
	t.Chdir(work)

	writeConfig(t, home, ".mozdata.ini", "[User-Agent]\nname = from-home\n")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-home", cfg.UserAgent.Name)

	writeConfig(t, work, "mozdata.ini", "[User-Agent]\nname = from-cwd\n")

	cfg, err = config.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-cwd", cfg.UserAgent.Name)
}

func TestLoadConfigNoFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Empty(t, cfg.UserAgent.Name)
	assert.Equal(t, config.DefaultBugzillaURL, cfg.Bugzilla.URL)
	assert.Equal(t, 30*time.Second, cfg.Connection.Timeout)
	assert.Equal(t, query.DefaultMaxAttempts, cfg.Connection.MaxRetries)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadConfigEnvironmentOverride(t *testing.T) {
	t.Setenv("MOZDATA_CFG_USER_AGENT_NAME", "env-agent")
	t.Setenv("MOZDATA_CFG_BUGZILLA_TOKEN", "env-token")
	t.Setenv("MOZDATA_CFG_CONNECTION_WORKERS", "2")

	path := writeConfig(t, t.TempDir(), "c.ini", sampleINI)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-agent", cfg.UserAgent.Name)
	assert.Equal(t, "env-token", cfg.Bugzilla.Token)
	assert.Equal(t, 2, cfg.Connection.Workers)
	assert.Equal(t, "10.0.0.1", cfg.ForwardedFor.Data)
}

func TestQueryOptionsRequiresUserAgent(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}

	_, err := cfg.QueryOptions()
	require.ErrorIs(t, err, config.ErrNoUserAgent)

	cfg.UserAgent.Name = "   "

	_, err = cfg.QueryOptions()
	require.ErrorIs(t, err, config.ErrNoUserAgent)
}

func TestQueryOptions(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "c.ini", sampleINI)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	opts, err := cfg.QueryOptions()
	require.NoError(t, err)

	// user agent, workers, timeout, retry policy, forwarded-for, rate limit.
	assert.Len(t, opts, 6)
}

func TestObservability(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "c.ini", sampleINI)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	obs := cfg.Observability("1.2.3", observability.ModeMCP)

	assert.Equal(t, "mozdata", obs.ServiceName)
	assert.Equal(t, "1.2.3", obs.ServiceVersion)
	assert.Equal(t, observability.ModeMCP, obs.Mode)
	assert.Equal(t, slog.LevelDebug, obs.LogLevel)
	assert.True(t, obs.LogJSON)
	assert.Equal(t, "localhost:4317", obs.OTLPEndpoint)
	assert.True(t, obs.OTLPInsecure)
	assert.True(t, obs.Prometheus)
}
