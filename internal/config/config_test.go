package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Force the asserted variables to their unset state so an ambient
	// environment cannot leak into the assertions.
	for _, key := range []string{
		"GITHUB_GRAPHQL_URL", "COLLECT_WORKERS", "COLLECT_MAX_RETRIES",
		"COLLECT_BASE_DELAY", "COLLECT_RATE_LIMIT_DELAY", "COLLECT_DATE_RANGE",
		"WORKING_SET_TTL", "STORAGE_TYPE", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.github.com/graphql", cfg.GitHubGraphQLURL)
	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.RateLimitDelay)
	assert.Equal(t, "90d", cfg.DateRange)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "sqlite", cfg.StorageType)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("GITHUB_TEAMS", "platform, data ,")
	t.Setenv("JIRA_FILTERS", "12345,filter:67890")
	t.Setenv("COLLECT_WORKERS", "12")
	t.Setenv("COLLECT_BASE_DELAY", "500ms")
	t.Setenv("COLLECT_REQUESTS_PER_SEC", "2.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ghp_test", cfg.GitHubToken)
	assert.Equal(t, []string{"platform", "data"}, cfg.Teams)
	assert.Equal(t, []string{"12345", "filter:67890"}, cfg.JiraFilters)
	assert.Equal(t, 12, cfg.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 2.5, cfg.RequestsPerSec)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("COLLECT_WORKERS", "many")
	t.Setenv("COLLECT_BASE_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Workers)
	assert.Equal(t, 2*time.Second, cfg.BaseDelay)
}

func validConfig() *Config {
	return &Config{
		GitHubToken:    "ghp_test",
		Org:            "acme",
		StorageType:    "sqlite",
		Workers:        5,
		MaxRetries:     4,
		SmallThreshold: 500,
		HugeThreshold:  5000,
		BatchSize:      500,
		HugeBatchSize:  1000,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "valid github-only config",
			mutate: func(c *Config) {},
		},
		{
			name: "valid jira-only config",
			mutate: func(c *Config) {
				c.GitHubToken = ""
				c.Org = ""
				c.JiraBaseURL = "https://acme.atlassian.net"
				c.JiraEmail = "bot@acme.io"
				c.JiraToken = "secret"
			},
		},
		{
			name: "no sources configured",
			mutate: func(c *Config) {
				c.GitHubToken = ""
			},
			wantField: "GITHUB_TOKEN",
		},
		{
			name: "github without org",
			mutate: func(c *Config) {
				c.Org = ""
			},
			wantField: "GITHUB_ORG",
		},
		{
			name: "jira without credentials",
			mutate: func(c *Config) {
				c.JiraBaseURL = "https://acme.atlassian.net"
			},
			wantField: "JIRA_EMAIL",
		},
		{
			name: "unknown storage type",
			mutate: func(c *Config) {
				c.StorageType = "mysql"
			},
			wantField: "STORAGE_TYPE",
		},
		{
			name: "postgres without URL",
			mutate: func(c *Config) {
				c.StorageType = "postgres"
			},
			wantField: "POSTGRES_URL",
		},
		{
			name: "zero workers",
			mutate: func(c *Config) {
				c.Workers = 0
			},
			wantField: "COLLECT_WORKERS",
		},
		{
			name: "zero retry budget",
			mutate: func(c *Config) {
				c.MaxRetries = 0
			},
			wantField: "COLLECT_MAX_RETRIES",
		},
		{
			name: "zero batch size",
			mutate: func(c *Config) {
				c.BatchSize = 0
			},
			wantField: "COLLECT_BATCH_SIZE",
		},
		{
			name: "huge threshold below small threshold",
			mutate: func(c *Config) {
				c.HugeThreshold = 100
			},
			wantField: "COLLECT_HUGE_THRESHOLD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}
