package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// GitHub
	GitHubToken      string
	GitHubGraphQLURL string
	Org              string
	Teams            []string // empty means the whole organization

	// Jira
	JiraBaseURL string
	JiraEmail   string
	JiraToken   string
	JiraFilters []string // saved filter ids to collect
	JiraProject string

	// Collection tuning
	Workers        int
	MaxRetries     int
	BaseDelay      time.Duration
	RateLimitDelay time.Duration
	UnitTimeout    time.Duration
	SmallThreshold int
	HugeThreshold  int
	BatchSize      int
	HugeBatchSize  int
	RequestsPerSec float64
	CacheTTL       time.Duration
	DateRange      string

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Logging
	LogLevel string
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	return &Config{
		GitHubToken:      getEnv("GITHUB_TOKEN", ""),
		GitHubGraphQLURL: getEnv("GITHUB_GRAPHQL_URL", "https://api.github.com/graphql"),
		Org:              getEnv("GITHUB_ORG", ""),
		Teams:            getEnvList("GITHUB_TEAMS", nil),
		JiraBaseURL:      getEnv("JIRA_BASE_URL", ""),
		JiraEmail:        getEnv("JIRA_EMAIL", ""),
		JiraToken:        getEnv("JIRA_TOKEN", ""),
		JiraFilters:      getEnvList("JIRA_FILTERS", nil),
		JiraProject:      getEnv("JIRA_PROJECT", ""),
		Workers:          getEnvInt("COLLECT_WORKERS", 5),
		MaxRetries:       getEnvInt("COLLECT_MAX_RETRIES", 4),
		BaseDelay:        getEnvDuration("COLLECT_BASE_DELAY", 2*time.Second),
		RateLimitDelay:   getEnvDuration("COLLECT_RATE_LIMIT_DELAY", 60*time.Second),
		UnitTimeout:      getEnvDuration("COLLECT_UNIT_TIMEOUT", 10*time.Minute),
		SmallThreshold:   getEnvInt("COLLECT_SMALL_THRESHOLD", 500),
		HugeThreshold:    getEnvInt("COLLECT_HUGE_THRESHOLD", 5000),
		BatchSize:        getEnvInt("COLLECT_BATCH_SIZE", 500),
		HugeBatchSize:    getEnvInt("COLLECT_HUGE_BATCH_SIZE", 1000),
		RequestsPerSec:   getEnvFloat("COLLECT_REQUESTS_PER_SEC", 5),
		CacheTTL:         getEnvDuration("WORKING_SET_TTL", 24*time.Hour),
		DateRange:        getEnv("COLLECT_DATE_RANGE", "90d"),
		StorageType:      getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:       getEnv("SQLITE_PATH", "./devpulse.db"),
		PostgresURL:      getEnv("POSTGRES_URL", ""),
		APIPort:          getEnv("API_PORT", "8080"),
		APIHost:          getEnv("API_HOST", "localhost"),
		APIEndpoint:      getEnv("API_ENDPOINT", "http://localhost:8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GitHubToken == "" && c.JiraBaseURL == "" {
		return &ConfigError{Field: "GITHUB_TOKEN", Message: "at least one source (GitHub or Jira) must be configured"}
	}
	if c.GitHubToken != "" && c.Org == "" {
		return &ConfigError{Field: "GITHUB_ORG", Message: "organization is required when GitHub is configured"}
	}
	if c.JiraBaseURL != "" && (c.JiraEmail == "" || c.JiraToken == "") {
		return &ConfigError{Field: "JIRA_EMAIL", Message: "Jira email and API token are required when JIRA_BASE_URL is set"}
	}
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.Workers < 1 {
		return &ConfigError{Field: "COLLECT_WORKERS", Message: "worker count must be at least 1"}
	}
	if c.MaxRetries < 1 {
		return &ConfigError{Field: "COLLECT_MAX_RETRIES", Message: "retry budget must be at least 1 attempt"}
	}
	if c.BatchSize < 1 || c.HugeBatchSize < 1 {
		return &ConfigError{Field: "COLLECT_BATCH_SIZE", Message: "batch sizes must be positive"}
	}
	if c.HugeThreshold < c.SmallThreshold {
		return &ConfigError{Field: "COLLECT_HUGE_THRESHOLD", Message: "huge threshold must not be below the small threshold"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
