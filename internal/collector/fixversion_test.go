package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpulse-io/devpulse/internal/domain"
)

func TestParseFixVersion(t *testing.T) {
	tests := []struct {
		name    string
		wantEnv domain.Environment
		wantDay string
		ok      bool
	}{
		{"Live - 21/Oct/2025", domain.EnvironmentProduction, "2025-10-21", true},
		{"live - 1/Jan/2025", domain.EnvironmentProduction, "2025-01-01", true},
		{"Beta - 3/Feb/2026", domain.EnvironmentStaging, "2026-02-03", true},
		{"BETA-9/Dec/2024", domain.EnvironmentStaging, "2024-12-09", true},
		{"app_2025_10_21", domain.EnvironmentStaging, "2025-10-21", true},
		{"prod_2025_10_21", domain.EnvironmentProduction, "2025-10-21", true},
		{"Live_2025_03_31", domain.EnvironmentProduction, "2025-03-31", true},
		{"mobile-app_2024_02_29", domain.EnvironmentStaging, "2024-02-29", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := ParseFixVersion(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.wantEnv, info.Environment)
			assert.Equal(t, tt.wantDay, info.Date.Format("2006-01-02"))
		})
	}
}

func TestParseFixVersionRejects(t *testing.T) {
	names := []string{
		"Live - 32/Jan/2025",     // no such day
		"app_2025_02_30",         // no such day
		"app_2025_13_01",         // no such month
		"v1.0.0",                 // bare semver is not a deployment marker
		"1.2.3",
		"Version - 21/Oct/2025",  // unknown release train
		"Live - Oct/21/2025",     // wrong date order
		"Live - 21/October/2025", // month must be abbreviated
		"2025_10_21",             // missing prefix
		"Sprint 42",
		"",
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			_, ok := ParseFixVersion(name)
			assert.False(t, ok)
		})
	}
}

func TestParseFixVersionNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		for _, name := range []string{"Live - 99/Zzz/0000", "___", "x_0000_00_00"} {
			ParseFixVersion(name)
		}
	})
}

func TestParseFixVersionDateIsMidnightUTC(t *testing.T) {
	info, ok := ParseFixVersion("Live - 21/Oct/2025")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC), info.Date)
}
