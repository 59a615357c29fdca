package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
)

var (
	relativeRangeRe = regexp.MustCompile(`^(\d+)([dwm])$`)
	quarterRangeRe  = regexp.MustCompile(`^[Qq]([1-4])-(\d{4})$`)
)

// ParseDateRange turns a range expression into a half-open window
// [since, until). Supported forms: relative ("90d", "12w", "6m"),
// quarter ("Q1-2025"), and explicit "YYYY-MM-DD:YYYY-MM-DD" where the
// end date is inclusive.
func ParseDateRange(s string, now time.Time) (domain.DateWindow, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.DateWindow{}, &ConfigError{Field: "date range", Message: "empty range expression"}
	}

	if m := relativeRangeRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n == 0 {
			return domain.DateWindow{}, &ConfigError{Field: "date range", Message: "zero-length range"}
		}
		var since time.Time
		switch m[2] {
		case "d":
			since = now.AddDate(0, 0, -n)
		case "w":
			since = now.AddDate(0, 0, -7*n)
		case "m":
			since = now.AddDate(0, -n, 0)
		}
		return domain.DateWindow{Since: since, Until: now}, nil
	}

	if m := quarterRangeRe.FindStringSubmatch(s); m != nil {
		q, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		since := time.Date(year, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
		return domain.DateWindow{Since: since, Until: since.AddDate(0, 3, 0)}, nil
	}

	if start, end, ok := strings.Cut(s, ":"); ok {
		since, err := time.Parse("2006-01-02", start)
		if err != nil {
			return domain.DateWindow{}, &ConfigError{Field: "date range", Message: fmt.Sprintf("invalid start date %q", start)}
		}
		last, err := time.Parse("2006-01-02", end)
		if err != nil {
			return domain.DateWindow{}, &ConfigError{Field: "date range", Message: fmt.Sprintf("invalid end date %q", end)}
		}
		until := last.AddDate(0, 0, 1)
		if !since.Before(until) {
			return domain.DateWindow{}, &ConfigError{Field: "date range", Message: "start date is after end date"}
		}
		return domain.DateWindow{Since: since, Until: until}, nil
	}

	return domain.DateWindow{}, &ConfigError{Field: "date range", Message: fmt.Sprintf("unrecognized range expression %q", s)}
}
