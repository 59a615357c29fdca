package collector

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
)

// Fix version naming conventions carried over from the release
// process: "Live - 21/Oct/2025" style and "PREFIX_2025_10_21" style.
// Anything else, bare semver included, is not a deployment marker.
var (
	dashVersionRe       = regexp.MustCompile(`^\s*([A-Za-z]+)\s*-\s*(\d{1,2}/[A-Za-z]{3}/\d{4})\s*$`)
	underscoreVersionRe = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9-]*)_(\d{4})_(\d{2})_(\d{2})$`)
)

// FixVersionInfo is the deployment environment and date extracted from
// a parseable fix version name
type FixVersionInfo struct {
	Environment domain.Environment
	Date        time.Time
}

// ParseFixVersion extracts environment and date from a fix version
// name. Returns false for names that do not follow either convention
// and for names with impossible calendar dates; parsing never panics
// and never fails a collection.
func ParseFixVersion(name string) (FixVersionInfo, bool) {
	if m := dashVersionRe.FindStringSubmatch(name); m != nil {
		env, ok := dashEnvironment(m[1])
		if !ok {
			return FixVersionInfo{}, false
		}
		date, err := time.Parse("2/Jan/2006", m[2])
		if err != nil {
			return FixVersionInfo{}, false
		}
		return FixVersionInfo{Environment: env, Date: date}, true
	}

	if m := underscoreVersionRe.FindStringSubmatch(name); m != nil {
		date, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", m[2], m[3], m[4]))
		if err != nil {
			return FixVersionInfo{}, false
		}
		return FixVersionInfo{Environment: prefixEnvironment(m[1]), Date: date}, true
	}

	return FixVersionInfo{}, false
}

// dashEnvironment maps the word before the dash. Only the two known
// release-train names count; "Version - 1/Jan/2025" is not a deployment.
func dashEnvironment(word string) (domain.Environment, bool) {
	switch strings.ToLower(word) {
	case "live":
		return domain.EnvironmentProduction, true
	case "beta":
		return domain.EnvironmentStaging, true
	default:
		return "", false
	}
}

func prefixEnvironment(prefix string) domain.Environment {
	switch strings.ToLower(prefix) {
	case "live", "prod", "production":
		return domain.EnvironmentProduction
	default:
		return domain.EnvironmentStaging
	}
}
