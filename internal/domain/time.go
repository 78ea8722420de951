package domain

import (
	"strings"
	"time"
)

// ParsePostTime разбирает временную метку X API (RFC3339, UTC).
func ParsePostTime(value string) (time.Time, error) {
	cleaned := strings.TrimSpace(value)
	parsed, err := time.Parse(time.RFC3339, cleaned)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

// FormatPostTime приводит время к формату временных меток X API.
func FormatPostTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}
