package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// Keys the daemon logs in the clear. Anything else passed through MaskField
// is treated as a secret.
var clearKeys = map[string]struct{}{
	"service":   {},
	"env":       {},
	"error":     {},
	"reason":    {},
	"route":     {},
	"status":    {},
	"requestid": {},
	"operation": {},
	"gameid":    {},
	"account":   {},
	"digest":    {},
	"asset":     {},
}

func clearKey(key string) bool {
	_, ok := clearKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue hides non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns key=value with the value hidden unless key is known to be
// safe.
func MaskField(key, value string) slog.Attr {
	if clearKey(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}
