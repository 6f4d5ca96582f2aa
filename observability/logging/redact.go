package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values such as bearer tokens in log output.
const RedactedValue = "[REDACTED]"

var safeKeys = map[string]struct{}{
	"service":    {},
	"env":        {},
	"command":    {},
	"method":     {},
	"account":    {},
	"tier":       {},
	"code":       {},
	"request_id": {},
	"receipt":    {},
	"error":      {},
	"remote":     {},
}

// IsSafeKey reports whether values logged under key are emitted verbatim.
func IsSafeKey(key string) bool {
	_, ok := safeKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// known to carry public data. Empty values are passed through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsSafeKey(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
