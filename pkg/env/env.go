// Package env reads the handful of process settings needed before config loads.
package env

import (
	"os"
	"strconv"
	"strings"
)

func lookup(key string) (string, bool) {
	raw, ok := os.LookupEnv(key)
	raw = strings.TrimSpace(raw)
	return raw, ok && raw != ""
}

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if raw, ok := lookup(key); ok {
		return raw
	}
	return fallback
}

// GetBool is Get for booleans. Unparsable values yield fallback.
func GetBool(key string, fallback bool) bool {
	raw, ok := lookup(key)
	if !ok {
		return fallback
	}
	if val, err := strconv.ParseBool(raw); err == nil {
		return val
	}
	return fallback
}
