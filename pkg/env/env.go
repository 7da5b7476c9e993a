// Package env reads typed settings from environment variables.
// Unset or unparsable values yield the supplied default.
package env

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// lookup parses key with parse, or returns def when the variable is empty or malformed
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// GetString returns the variable or def when it is unset
func GetString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetStringFromFile prefers the file named by KEY_FILE (Docker secrets) over KEY.
// An unreadable file falls back to the plain variable.
func GetStringFromFile(key, def string) string {
	if path := os.Getenv(key + "_FILE"); path != "" {
		if content, err := os.ReadFile(filepath.Clean(path)); err == nil {
			return string(bytes.TrimSpace(content))
		}
	}
	return GetString(key, def)
}

func GetInt(key string, def int) int {
	return lookup(key, def, strconv.Atoi)
}

func GetBool(key string, def bool) bool {
	return lookup(key, def, strconv.ParseBool)
}

// GetDuration accepts Go duration syntax; a bare "0" disables the setting
func GetDuration(key string, def time.Duration) time.Duration {
	return lookup(key, def, func(s string) (time.Duration, error) {
		if s == "0" {
			return 0, nil
		}
		return time.ParseDuration(s)
	})
}

// GetStringSlice splits a comma separated variable, dropping empty items
func GetStringSlice(key string, def []string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return def
	}
	return items
}
