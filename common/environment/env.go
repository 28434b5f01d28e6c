// Package environment reads Nakama configuration from environment variables.
//
// Unset, empty and unparsable variables all yield the supplied default, so a
// typo in a deployment degrades to documented behaviour rather than a crash.
// Secrets may also be supplied through a file named by <NAME>_FILE.
package environment

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// parsed returns parse(value) for a set, non-empty variable, or def.
func parsed[T any](name string, def T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

// StringOr returns the variable's value, or def when unset or empty.
func StringOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// BoolOr accepts the strconv.ParseBool spellings ("1", "t", "true", ...).
func BoolOr(name string, def bool) bool {
	return parsed(name, def, strconv.ParseBool)
}

// IntOr parses a decimal integer.
func IntOr(name string, def int) int {
	return parsed(name, def, strconv.Atoi)
}

// Float64Or parses a floating-point number.
func Float64Or(name string, def float64) float64 {
	return parsed(name, def, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// DurationOr parses a time.Duration such as "30s" or "5m".
func DurationOr(name string, def time.Duration) time.Duration {
	return parsed(name, def, time.ParseDuration)
}

// OneOf returns the lower-cased value when it is one of allowed, otherwise
// def.
func OneOf(name, def string, allowed ...string) string {
	return parsed(name, def, func(s string) (string, error) {
		s = strings.ToLower(s)
		if !slices.Contains(allowed, s) {
			return "", fmt.Errorf("%q not allowed", s)
		}
		return s, nil
	})
}

// StringSliceOr splits a comma-separated list, trimming each element and
// dropping empty ones. A list with no elements yields def.
func StringSliceOr(name string, def []string) []string {
	return parsed(name, def, func(s string) ([]string, error) {
		var out []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("empty list")
		}
		return out, nil
	})
}

// Secret returns the value of name, or when that is empty the trimmed
// contents of the file named by name+"_FILE". Neither set yields "".
func Secret(name string) (string, error) {
	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	path := os.Getenv(name + "_FILE")
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("environment: read %s_FILE: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}
