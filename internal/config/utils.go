package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var errEmptyList = errors.New("empty list")

// lookup parses the variable named key, falling back to def when it is unset
// or does not parse.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func getEnv(key, def string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	return lookup(key, def, strconv.Atoi)
}

func getEnvAsBool(key string, def bool) bool {
	return lookup(key, def, strconv.ParseBool)
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	return lookup(key, def, time.ParseDuration)
}

func getEnvAsFloat(key string, def float64) float64 {
	return lookup(key, def, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// getEnvAsStringSlice reads a comma separated list; blank items are dropped.
func getEnvAsStringSlice(key string, def []string) []string {
	return lookup(key, def, splitList)
}

func splitList(value string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, errEmptyList
	}
	return out, nil
}
