package shared

import (
	"os"
	"strconv"
)

// LookupEnvWithDefault returns the env var value or the default when unset.
func LookupEnvWithDefault(key string, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// ParsePositiveInt converts a rule parameter into a positive int, falling back to def.
func ParsePositiveInt(value string, def int) int {
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
