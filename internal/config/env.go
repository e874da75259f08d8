package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Elghamazy/comoe/internal/log"
)

// envValue resolves one environment variable with the fallback semantics
// shared by every typed accessor: unset and empty both yield the default,
// and a value that fails conversion yields the default with a warning. The
// chosen source is logged at debug so an operator can audit the effective
// configuration.
func envValue[T any](key string, defaultValue T, convert func(string) (T, error)) T {
	logger := log.WithComponent("config")

	raw, ok := os.LookupEnv(key)
	if !ok {
		logDefault(logger, key, defaultValue, "using default value")
		return defaultValue
	}
	if raw == "" {
		logDefault(logger, key, defaultValue, "using default value (environment variable is empty)")
		return defaultValue
	}

	v, err := convert(raw)
	if err != nil {
		logger.Warn().
			Str("key", key).
			Str("value", raw).
			Interface("default", defaultValue).
			Msg("invalid value in environment variable, using default")
		return defaultValue
	}
	logger.Debug().
		Str("key", key).
		Interface("value", v).
		Str("source", "environment").
		Msg("using environment variable")
	return v
}

func logDefault[T any](logger zerolog.Logger, key string, def T, msg string) {
	logger.Debug().
		Str("key", key).
		Interface("default", def).
		Str("source", "default").
		Msg(msg)
}

// ParseString reads a string from the environment or returns defaultValue.
// Values of keys that look sensitive (token, password, secret) are logged
// only as present, never verbatim.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")

	value, ok := os.LookupEnv(key)
	if !ok {
		logDefault(logger, key, defaultValue, "using default value")
		return defaultValue
	}
	if value == "" {
		logDefault(logger, key, defaultValue, "using default value (environment variable is empty)")
		return defaultValue
	}

	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitiveKey(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", value)
	}
	ev.Msg("using environment variable")
	return value
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "token") ||
		strings.Contains(k, "password") ||
		strings.Contains(k, "secret")
}

// ParseInt reads an integer from the environment, falling back to
// defaultValue on parse errors.
func ParseInt(key string, defaultValue int) int {
	return envValue(key, defaultValue, strconv.Atoi)
}

// ParseDuration reads a duration in Go syntax (e.g. "5s", "1m30s").
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	return envValue(key, defaultValue, time.ParseDuration)
}

// ParseBool reads a boolean. Accepted forms: true/false, 1/0, yes/no,
// case-insensitive.
func ParseBool(key string, defaultValue bool) bool {
	return envValue(key, defaultValue, func(raw string) (bool, error) {
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, errors.New("not a boolean")
	})
}

// ParseFloat reads a float64.
func ParseFloat(key string, defaultValue float64) float64 {
	return envValue(key, defaultValue, func(raw string) (float64, error) {
		return strconv.ParseFloat(raw, 64)
	})
}
