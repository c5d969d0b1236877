// Package config provides environment-based configuration helpers
// for go-camhub commands.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads a .env file and sets environment variables. A missing file is
// not fatal; callers can ignore the error and fall back to system env.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Env returns the value of the environment variable named by key,
// or fallback if unset or empty.
func Env(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// EnvInt returns the integer value of the environment variable named by key,
// or fallback if unset, empty, or not a valid integer.
func EnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// EnvFloat returns the float value of the environment variable named by key,
// or fallback if unset, empty, or not a valid number.
func EnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// EnvBool returns the boolean value of the environment variable named by key,
// or fallback if unset or not parseable.
func EnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}
