// Package config provides configuration for the go-cvstream commands.
package config

import (
	"os"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvPort     = "CVSTREAM_PORT"
	EnvSource   = "CVSTREAM_SOURCE"
	EnvDataDir  = "CV_DATA_DIR"
	EnvLogLevel = "LOG_LEVEL"
	EnvConfig   = "CVSTREAM_CONFIG"
)

// Port returns the listen port from CVSTREAM_PORT.
// Falls back to the provided default if not set.
func Port(defaultPort string) string {
	if p := os.Getenv(EnvPort); p != "" {
		return strings.TrimPrefix(p, ":")
	}
	return defaultPort
}

// Source returns the capture source from CVSTREAM_SOURCE.
// Falls back to the provided default if not set.
func Source(defaultSource string) string {
	if s, ok := os.LookupEnv(EnvSource); ok {
		return s
	}
	return defaultSource
}

// DataDir returns the cascade data directory from CV_DATA_DIR.
// Falls back to the provided default if not set.
func DataDir(defaultDir string) string {
	if d := os.Getenv(EnvDataDir); d != "" {
		return d
	}
	return defaultDir
}

// LogLevel returns the log level from LOG_LEVEL or "info".
func LogLevel() string {
	if l := os.Getenv(EnvLogLevel); l != "" {
		return l
	}
	return "info"
}

// File returns the YAML config path from CVSTREAM_CONFIG, or "".
func File() string {
	return os.Getenv(EnvConfig)
}
