// Package config loads the queue subsystem's configuration from environment
// variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: values
// come from the process environment with an optional .env fallback, and are
// parsed into tagged structs. Each struct type is parsed once per process and
// cached, so independent components can call Load for the sections they need
// without re-reading the environment.
//
// The Config struct covers the full recognized surface: broker and result
// backend URLs, worker sizing and time limits, retry policy defaults,
// dead-letter retention, beat lease TTL, and the metrics export port.
package config
