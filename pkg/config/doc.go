// Package config loads application configuration from environment
// variables, with an optional YAML policy file for per-category
// admission overrides. All environment variables use the PULSE_ prefix
// and fall back to sensible defaults when unset.
package config
