package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/pulse/pkg/ratelimit"
)

// RateLimitPolicy holds per-category admission overrides loaded from a
// YAML policy file. Categories not listed use the default policy.
type RateLimitPolicy struct {
	Categories map[string]PolicyEntry `yaml:"categories"`
}

// PolicyEntry is one category's admission policy
type PolicyEntry struct {
	MaxRequests   int `yaml:"max_requests"`
	WindowSeconds int `yaml:"window_seconds"`
}

// Config converts a policy entry into a rate limiter configuration
func (e PolicyEntry) Config() ratelimit.Config {
	return ratelimit.Config{
		MaxRequests: e.MaxRequests,
		Window:      time.Duration(e.WindowSeconds) * time.Second,
	}
}

// LoadRateLimitPolicy loads per-category policies from a YAML file. A
// missing path returns an empty policy so the default applies everywhere.
func LoadRateLimitPolicy(path string) (*RateLimitPolicy, error) {
	if path == "" {
		return &RateLimitPolicy{Categories: make(map[string]PolicyEntry)}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy RateLimitPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if policy.Categories == nil {
		policy.Categories = make(map[string]PolicyEntry)
	}

	for name, entry := range policy.Categories {
		if err := entry.Config().Validate(); err != nil {
			return nil, fmt.Errorf("invalid policy for category %q: %w", name, err)
		}
	}

	return &policy, nil
}
