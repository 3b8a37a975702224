package wall

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hueview/wallpaint/internal/timeutil"
)

// FilterConfig is the observation acceptance policy applied during
// reconciliation. Observations failing the policy are silently dropped.
type FilterConfig struct {
	// MinSize is the floor, in meters, that both extent dimensions must
	// meet or exceed.
	MinSize float64
	// MaxDistance is the ceiling, in meters, on the distance between an
	// observation's pose and the reference pose.
	MaxDistance float64
}

// DefaultFilterConfig returns the default acceptance policy.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinSize:     0.5,
		MaxDistance: 5.0,
	}
}

// RestartPolicy controls what happens to the registry on session restart and
// resume.
type RestartPolicy string

const (
	// RestartClear drops all entities on restart. Recommended default: it
	// avoids presenting stale geometry after tracking was lost.
	RestartClear RestartPolicy = "clear"
	// RestartPreserve keeps entities across restart.
	RestartPreserve RestartPolicy = "preserve"
)

// Config holds the construction parameters for a Controller.
type Config struct {
	Filter         FilterConfig
	ThrottleWindow time.Duration
	Restart        RestartPolicy
	// Clock is optional; if nil, the real clock is used.
	Clock timeutil.Clock
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		Filter:         DefaultFilterConfig(),
		ThrottleWindow: DefaultThrottleWindow,
		Restart:        RestartClear,
	}
}

// Validate checks the configuration for out-of-range values.
func (c Config) Validate() error {
	if c.Filter.MinSize < 0 {
		return fmt.Errorf("filter min size must be >= 0, got %v", c.Filter.MinSize)
	}
	if c.Filter.MaxDistance <= 0 {
		return fmt.Errorf("filter max distance must be > 0, got %v", c.Filter.MaxDistance)
	}
	if c.ThrottleWindow < 0 {
		return fmt.Errorf("throttle window must be >= 0, got %v", c.ThrottleWindow)
	}
	switch c.Restart {
	case RestartClear, RestartPreserve, "":
	default:
		return fmt.Errorf("unknown restart policy %q", c.Restart)
	}
	return nil
}

// fileConfig is the JSON schema for on-disk configuration. Fields omitted
// from the file retain their defaults, so partial configs are safe.
type fileConfig struct {
	MinSize        *float64 `json:"min_size,omitempty"`
	MaxDistance    *float64 `json:"max_distance,omitempty"`
	ThrottleWindow *string  `json:"throttle_window,omitempty"` // duration string like "100ms"
	RestartPolicy  *string  `json:"restart_policy,omitempty"`
}

// LoadConfig loads a Config from a JSON file, starting from DefaultConfig.
// The file must have a .json extension and be under the max file size.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return cfg, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if fc.MinSize != nil {
		cfg.Filter.MinSize = *fc.MinSize
	}
	if fc.MaxDistance != nil {
		cfg.Filter.MaxDistance = *fc.MaxDistance
	}
	if fc.ThrottleWindow != nil {
		d, err := time.ParseDuration(*fc.ThrottleWindow)
		if err != nil {
			return cfg, fmt.Errorf("invalid throttle_window: %w", err)
		}
		cfg.ThrottleWindow = d
	}
	if fc.RestartPolicy != nil {
		cfg.Restart = RestartPolicy(*fc.RestartPolicy)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
