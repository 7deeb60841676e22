package autoscaler

import (
	"fmt"
	"time"
)

// Config tunes the scaling policy. Zero values are replaced by the defaults
// below before use.
type Config struct {
	HighWaterMark       int           `json:"high_water_mark"`
	LowWaterMark        int           `json:"low_water_mark"`
	EmergencyThreshold  int           `json:"emergency_threshold"`
	MinReplicas         int           `json:"min_replicas"`
	MaxReplicas         int           `json:"max_replicas"`
	ScaleUpStep         int           `json:"scale_up_step"`
	ScaleDownStep       int           `json:"scale_down_step"`
	Cooldown            time.Duration `json:"cooldown"`
	CheckInterval       time.Duration `json:"check_interval"`
	UnhealthyFailures   int           `json:"unhealthy_failures"`
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:      10,
		LowWaterMark:       2,
		EmergencyThreshold: 50,
		MinReplicas:        1,
		MaxReplicas:        20,
		ScaleUpStep:        2,
		ScaleDownStep:      1,
		Cooldown:           60 * time.Second,
		CheckInterval:      30 * time.Second,
		UnhealthyFailures:  5,
	}
}

func (c *Config) withDefaults() {
	d := DefaultConfig()
	if c.HighWaterMark <= 0 {
		c.HighWaterMark = d.HighWaterMark
	}
	if c.LowWaterMark <= 0 {
		c.LowWaterMark = d.LowWaterMark
	}
	if c.EmergencyThreshold <= 0 {
		c.EmergencyThreshold = d.EmergencyThreshold
	}
	if c.MinReplicas <= 0 {
		c.MinReplicas = d.MinReplicas
	}
	if c.MaxReplicas <= 0 {
		c.MaxReplicas = d.MaxReplicas
	}
	if c.ScaleUpStep <= 0 {
		c.ScaleUpStep = d.ScaleUpStep
	}
	if c.ScaleDownStep <= 0 {
		c.ScaleDownStep = d.ScaleDownStep
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.UnhealthyFailures <= 0 {
		c.UnhealthyFailures = d.UnhealthyFailures
	}
}

// Validate rejects policies that can never make progress.
func (c Config) Validate() error {
	if c.MinReplicas > c.MaxReplicas {
		return fmt.Errorf("min replicas %d exceeds max replicas %d", c.MinReplicas, c.MaxReplicas)
	}
	if c.LowWaterMark >= c.HighWaterMark {
		return fmt.Errorf("low water mark %d must be below high water mark %d", c.LowWaterMark, c.HighWaterMark)
	}
	if c.HighWaterMark > c.EmergencyThreshold {
		return fmt.Errorf("high water mark %d must not exceed emergency threshold %d", c.HighWaterMark, c.EmergencyThreshold)
	}
	return nil
}
