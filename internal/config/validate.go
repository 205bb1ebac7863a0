package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Device mode values for the workload container.
const (
	DeviceCPU = "cpu"
	DeviceGPU = "gpu"
)

// maxHealthAttempts bounds the retained health-check sequence per
// deployment record.
const maxHealthAttempts = 1000

// Validate checks the configuration and returns a detailed error on the
// first problem found.
func (c *Config) Validate() error {
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}

	if err := c.validateInstance(); err != nil {
		return fmt.Errorf("instance validation failed: %w", err)
	}
	if err := c.validateSSH(); err != nil {
		return fmt.Errorf("ssh validation failed: %w", err)
	}
	if err := c.validateBuild(); err != nil {
		return fmt.Errorf("build validation failed: %w", err)
	}
	if err := c.validateWorkload(); err != nil {
		return fmt.Errorf("workload validation failed: %w", err)
	}
	if err := c.validateHealth(); err != nil {
		return fmt.Errorf("health validation failed: %w", err)
	}

	return nil
}

func (c *Config) validateInstance() error {
	if c.Instance.Type == "" {
		return fmt.Errorf("instance.type is required")
	}
	if c.Instance.ImageID == "" {
		return fmt.Errorf("instance.image_id is required")
	}
	if c.Instance.AllocationID == "" {
		return fmt.Errorf("instance.allocation_id is required")
	}
	if !strings.HasPrefix(c.Instance.AllocationID, "eipalloc-") {
		return fmt.Errorf("instance.allocation_id %q is not an elastic IP allocation ID", c.Instance.AllocationID)
	}
	if c.Instance.KeyName == "" {
		return fmt.Errorf("instance.key_name is required")
	}
	if c.Instance.VolumeSizeGB <= 0 {
		return fmt.Errorf("instance.volume_size_gb must be positive, got %d", c.Instance.VolumeSizeGB)
	}
	if c.Instance.MaxSpotPrice != "" {
		price, err := strconv.ParseFloat(c.Instance.MaxSpotPrice, 64)
		if err != nil {
			return fmt.Errorf("instance.max_spot_price %q is not a number", c.Instance.MaxSpotPrice)
		}
		if price <= 0 {
			return fmt.Errorf("instance.max_spot_price must be positive, got %s", c.Instance.MaxSpotPrice)
		}
	}
	return nil
}

func (c *Config) validateSSH() error {
	if c.SSH.User == "" {
		return fmt.Errorf("ssh.user is required")
	}
	if c.SSH.PrivateKeyPath == "" {
		return fmt.Errorf("ssh.private_key_path is required")
	}
	if _, err := os.Stat(c.SSH.PrivateKeyPath); err != nil {
		return fmt.Errorf("ssh.private_key_path: %w", err)
	}
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port %d is out of range", c.SSH.Port)
	}
	return nil
}

func (c *Config) validateBuild() error {
	if len(c.Build.Variants) == 0 {
		return fmt.Errorf("build.variants must list at least one variant")
	}
	seen := make(map[string]bool, len(c.Build.Variants))
	for i, v := range c.Build.Variants {
		if v.Name == "" {
			return fmt.Errorf("build.variants[%d].name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("build.variants has duplicate name %q", v.Name)
		}
		seen[v.Name] = true
		if v.Recipe == "" {
			return fmt.Errorf("build variant %q: recipe is required", v.Name)
		}
		if v.ImageRef == "" {
			return fmt.Errorf("build variant %q: image_ref is required", v.Name)
		}
	}
	return nil
}

func (c *Config) validateWorkload() error {
	if c.Workload.DeviceMode != DeviceCPU && c.Workload.DeviceMode != DeviceGPU {
		return fmt.Errorf("workload.device_mode must be %q or %q, got %q", DeviceCPU, DeviceGPU, c.Workload.DeviceMode)
	}
	if c.Workload.Port < 1 || c.Workload.Port > 65535 {
		return fmt.Errorf("workload.port %d is out of range", c.Workload.Port)
	}
	return nil
}

func (c *Config) validateHealth() error {
	if c.Health.MaxAttempts < 1 || c.Health.MaxAttempts > maxHealthAttempts {
		return fmt.Errorf("health.max_attempts must be between 1 and %d, got %d", maxHealthAttempts, c.Health.MaxAttempts)
	}
	if c.Health.Interval <= 0 {
		return fmt.Errorf("health.interval must be positive, got %v", c.Health.Interval)
	}
	if c.Health.RequestTimeout <= 0 {
		return fmt.Errorf("health.request_timeout must be positive, got %v", c.Health.RequestTimeout)
	}
	if !strings.HasPrefix(c.Health.Path, "/") {
		return fmt.Errorf("health.path must start with /, got %q", c.Health.Path)
	}
	return nil
}
