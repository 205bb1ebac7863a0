// Package config loads and validates the deployment configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
//
// Addresses, key paths and allocation IDs are explicit fields here,
// validated at load time, rather than constants scattered through
// deploy scripts.
type Config struct {
	// Project is the ownership label applied to every provider resource.
	Project string `yaml:"project"`

	// Region is the AWS region to operate in.
	Region string `yaml:"region"`

	Instance InstanceConfig `yaml:"instance"`
	SSH      SSHConfig      `yaml:"ssh"`
	Build    BuildConfig    `yaml:"build"`
	Workload WorkloadConfig `yaml:"workload"`
	Health   HealthConfig   `yaml:"health"`

	// Credentials optionally carries static AWS credentials. When empty,
	// the default AWS credential chain is used.
	Credentials CredentialsConfig `yaml:"credentials"`
}

// InstanceConfig describes the compute capacity to acquire.
type InstanceConfig struct {
	// Type is the EC2 instance class (e.g. g4dn.xlarge).
	Type string `yaml:"type"`

	// MaxSpotPrice is the hourly price ceiling in USD for the spot
	// request (e.g. "0.30").
	MaxSpotPrice string `yaml:"max_spot_price"`

	// VolumeSizeGB is the root volume size in gigabytes.
	VolumeSizeGB int32 `yaml:"volume_size_gb"`

	// ImageID is the AMI to boot.
	ImageID string `yaml:"image_id"`

	// SecurityGroupID guards the instance.
	SecurityGroupID string `yaml:"security_group_id"`

	// AllocationID is the pre-reserved elastic IP allocation to bind.
	// The address stays stable across instance replacements, so clients
	// never need a new endpoint after a redeploy.
	AllocationID string `yaml:"allocation_id"`

	// KeyName is the EC2 key pair name injected at launch.
	KeyName string `yaml:"key_name"`
}

// SSHConfig describes how to reach the instance over SSH.
type SSHConfig struct {
	// User is the login user on the instance (e.g. ubuntu).
	User string `yaml:"user"`

	// PrivateKeyPath points to the PEM private key matching
	// Instance.KeyName.
	PrivateKeyPath string `yaml:"private_key_path"`

	// Port defaults to 22.
	Port int `yaml:"port"`
}

// BuildVariant is one candidate build recipe in the fallback chain.
type BuildVariant struct {
	// Name identifies the variant in logs and build attempt records.
	Name string `yaml:"name"`

	// Recipe is the shell command that builds the artifact. It must
	// print nothing the builder depends on; the produced image is
	// identified by ImageRef.
	Recipe string `yaml:"recipe"`

	// ImageRef is the artifact reference the recipe produces.
	ImageRef string `yaml:"image_ref"`

	// Description is shown to operators when the variant is used.
	Description string `yaml:"description"`
}

// BuildConfig holds the ordered build-variant chain.
type BuildConfig struct {
	// SourceDir is the remote directory holding the workload source.
	SourceDir string `yaml:"source_dir"`

	// Variants are tried strictly in order; the first success wins.
	Variants []BuildVariant `yaml:"variants"`
}

// WorkloadConfig holds the run configuration for the inference container.
type WorkloadConfig struct {
	// ContainerName is the name the workload container runs under.
	ContainerName string `yaml:"container_name"`

	// Port the workload listens on.
	Port int `yaml:"port"`

	// DeviceMode selects cpu or gpu execution.
	DeviceMode string `yaml:"device_mode"`

	// UseCache mounts the persistent model cache volume.
	UseCache bool `yaml:"use_cache"`

	// UseDeepSpeed enables the DeepSpeed optimization path.
	UseDeepSpeed bool `yaml:"use_deepspeed"`
}

// HealthConfig bounds the post-activation verification.
type HealthConfig struct {
	// Path is the readiness endpoint path (e.g. /health).
	Path string `yaml:"path"`

	// MaxAttempts is the poll budget.
	MaxAttempts int `yaml:"max_attempts"`

	// Interval between polls.
	Interval time.Duration `yaml:"interval"`

	// RequestTimeout bounds a single probe.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CredentialsConfig optionally carries static AWS credentials.
type CredentialsConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LoadFile reads, parses and validates the configuration from a YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults fills the documented defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.SSH.Port == 0 {
		c.SSH.Port = 22
	}
	if c.Workload.ContainerName == "" {
		c.Workload.ContainerName = "xtts-server"
	}
	if c.Workload.Port == 0 {
		c.Workload.Port = 8020
	}
	if c.Workload.DeviceMode == "" {
		c.Workload.DeviceMode = DeviceGPU
	}
	if c.Health.Path == "" {
		c.Health.Path = "/health"
	}
	if c.Health.MaxAttempts == 0 {
		c.Health.MaxAttempts = 30
	}
	if c.Health.Interval == 0 {
		c.Health.Interval = 10 * time.Second
	}
	if c.Health.RequestTimeout == 0 {
		c.Health.RequestTimeout = 5 * time.Second
	}
	if c.Build.SourceDir == "" {
		c.Build.SourceDir = "/opt/xtts"
	}
}
