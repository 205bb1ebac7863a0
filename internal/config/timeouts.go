package config

import (
	"os"
	"time"
)

// Timeouts holds all configurable timeout values.
// These values can be customized via environment variables.
type Timeouts struct {
	SpotFulfillment   time.Duration // Timeout for a spot request to be fulfilled
	InstanceRunning   time.Duration // Timeout for the instance to reach running state
	SSHConnect        time.Duration // Timeout for the SSH service to accept connections
	Build             time.Duration // Timeout for a single build variant
	Activation        time.Duration // Timeout for stop/start of the workload
	Cleanup           time.Duration // Timeout for the full cleanup sweep
	RetryInitialDelay time.Duration // Initial delay between poll attempts
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - XTTSDEPLOY_TIMEOUT_SPOT_FULFILLMENT (default: 10m)
//   - XTTSDEPLOY_TIMEOUT_INSTANCE_RUNNING (default: 5m)
//   - XTTSDEPLOY_TIMEOUT_SSH_CONNECT (default: 5m)
//   - XTTSDEPLOY_TIMEOUT_BUILD (default: 30m)
//   - XTTSDEPLOY_TIMEOUT_ACTIVATION (default: 10m)
//   - XTTSDEPLOY_TIMEOUT_CLEANUP (default: 10m)
//   - XTTSDEPLOY_RETRY_INITIAL_DELAY (default: 5s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		SpotFulfillment:   parseDuration("XTTSDEPLOY_TIMEOUT_SPOT_FULFILLMENT", 10*time.Minute),
		InstanceRunning:   parseDuration("XTTSDEPLOY_TIMEOUT_INSTANCE_RUNNING", 5*time.Minute),
		SSHConnect:        parseDuration("XTTSDEPLOY_TIMEOUT_SSH_CONNECT", 5*time.Minute),
		Build:             parseDuration("XTTSDEPLOY_TIMEOUT_BUILD", 30*time.Minute),
		Activation:        parseDuration("XTTSDEPLOY_TIMEOUT_ACTIVATION", 10*time.Minute),
		Cleanup:           parseDuration("XTTSDEPLOY_TIMEOUT_CLEANUP", 10*time.Minute),
		RetryInitialDelay: parseDuration("XTTSDEPLOY_RETRY_INITIAL_DELAY", 5*time.Second),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}

	return d
}
