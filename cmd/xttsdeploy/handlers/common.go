// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command
// definitions in the commands package. Handlers are framework-agnostic
// and can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/voicekit/xttsdeploy/internal/config"
	"github.com/voicekit/xttsdeploy/internal/deploy"
	"github.com/voicekit/xttsdeploy/internal/observe"
	"github.com/voicekit/xttsdeploy/internal/platform/aws"
	"github.com/voicekit/xttsdeploy/internal/platform/ssh"
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// loadConfig loads and validates the deployment configuration.
	loadConfig = config.LoadFile

	// loadTimeouts loads the environment-tunable timeouts.
	loadTimeouts = config.LoadTimeouts

	// newCapacityClient creates the provider client.
	newCapacityClient = func(ctx context.Context, cfg *config.Config) (aws.CapacityClient, error) {
		return aws.NewRealClient(ctx, cfg.Region, cfg.Credentials.AccessKeyID, cfg.Credentials.SecretAccessKey)
	}

	// newConnector builds the SSH connector for the target host.
	newConnector = func(cfg *config.Config, timeouts *config.Timeouts) (deploy.Connector, error) {
		key, err := os.ReadFile(cfg.SSH.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key %s: %w", cfg.SSH.PrivateKeyPath, err)
		}
		return func(ctx context.Context, host string) (deploy.Session, error) {
			client, err := ssh.NewClient(&ssh.Config{
				Host:           host,
				Port:           cfg.SSH.Port,
				User:           cfg.SSH.User,
				PrivateKey:     key,
				ConnectTimeout: timeouts.SSHConnect,
				RetryDelay:     timeouts.RetryInitialDelay,
			})
			if err != nil {
				return nil, err
			}
			return client.Connect(ctx)
		}, nil
	}

	// newObserver creates the console observer.
	newObserver = func() observe.Observer { return observe.NewConsole() }
)
