package handlers

import (
	"context"
	"fmt"

	"github.com/voicekit/xttsdeploy/internal/health"
	"github.com/voicekit/xttsdeploy/internal/observe"
)

// Status handles the status command.
//
// It reports the instance bound to the project's elastic address and
// probes the inference endpoint once.
func Status(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	client, err := newCapacityClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}

	addr, err := client.DescribeAddress(ctx, cfg.Instance.AllocationID)
	if err != nil {
		return fmt.Errorf("failed to resolve elastic address: %w", err)
	}

	fmt.Printf("Project %s\n", cfg.Project)
	fmt.Printf("  address:  %s (%s)\n", addr.PublicIP, addr.AllocationID)

	if addr.InstanceID == "" {
		fmt.Println("  instance: none bound")
		return nil
	}

	instance, err := client.DescribeInstance(ctx, addr.InstanceID)
	if err != nil {
		return fmt.Errorf("failed to inspect instance %s: %w", addr.InstanceID, err)
	}
	fmt.Printf("  instance: %s (%s, %s)\n", instance.ID, instance.Type, instance.State)

	endpoint := fmt.Sprintf("http://%s:%d%s", addr.PublicIP, cfg.Workload.Port, cfg.Health.Path)
	verifier := health.NewVerifier(nil, observe.Nop{})
	results, healthy, err := verifier.Verify(ctx, endpoint, health.Config{
		MaxAttempts:    1,
		Interval:       cfg.Health.Interval,
		RequestTimeout: cfg.Health.RequestTimeout,
	})
	if err != nil {
		return err
	}
	if healthy {
		fmt.Printf("  workload: healthy (%s)\n", endpoint)
	} else {
		fmt.Printf("  workload: not answering (%s", endpoint)
		if len(results) > 0 && results[0].Err != nil {
			fmt.Printf(": %v", results[0].Err)
		}
		fmt.Println(")")
	}
	return nil
}
