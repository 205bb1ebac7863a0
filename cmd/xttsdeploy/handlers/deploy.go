package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/voicekit/xttsdeploy/internal/build"
	"github.com/voicekit/xttsdeploy/internal/deploy"
	"github.com/voicekit/xttsdeploy/internal/health"
	"github.com/voicekit/xttsdeploy/internal/platform/ssh"
	"github.com/voicekit/xttsdeploy/internal/provision"
)

// Deploy handles the deploy command.
//
// It wires the full pipeline from configuration and runs one deployment.
// The run's audit record is summarized on stdout; a healthy deployment
// served by a fallback variant is called out as degraded.
func Deploy(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	timeouts := loadTimeouts()
	observer := newObserver()

	log.Printf("Deploying project %s to region %s", cfg.Project, cfg.Region)

	client, err := newCapacityClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}

	connector, err := newConnector(cfg, timeouts)
	if err != nil {
		return err
	}

	coordinator := deploy.NewCoordinator(deploy.Options{
		Provisioner: provision.NewProvisioner(client, cfg.Instance, cfg.Project, timeouts, observer, nil),
		Connect:     connector,
		NewBuilder: func(runner ssh.Communicator) deploy.ArtifactBuilder {
			return build.NewBuilder(runner, cfg.Build.Variants, timeouts.Build, observer)
		},
		Verifier: health.NewVerifier(&http.Client{}, observer),
		Config:   cfg,
		Timeouts: timeouts,
		Observer: observer,
	})

	record, err := coordinator.Deploy(ctx)
	if record != nil {
		printRecord(record)
	}
	if err != nil {
		return fmt.Errorf("deploy failed: %w", err)
	}
	return nil
}

// printRecord summarizes a deployment record for the operator.
func printRecord(r *deploy.Record) {
	fmt.Printf("\nDeployment %s\n", r.Outcome)
	fmt.Printf("  host:     %s (%s)\n", r.Host, r.InstanceID)
	if r.Artifact != "" {
		fmt.Printf("  artifact: %s\n", r.Artifact)
	}
	for _, a := range r.BuildAttempts {
		fmt.Printf("  build:    %-16s %s\n", a.Variant, a.Outcome)
	}
	if len(r.Health) > 0 {
		last := r.Health[len(r.Health)-1]
		fmt.Printf("  health:   %d probes, last %s\n", len(r.Health), last.Outcome)
	}
	if r.Degraded() && r.Outcome == deploy.OutcomeHealthy {
		fmt.Printf("  WARNING: serving a fallback build variant\n")
	}
	fmt.Printf("  duration: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
}
