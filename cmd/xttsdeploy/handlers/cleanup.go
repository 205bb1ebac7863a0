package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/voicekit/xttsdeploy/internal/cleanup"
)

// Cleanup handles the cleanup command.
//
// It sweeps all resources carrying the project's ownership labels. With
// dryRun set, nothing is mutated and the would-be reclamations are
// listed instead.
func Cleanup(ctx context.Context, configPath string, dryRun bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	timeouts := loadTimeouts()

	client, err := newCapacityClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider client: %w", err)
	}

	if dryRun {
		log.Printf("Dry run: listing resources owned by project %s", cfg.Project)
	} else {
		log.Printf("Reclaiming resources owned by project %s", cfg.Project)
	}

	sweeper := cleanup.NewSweeper(client, timeouts, newObserver())
	reclaimed, err := sweeper.Sweep(ctx, cfg.Project, dryRun)

	for _, r := range reclaimed {
		fmt.Printf("  %-16s %-24s %s\n", r.Kind, r.ID, r.Detail)
	}
	if len(reclaimed) == 0 {
		fmt.Println("  nothing to reclaim")
	}

	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	if !dryRun {
		log.Printf("Reclaimed %d resources", len(reclaimed))
	}
	return nil
}
