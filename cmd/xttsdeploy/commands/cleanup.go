package commands

import (
	"github.com/spf13/cobra"

	"github.com/voicekit/xttsdeploy/cmd/xttsdeploy/handlers"
)

// Cleanup returns the cleanup command.
//
// The cleanup command reclaims every provider resource carrying the
// project's ownership labels, in dependency order. The elastic address
// allocation itself is kept: it is the project's stable identity.
func Cleanup() *cobra.Command {
	var configPath string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Reclaim all provider resources owned by the project",
		Long: `Cleanup discovers resources by ownership label and reclaims them in
dependency order:

  - open spot capacity requests (cancelled)
  - elastic address bindings (disassociated; the allocation is kept)
  - instances (terminated)
  - leftover volumes (deleted)
  - security groups (deleted)

Discovery is label-based, so resources leaked by an aborted deploy are
reclaimed too. Failures on individual resources do not stop the sweep;
everything that could not be reclaimed is reported at the end.

Example:
  xttsdeploy cleanup -c xttsdeploy.yaml --dry-run

WARNING: without --dry-run this terminates the serving instance.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Cleanup(cmd.Context(), configPath, dryRun)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to deployment configuration file (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only report what would be reclaimed")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
