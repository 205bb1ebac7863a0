package commands

import (
	"github.com/spf13/cobra"

	"github.com/voicekit/xttsdeploy/cmd/xttsdeploy/handlers"
)

// Deploy returns the deploy command.
//
// The deploy command runs the full pipeline: acquire spot capacity bound
// to the project's elastic address, build the inference image through
// the tiered fallback chain, swap the serving container, and verify the
// inference endpoint answers before declaring success.
func Deploy() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Provision capacity, build, activate, and verify the XTTS server",
		Long: `Deploy runs the full deployment pipeline:

  1. Provisioning: acquire a spot instance bound to the project's
     elastic address, reusing a running one when possible.
  2. Building: try each build variant in priority order on the host;
     the first recipe that succeeds wins.
  3. Activating: replace the serving container with the new artifact.
  4. Verifying: poll the inference health endpoint until it answers.

The deployment only counts as healthy once the inference server itself
responds. A healthy deployment served by a fallback variant is reported
as degraded.

Example:
  xttsdeploy deploy -c xttsdeploy.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Deploy(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to deployment configuration file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
