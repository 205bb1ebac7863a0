package commands

import (
	"github.com/spf13/cobra"

	"github.com/voicekit/xttsdeploy/cmd/xttsdeploy/handlers"
)

// Status returns the status command.
//
// The status command reports what is currently bound to the project's
// elastic address and whether the inference endpoint answers.
func Status() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the instance and workload bound to the elastic address",
		Long: `Status inspects the project's current deployment:

  - the elastic address and the instance bound to it, if any
  - the instance's lifecycle state
  - a single probe of the inference health endpoint

Example:
  xttsdeploy status -c xttsdeploy.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Status(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to deployment configuration file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}
