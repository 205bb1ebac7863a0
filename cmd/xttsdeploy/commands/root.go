// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing, flag binding, and validation. Command execution is delegated
// to handler functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the xttsdeploy CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "xttsdeploy",
		Short: "Deploy the XTTS inference server onto spot GPU capacity",
	}

	cmd.AddCommand(Deploy())
	cmd.AddCommand(Status())
	cmd.AddCommand(Cleanup())
	cmd.AddCommand(Version())

	return cmd
}
