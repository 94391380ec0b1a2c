package cmd

import (
	"github.com/spf13/cobra"
)

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [paths...]",
		Short: "List source files and mutation counts",
		Long:  listLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			estimate, err := estimateArgs(args)
			if err != nil {
				return err
			}

			wf, cleanup, err := newWorkflow(cmd, "", defaultTimeout)
			if err != nil {
				return err
			}
			defer cleanup()

			return wf.Estimate(cmd.Context(), estimate)
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(listCmd)
}
