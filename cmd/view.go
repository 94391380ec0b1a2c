package cmd

import (
	"github.com/spf13/cobra"

	"gooze.dev/pkg/jgooze/internal/controller"
	"gooze.dev/pkg/jgooze/internal/domain"
)

// viewCmd represents the view command.
var viewCmd = newViewCmd()

func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "View the results of the last run",
		Long:  "View the results stored in the results database as a table or as YAML.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, err := cmd.Flags().GetString(formatFlagName)
			if err != nil {
				return err
			}

			format, err := controller.ParseFormat(name)
			if err != nil {
				return err
			}

			wf, cleanup, err := newWorkflow(cmd, storeDSN(0, 1), defaultTimeout)
			if err != nil {
				return err
			}
			defer cleanup()

			return wf.View(cmd.Context(), domain.ViewArgs{Format: format})
		},
	}

	cmd.Flags().StringP(formatFlagName, "f", string(controller.FormatTable), "output format: table or yaml")

	return cmd
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
