package cmd

import (
	"github.com/spf13/cobra"

	"gooze.dev/pkg/jgooze/internal/domain"
)

// mergeCmd represents the merge command.
var mergeCmd = newMergeCmd()

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge sharded results into the main results database",
		Long:  "Merge the results databases of shard_* subdirectories of the output directory into the main results database.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			wf, cleanup, err := newWorkflow(cmd, storeDSN(0, 1), defaultTimeout)
			if err != nil {
				return err
			}
			defer cleanup()

			return wf.Merge(cmd.Context(), domain.MergeArgs{Output: outputDir()})
		},
	}

	return cmd
}

func init() {
	rootCmd.AddCommand(mergeCmd)
}
