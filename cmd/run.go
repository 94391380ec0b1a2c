package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/jgooze/internal/domain"
	m "gooze.dev/pkg/jgooze/internal/model"
)

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run mutation testing",
		Long:  runLongDescription,
		RunE: func(cmd *cobra.Command, args []string) error {
			shardIndex, shardCount, err := parseShardFlag(shardFlag(cmd))
			if err != nil {
				return err
			}

			runArgs, err := collectRunArgs(args, shardIndex, shardCount)
			if err != nil {
				return err
			}

			wf, cleanup, err := newWorkflow(cmd, storeDSN(shardIndex, shardCount), runArgs.Timeout)
			if err != nil {
				return err
			}
			defer cleanup()

			err = wf.Test(cmd.Context(), runArgs)
			if errors.Is(err, domain.ErrNoMutants) {
				return fmt.Errorf("%w in %v", err, runArgs.Paths)
			}

			return err
		},
	}

	configureRunFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func configureRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringP(shardFlagName, "s", "", "shard index and total shard count in the format INDEX/TOTAL (e.g., 0/3)")

	flags.Duration(timeoutFlagName, viper.GetDuration(timeoutConfigKey), "timeout of one build or test command")
	bindFlagToConfig(flags.Lookup(timeoutFlagName), timeoutConfigKey)

	flags.String(buildCommandFlagName, viper.GetString(buildCommandConfigKey), "command compiling the project")
	bindFlagToConfig(flags.Lookup(buildCommandFlagName), buildCommandConfigKey)

	flags.String(testCommandFlagName, viper.GetString(testCommandConfigKey), "command running the tests; {tests} is replaced by the covering tests")
	bindFlagToConfig(flags.Lookup(testCommandFlagName), testCommandConfigKey)

	flags.String(buildPathFlagName, viper.GetString(buildPathConfigKey), "directory, relative to the project root, the commands run in")
	bindFlagToConfig(flags.Lookup(buildPathFlagName), buildPathConfigKey)

	flags.String(failStringFlagName, viper.GetString(failStringConfigKey), "output marking a failed test run even on a zero exit code")
	bindFlagToConfig(flags.Lookup(failStringFlagName), failStringConfigKey)

	flags.String(compileFailureRegexFlagName, viper.GetString(compileFailureRegexConfigKey), "regex with the named groups file, line and col matching compile errors")
	bindFlagToConfig(flags.Lookup(compileFailureRegexFlagName), compileFailureRegexConfigKey)

	flags.Bool(schemataFlagName, viper.GetBool(schemataConfigKey), "compile all first order mutants once and select them through MUT<id> environment flags")
	bindFlagToConfig(flags.Lookup(schemataFlagName), schemataConfigKey)

	flags.Int(overloadThresholdFlagName, viper.GetInt(overloadThresholdConfigKey), "mutations per site above which schemata falls back to materialized mutants")
	bindFlagToConfig(flags.Lookup(overloadThresholdFlagName), overloadThresholdConfigKey)

	flags.String(coverageFlagName, viper.GetString(coverageConfigKey), "YAML or JSON file mapping source lines to the tests covering them")
	bindFlagToConfig(flags.Lookup(coverageFlagName), coverageConfigKey)

	flags.String(metricsFlagName, viper.GetString(metricsConfigKey), "write Prometheus metrics of the run to this file")
	bindFlagToConfig(flags.Lookup(metricsFlagName), metricsConfigKey)
}

func shardFlag(cmd *cobra.Command) string {
	shard, err := cmd.Flags().GetString(shardFlagName)
	if err != nil {
		return ""
	}

	return shard
}

func collectRunArgs(args []string, shardIndex, shardCount int) (domain.RunArgs, error) {
	estimate, err := estimateArgs(args)
	if err != nil {
		return domain.RunArgs{}, err
	}

	return domain.RunArgs{
		EstimateArgs:        estimate,
		BuildPath:           m.Path(viper.GetString(buildPathConfigKey)),
		Output:              outputDir(),
		Schemata:            viper.GetBool(schemataConfigKey),
		OverloadThreshold:   viper.GetInt(overloadThresholdConfigKey),
		ShardIndex:          shardIndex,
		ShardCount:          shardCount,
		Timeout:             viper.GetDuration(timeoutConfigKey),
		BuildCommand:        viper.GetString(buildCommandConfigKey),
		TestCommand:         viper.GetString(testCommandConfigKey),
		FailString:          viper.GetString(failStringConfigKey),
		CompileFailureRegex: viper.GetString(compileFailureRegexConfigKey),
		CoverageFile:        m.Path(viper.GetString(coverageConfigKey)),
		MetricsFile:         m.Path(viper.GetString(metricsConfigKey)),
	}, nil
}

// parseShardFlag parses INDEX/TOTAL; an empty value is the single shard 0/1.
func parseShardFlag(shard string) (int, int, error) {
	if shard == "" {
		return 0, 1, nil
	}

	var index, total int

	_, err := fmt.Sscanf(shard, "%d/%d", &index, &total)
	if err != nil || total <= 0 || index < 0 || index >= total {
		return 0, 0, fmt.Errorf("invalid shard %q, want INDEX/TOTAL with 0 <= INDEX < TOTAL", shard)
	}

	return index, total, nil
}
