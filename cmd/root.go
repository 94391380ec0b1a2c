// Package cmd provides the root command and CLI setup for jgooze.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gooze.dev/pkg/jgooze/internal/adapter"
	"gooze.dev/pkg/jgooze/internal/controller"
	"gooze.dev/pkg/jgooze/internal/domain"
	"gooze.dev/pkg/jgooze/internal/domain/mutagens"
	m "gooze.dev/pkg/jgooze/internal/model"
)

var javaFileAdapter adapter.JavaFileAdapter
var fsAdapter adapter.SourceFSAdapter
var coverageAdapter adapter.CoverageAdapter
var mutagen domain.Mutagen

// newWorkflow builds the workflow of one command. Commands that never touch
// results pass an empty dsn and get no store.
var newWorkflow = defaultWorkflow

func init() {
	// Initialize shared dependencies.
	javaFileAdapter = adapter.NewLocalJavaFileAdapter()
	fsAdapter = adapter.NewLocalSourceFSAdapter()
	coverageAdapter = adapter.NewFileCoverageAdapter()
	mutagen = domain.NewMutagen(javaFileAdapter, fsAdapter)
}

func defaultWorkflow(cmd *cobra.Command, dsn string, timeout time.Duration) (domain.Workflow, func(), error) {
	var (
		store   adapter.ReportStore
		cleanup = func() {}
	)

	if dsn != "" {
		gormStore, err := adapter.OpenReportStore(dsn, viper.GetBool(logVerboseKey))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open report store: %w", err)
		}

		store = gormStore
		cleanup = func() {
			if err := gormStore.Close(); err != nil {
				slog.Warn("Failed to close report store", "dsn", dsn, "error", err)
			}
		}
	}

	wf := domain.NewWorkflow(
		fsAdapter,
		store,
		coverageAdapter,
		adapter.NewPrometheusMetricsAdapter(),
		adapter.NewLocalTestRunnerAdapter(timeout),
		controller.NewUI(cmd, controller.IsTTY(cmd.OutOrStdout())),
		mutagen,
	)

	return wf, cleanup, nil
}

const pathPatternsHelp = `Paths are Java source files or directories searched for *.java files.
Without paths the current directory is used. Include and exclude patterns are
doublestar globs matched against paths relative to each searched directory:
  - src/main/java/**/*.java      every main source
  - **/generated/**              a generated sources tree`

const rootLongDescription = `jgooze is a mutation testing tool for Java projects built with Maven, Ant
or Gradle. It seeds small faults (mutants) into the sources and runs the test
suite against each of them; a mutant the tests do not detect points at a gap
in the suite.

` + pathPatternsHelp

const runLongDescription = `Run mutation testing for the given paths (default: current directory).

The test command may hold {tests}: it is replaced by the tests covering the
mutant when a coverage file is given, and dropped otherwise.

` + pathPatternsHelp

const listLongDescription = `List source files with the number of mutations and mutants they yield.

` + pathPatternsHelp

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "jgooze",
		Short:         "Java mutation testing tool",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := loadEnvFile(filepath.Join(configFolderPath, envFileName)); err != nil {
				return fmt.Errorf("failed to load %s: %w", envFileName, err)
			}

			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringP(outputFlagName, "o", viper.GetString(outputConfigKey), "output directory for the results database and shard reports")
	bindFlagToConfig(flags.Lookup(outputFlagName), outputConfigKey)

	flags.String(dbFlagName, viper.GetString(dbConfigKey), "results database: a SQLite file or a libsql:// URL (default <output>/jgooze.db)")
	bindFlagToConfig(flags.Lookup(dbFlagName), dbConfigKey)

	flags.StringArrayP(includeFlagName, "i", viper.GetStringSlice(includeConfigKey), "only mutate files matching glob (can be repeated)")
	bindFlagToConfig(flags.Lookup(includeFlagName), includeConfigKey)

	flags.StringArrayP(excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "skip files matching glob (can be repeated)")
	bindFlagToConfig(flags.Lookup(excludeFlagName), excludeConfigKey)

	flags.String(metaTypesFlagName, viper.GetString(metaTypesConfigKey), "comma separated operator groups: Traditional, Null, Method or All")
	bindFlagToConfig(flags.Lookup(metaTypesFlagName), metaTypesConfigKey)

	flags.Int(orderFlagName, viper.GetInt(orderConfigKey), "highest mutant order; 2 also combines pairs of mutations")
	bindFlagToConfig(flags.Lookup(orderFlagName), orderConfigKey)

	flags.IntP(parallelFlagName, "p", viper.GetInt(parallelConfigKey), "number of parallel workers")
	bindFlagToConfig(flags.Lookup(parallelFlagName), parallelConfigKey)

	flags.BoolP(verboseFlagName, "v", viper.GetBool(logVerboseKey), "log at debug level")
	bindFlagToConfig(flags.Lookup(verboseFlagName), logVerboseKey)

	flags.String(logFileFlagName, viper.GetString(logFilenameKey), "log file")
	bindFlagToConfig(flags.Lookup(logFileFlagName), logFilenameKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

func parsePaths(args []string) []m.Path {
	if len(args) == 0 {
		return []m.Path{"."}
	}

	paths := make([]m.Path, 0, len(args))
	for _, arg := range args {
		paths = append(paths, m.Path(arg))
	}

	return paths
}

// estimateArgs collects the source selection shared by list and run.
func estimateArgs(args []string) (domain.EstimateArgs, error) {
	metaTypes, err := mutagens.ParseMetaTypes(viper.GetString(metaTypesConfigKey))
	if err != nil {
		return domain.EstimateArgs{}, err
	}

	return domain.EstimateArgs{
		Paths:     parsePaths(args),
		Include:   viper.GetStringSlice(includeConfigKey),
		Exclude:   viper.GetStringSlice(excludeConfigKey),
		MetaTypes: metaTypes,
		Order:     viper.GetInt(orderConfigKey),
		Parallel:  viper.GetInt(parallelConfigKey),
	}, nil
}

// outputDir returns the configured output directory.
func outputDir() m.Path {
	return m.Path(viper.GetString(outputConfigKey))
}

// storeDSN returns the results database of a run. Every shard writes its
// own database below the output directory so merge can find it.
func storeDSN(shardIndex, shardCount int) string {
	if shardCount > 1 {
		return filepath.Join(string(domain.ShardDir(outputDir(), shardIndex)), domain.ReportFile)
	}

	if dsn := viper.GetString(dbConfigKey); dsn != "" {
		return dsn
	}

	return filepath.Join(string(outputDir()), domain.ReportFile)
}
