package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"gooze.dev/pkg/jgooze/internal/adapter"
	"gooze.dev/pkg/jgooze/internal/domain/mutagens"
	"gooze.dev/pkg/jgooze/internal/domain/schemata"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "jgooze"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."
	envFileName      = ".env"

	envPrefix = "JGOOZE"

	outputFlagName              = "output"
	dbFlagName                  = "db"
	includeFlagName             = "include"
	excludeFlagName             = "exclude"
	metaTypesFlagName           = "meta-types"
	orderFlagName               = "order"
	parallelFlagName            = "parallel"
	verboseFlagName             = "verbose"
	logFileFlagName             = "log-file"
	shardFlagName               = "shard"
	timeoutFlagName             = "timeout"
	buildCommandFlagName        = "build-command"
	testCommandFlagName         = "test-command"
	buildPathFlagName           = "build-path"
	failStringFlagName          = "fail-string"
	compileFailureRegexFlagName = "compile-failure-regex"
	schemataFlagName            = "schemata"
	overloadThresholdFlagName   = "overload-threshold"
	coverageFlagName            = "coverage"
	metricsFlagName             = "metrics"
	formatFlagName              = "format"

	outputConfigKey              = "output"
	dbConfigKey                  = "db"
	includeConfigKey             = "paths.include"
	excludeConfigKey             = "paths.exclude"
	parallelConfigKey            = "run.parallel"
	timeoutConfigKey             = "run.timeout"
	buildCommandConfigKey        = "run.build_command"
	testCommandConfigKey         = "run.test_command"
	buildPathConfigKey           = "run.build_path"
	failStringConfigKey          = "run.fail_string"
	compileFailureRegexConfigKey = "run.compile_failure_regex"
	metaTypesConfigKey           = "mutate.meta_types"
	orderConfigKey               = "mutate.order"
	schemataConfigKey            = "mutate.schemata"
	overloadThresholdConfigKey   = "mutate.overload_threshold"
	coverageConfigKey            = "coverage.file"
	metricsConfigKey             = "metrics.file"

	defaultOutputDir    = ".jgooze"
	defaultParallel     = 1
	defaultTimeout      = 2 * time.Minute
	defaultOrder        = 1
	defaultBuildCommand = "mvn -q compile"
	defaultTestCommand  = "mvn -q test -Dtest={tests} -Dsurefire.failIfNoSpecifiedTests=false"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".jgooze.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	initConfig()
}

// initConfig points viper at the config file and the environment and reads
// the config file when there is one.
func initConfig() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return
		}

		slog.Warn("Failed to read config file", "path", viper.ConfigFileUsed(), "error", err)
	}
}

func setDefaults() {
	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputConfigKey, defaultOutputDir)
	viper.SetDefault(dbConfigKey, "")
	viper.SetDefault(includeConfigKey, []string{})
	viper.SetDefault(excludeConfigKey, adapter.DefaultExclude)

	viper.SetDefault(parallelConfigKey, defaultParallel)
	viper.SetDefault(timeoutConfigKey, defaultTimeout)
	viper.SetDefault(buildCommandConfigKey, defaultBuildCommand)
	viper.SetDefault(testCommandConfigKey, defaultTestCommand)
	viper.SetDefault(buildPathConfigKey, "")
	viper.SetDefault(failStringConfigKey, "")
	viper.SetDefault(compileFailureRegexConfigKey, "")

	viper.SetDefault(metaTypesConfigKey, mutagens.MetaTraditional)
	viper.SetDefault(orderConfigKey, defaultOrder)
	viper.SetDefault(schemataConfigKey, false)
	viper.SetDefault(overloadThresholdConfigKey, schemata.DefaultOverloadThreshold)

	viper.SetDefault(coverageConfigKey, "")
	viper.SetDefault(metricsConfigKey, "")

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

// loadEnvFile exports the variables of a .env file in the working directory.
// Variables already set in the environment win.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
