// Package cli implements the qapper command-line interface. The root command
// takes a port specification and address list, runs the scan, and renders
// results; configuration comes from flags, environment, and an optional
// YAML file.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/steeric1/qapper/internal/config"
	qerrors "github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/logging"
	"github.com/steeric1/qapper/internal/scanning"
)

// Exit codes. Input validation failures are distinguished from runtime
// failures; a completed scan exits zero regardless of port statuses.
const (
	exitOK      = 0
	exitRuntime = 1
	exitInput   = 2
)

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "qapper <ports> [addrs...]",
	Short: "Quickly scan open ports",
	Long: `qapper checks which TCP ports are reachable on a set of hosts. It takes a
comma-separated list of ports or inclusive port ranges and zero or more IP
addresses or hostnames; with no addresses it scans the local host.`,
	Example: `  qapper 80,443 192.168.1.10
  qapper 20-25,80,8000-8100 10.0.0.1 10.0.0.2
  qapper -v -t 200 1-1024 2001:db8::1
  qapper --ping 22 192.168.1.0 192.168.1.1 192.168.1.2`,
	Version:       getVersion(),
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScan,
}

// Execute runs the root command and maps failures to exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if qerrors.IsInputError(err) {
			os.Exit(exitInput)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./qapper.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Scan flags
	rootCmd.Flags().IntVarP(&scanTimeoutMS, "timeout", "t", int(scanning.DefaultTimeout.Milliseconds()),
		"per-attempt connection timeout in milliseconds")
	rootCmd.Flags().IntVar(&scanConcurrency, "concurrency", scanning.DefaultConcurrency,
		"maximum number of connection attempts in flight")
	rootCmd.Flags().BoolVar(&scanPing, "ping", false,
		"ping hosts first and skip the ones that do not answer")

	// Bind flags to viper
	bindFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	bindFlag("scanning.timeout_ms", rootCmd.Flags().Lookup("timeout"))
	bindFlag("scanning.concurrency", rootCmd.Flags().Lookup("concurrency"))
	bindFlag("scanning.ping", rootCmd.Flags().Lookup("ping"))
}

func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", key, err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("qapper")
	}

	// Read in environment variables that match
	viper.AutomaticEnv()
	viper.SetEnvPrefix("QAPPER")

	setConfigDefaults()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}

	// Initialize structured logging after config is loaded
	initLogging()
}

// setConfigDefaults sets default values for configuration.
func setConfigDefaults() {
	defaults := config.Default()

	viper.SetDefault("scanning.timeout_ms", defaults.Scanning.TimeoutMS)
	viper.SetDefault("scanning.concurrency", defaults.Scanning.Concurrency)
	viper.SetDefault("scanning.ping", defaults.Scanning.Ping)

	viper.SetDefault("logging.level", string(defaults.Logging.Level))
	viper.SetDefault("logging.format", string(defaults.Logging.Format))
	viper.SetDefault("logging.output", defaults.Logging.Output)
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging initializes structured logging based on configuration.
// Verbose mode forces debug level so per-probe progress shows up.
func initLogging() {
	logConfig := logging.Config{
		Level:  logging.LogLevel(viper.GetString("logging.level")),
		Format: logging.LogFormat(viper.GetString("logging.format")),
		Output: viper.GetString("logging.output"),
	}
	if verbose {
		logConfig.Level = logging.LevelDebug
	}

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Warn("Verbose mode ON")
	}
}
