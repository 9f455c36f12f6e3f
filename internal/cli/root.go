// Package cli implements the Satchel command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/output"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	networkName  string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "satchel",
	Short: "An HD wallet for segwit Bitcoin networks",
	Long: `Satchel is a terminal HD wallet for Bitcoin networks.

It derives BIP32 keys from a BIP39 mnemonic, discovers the addresses an
account has used under the gap-limit rule, collects their unspent outputs
and builds, signs and broadcasts P2WPKH transactions through an Esplora API.

The mnemonic is read from SATCHEL_MNEMONIC or prompted for; it is never
written to disk.

Example:
  satchel wallet scan --network testnet4
  satchel address derive --count 5
  satchel tx send --to tb1q... --amount 0.001`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := initGlobals(); err != nil {
			return err
		}
		SetCmdContext(cmd, NewCommandContext(cfg, logger, formatter))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		if cc := GetCmdContext(cmd); cc != nil {
			cc.saveCache()
			cc.logMetrics()
		}
		cleanup()
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(os.Stderr, err, format)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return satchelerr.ExitCode(err)
}

// initGlobals loads configuration and sets up the logger and formatter.
// Precedence: flags, then environment, then the config file, then defaults.
func initGlobals() error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.LoadOrDefault(config.Path(config.ExpandHome(home)))
	if err != nil {
		return err
	}
	cfg.Home = home

	config.ApplyEnvironment(cfg)

	if homeDir != "" {
		cfg.Home = homeDir
	}
	if networkName != "" {
		cfg.Network.Name = networkName
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.Logging.File)
	if err != nil {
		// An unwritable log file must not block wallet operations.
		logger = config.NullLogger()
	}
	if cfg.Output.Verbose {
		logger.WithConsole(os.Stderr)
	}

	formatter = output.NewFormatter(output.ParseFormat(cfg.Output.DefaultFormat), os.Stdout)
	return nil
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

// Config returns the global configuration.
func Config() *config.Config {
	return cfg
}

// Logger returns the global logger.
func Logger() *config.Logger {
	return logger
}

// Formatter returns the global output formatter.
func Formatter() *output.Formatter {
	return formatter
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "satchel data directory (default: ~/.satchel)")
	rootCmd.PersistentFlags().StringVarP(&networkName, "network", "n", "", "network: mainnet, testnet3, testnet4, signet, regtest")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}
