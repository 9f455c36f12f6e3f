package cli

import (
	"context"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/chain/btc"
	"github.com/mrz1836/satchel/internal/config"
	"github.com/mrz1836/satchel/internal/output"
	"github.com/mrz1836/satchel/internal/service/transaction"
)

// Compile-time interface checks.
var (
	_ ConfigProvider           = (*config.Config)(nil)
	_ LogWriter                = (*config.Logger)(nil)
	_ FormatProvider           = (*output.Formatter)(nil)
	_ ChainBackend             = (*btc.Client)(nil)
	_ transaction.FeeEstimator = ChainBackend(nil)
)

// ConfigProvider provides read access to configuration values.
type ConfigProvider interface {
	// GetHome returns the satchel home directory path.
	GetHome() string

	// GetLoggingLevel returns the configured logging level.
	GetLoggingLevel() string

	// GetLoggingFile returns the configured log file path.
	GetLoggingFile() string

	// GetOutputFormat returns the default output format.
	GetOutputFormat() string

	// IsVerbose returns true if verbose output is enabled.
	IsVerbose() bool
}

// LogWriter provides logging capabilities.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
	Close() error
}

// FormatProvider provides output format information.
type FormatProvider interface {
	Format() output.Format
}

// ChainBackend is everything the commands need from a chain service.
// *btc.Client implements it; tests substitute a mock.
type ChainBackend interface {
	chain.QueryService
	FeeQuote(ctx context.Context) (*btc.FeeQuote, error)
}
