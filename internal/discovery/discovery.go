// Package discovery finds the active addresses of an HD wallet by walking
// the receiving and change chains of an account under the gap-limit rule.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Default scanning parameters.
const (
	// DefaultGapLimit is the standard HD wallet gap limit.
	// Scanning stops after this many consecutive unused addresses.
	DefaultGapLimit = chain.DefaultGapLimit

	// DefaultMaxConsecutiveErrors aborts a chain scan after this many
	// failed queries in a row.
	DefaultMaxConsecutiveErrors = 5

	// DefaultMaxFindIndex bounds the offline address search.
	DefaultMaxFindIndex = 100

	// DefaultTimeout is the default context timeout for discovery operations.
	DefaultTimeout = 5 * time.Minute
)

// Errors specific to discovery operations.
var (
	// ErrNoFundsFound indicates no funds were discovered on either chain.
	ErrNoFundsFound = &satchelerr.SatchelError{
		Code:     "NO_FUNDS_FOUND",
		Message:  "no funds discovered",
		ExitCode: satchelerr.ExitNotFound,
	}

	// ErrInvalidSeed indicates the provided seed is invalid.
	ErrInvalidSeed = &satchelerr.SatchelError{
		Code:     "INVALID_SEED",
		Message:  "invalid seed for derivation",
		ExitCode: satchelerr.ExitInput,
	}

	// ErrScanCanceled indicates the scan was canceled by context.
	ErrScanCanceled = &satchelerr.SatchelError{
		Code:     "SCAN_CANCELED",
		Message:  "discovery scan was canceled",
		ExitCode: satchelerr.ExitGeneral,
	}

	// ErrTooManyQueryErrors indicates a chain scan hit the consecutive
	// query error limit.
	ErrTooManyQueryErrors = &satchelerr.SatchelError{
		Code:       "TOO_MANY_QUERY_ERRORS",
		Message:    "too many consecutive chain query failures",
		Suggestion: "check the API URL and network connectivity, then rescan",
		ExitCode:   satchelerr.ExitNetwork,
	}

	// ErrInvalidGapLimit indicates the gap limit is invalid.
	ErrInvalidGapLimit = &satchelerr.SatchelError{
		Code:     "INVALID_GAP_LIMIT",
		Message:  "gap limit must be positive",
		ExitCode: satchelerr.ExitInput,
	}

	// ErrAddressNotFound indicates an address is not derived by the seed
	// within the searched range.
	ErrAddressNotFound = &satchelerr.SatchelError{
		Code:     "ADDRESS_NOT_FOUND",
		Message:  "address not derived by this wallet",
		ExitCode: satchelerr.ExitNotFound,
	}
)

// ProgressUpdate provides feedback during scanning operations.
type ProgressUpdate struct {
	// Phase is "scanning", "found", "error" or "done".
	Phase string

	// Chain is the chain being scanned.
	Chain wallet.ChainType

	// Index is the address index just queried.
	Index uint32

	// AddressesScanned is the number of addresses checked on this chain so far.
	AddressesScanned int

	// BalanceFound is the balance discovered on this chain so far (in satoshis).
	BalanceFound uint64

	// CurrentAddress is the address currently being scanned.
	CurrentAddress string

	// Message provides additional context about the progress.
	Message string
}

// ProgressCallback is called during scanning to report progress.
type ProgressCallback func(ProgressUpdate)

// Options configures the discovery operation.
type Options struct {
	// GapLimit is the number of consecutive unused addresses before stopping.
	// Default: DefaultGapLimit (20).
	GapLimit int

	// Account is the hardened account index to scan.
	Account uint32

	// ScanChange determines whether the change chain is scanned.
	// Default: true.
	ScanChange bool

	// MaxConsecutiveErrors aborts a chain scan after this many failed
	// queries in a row. Zero disables the limit.
	// Default: DefaultMaxConsecutiveErrors (5).
	MaxConsecutiveErrors int

	// StrictErrors aborts the scan on the first failed query instead of
	// recording it and counting the address as unused.
	StrictErrors bool

	// ParallelChains scans the receiving and change chains concurrently.
	// Results are merged in the same order as a sequential scan. The
	// progress callback must then be safe for concurrent use.
	ParallelChains bool

	// ProgressCallback receives updates during scanning.
	ProgressCallback ProgressCallback

	// Logger receives debug output; nil disables logging.
	Logger *zerolog.Logger

	// Metrics receives scan metrics; nil uses metrics.Global.
	Metrics *metrics.Metrics
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		GapLimit:             DefaultGapLimit,
		ScanChange:           true,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

// Validate checks that the options are valid.
func (o *Options) Validate() error {
	if o.GapLimit <= 0 {
		return satchelerr.WithDetails(ErrInvalidGapLimit, map[string]string{"value": fmt.Sprintf("%d", o.GapLimit)})
	}
	if o.MaxConsecutiveErrors < 0 {
		return satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{
			"max_consecutive_errors": fmt.Sprintf("%d", o.MaxConsecutiveErrors),
		})
	}
	if o.Account >= chain.HardenedKeyOffset {
		return satchelerr.WithDetails(satchelerr.ErrDerivation, map[string]string{"account": fmt.Sprintf("%d", o.Account)})
	}
	return nil
}

// ActiveAddress is an address that has appeared in at least one transaction.
type ActiveAddress struct {
	// Address is the encoded address.
	Address string `json:"address"`

	// Path is the full derivation path (e.g., "m/44'/0'/0'/0/5").
	Path string `json:"path"`

	// Chain is the receiving or change chain.
	Chain wallet.ChainType `json:"chain"`

	// Index is the address index within the chain.
	Index uint32 `json:"index"`

	// Balance is funded minus spent in satoshis, including mempool.
	Balance uint64 `json:"balance"`

	// TxCount is the number of transactions touching the address.
	TxCount uint64 `json:"tx_count"`

	// Key is the key owning the address.
	Key chain.KeySource `json:"-"`
}

// Funded reports whether the address currently holds a balance.
func (a ActiveAddress) Funded() bool {
	return a.Balance > 0
}

// QueryError is a failed address query recorded during a scan. The
// address it belongs to was counted as unused for the gap rule.
type QueryError struct {
	Address string           `json:"address"`
	Path    string           `json:"path"`
	Chain   wallet.ChainType `json:"chain"`
	Index   uint32           `json:"index"`
	Reason  string           `json:"reason"`
	Err     error            `json:"-"`
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Address, e.Path, e.Reason)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// ChainSummary describes the scan of one chain.
type ChainSummary struct {
	// Scanned is the number of addresses queried.
	Scanned int `json:"scanned"`

	// NextIndex is the index following the last active address, the
	// first index safe to hand out as a fresh address.
	NextIndex uint32 `json:"next_index"`
}

// Result contains the complete discovery scan results.
type Result struct {
	// Account is the account that was scanned.
	Account uint32 `json:"account"`

	// Receiving lists active receiving addresses in index order.
	Receiving []ActiveAddress `json:"receiving"`

	// Change lists active change addresses in index order.
	Change []ActiveAddress `json:"change"`

	// ReceivingChain summarizes the receiving chain scan.
	ReceivingChain ChainSummary `json:"receiving_chain"`

	// ChangeChain summarizes the change chain scan.
	ChangeChain ChainSummary `json:"change_chain"`

	// TotalBalance is the sum of all discovered balances in satoshis.
	TotalBalance uint64 `json:"total_balance"`

	// Duration is how long the scan took.
	Duration time.Duration `json:"duration_ms"`

	// Errors contains failed queries that were counted as unused addresses.
	Errors []*QueryError `json:"errors,omitempty"`
}

// HasFunds returns true if any funds were discovered.
func (r *Result) HasFunds() bool {
	return r.TotalBalance > 0
}

// Active returns all active addresses, receiving chain first.
func (r *Result) Active() []ActiveAddress {
	all := make([]ActiveAddress, 0, len(r.Receiving)+len(r.Change))
	all = append(all, r.Receiving...)
	return append(all, r.Change...)
}

// Funded returns active addresses holding a balance, receiving chain first.
func (r *Result) Funded() []ActiveAddress {
	var funded []ActiveAddress
	for _, a := range r.Active() {
		if a.Funded() {
			funded = append(funded, a)
		}
	}
	return funded
}

// AddressesScanned is the total number of addresses checked.
func (r *Result) AddressesScanned() int {
	return r.ReceivingChain.Scanned + r.ChangeChain.Scanned
}

// KeyDeriver derives the key at (account, chain, index).
// *wallet.Engine implements it.
type KeyDeriver interface {
	Derive(seed []byte, account uint32, ct wallet.ChainType, index uint32) (*wallet.DerivedKey, error)
}

var _ KeyDeriver = (*wallet.Engine)(nil)

// scanCanceled wraps the context cause of an interrupted scan.
func scanCanceled(ctx context.Context) error {
	return satchelerr.WithCause(ErrScanCanceled, context.Cause(ctx))
}
