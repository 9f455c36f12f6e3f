// Package errors provides structured error handling for Satchel.
// It defines sentinel errors for every failure class of the wallet core
// (derivation, chain queries, coin selection, signing, broadcast), exit
// codes, and helpers for attaching context such as the address, the
// derivation path or the outpoint that caused the failure.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"maps"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitNetwork    = 3 // Chain service unreachable or rejected the request
	ExitNotFound   = 4 // Resource not found
	ExitFunds      = 5 // Insufficient funds
	ExitCryptoFail = 6 // Derivation or signing failure
)

// SatchelError is the structured error type for Satchel.
type SatchelError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context (address, path, outpoint)
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *SatchelError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *SatchelError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for SatchelError.
func (e *SatchelError) Is(target error) bool {
	var t *SatchelError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &SatchelError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &SatchelError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &SatchelError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Wallet core errors.
	ErrDerivation = &SatchelError{
		Code:     "DERIVATION_ERROR",
		Message:  "key derivation failed",
		ExitCode: ExitCryptoFail,
	}

	ErrQuery = &SatchelError{
		Code:     "QUERY_ERROR",
		Message:  "chain query failed",
		ExitCode: ExitNetwork,
	}

	ErrInsufficientFunds = &SatchelError{
		Code:     "INSUFFICIENT_FUNDS",
		Message:  "insufficient funds for transaction",
		ExitCode: ExitFunds,
	}

	ErrSigning = &SatchelError{
		Code:     "SIGNING_ERROR",
		Message:  "transaction signing failed",
		ExitCode: ExitCryptoFail,
	}

	ErrBroadcast = &SatchelError{
		Code:     "BROADCAST_ERROR",
		Message:  "transaction rejected by network",
		ExitCode: ExitNetwork,
	}

	ErrInvalidMnemonic = &SatchelError{
		Code:     "INVALID_MNEMONIC",
		Message:  "invalid mnemonic phrase",
		ExitCode: ExitInput,
	}

	// Chain-specific errors.
	ErrInvalidAddress = &SatchelError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	ErrUnknownNetwork = &SatchelError{
		Code:     "UNKNOWN_NETWORK",
		Message:  "unknown network",
		ExitCode: ExitInput,
	}

	ErrNetworkError = &SatchelError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitNetwork,
	}

	ErrInvalidAmount = &SatchelError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount format",
		ExitCode: ExitInput,
	}

	ErrAmountTooSmall = &SatchelError{
		Code:     "AMOUNT_TOO_SMALL",
		Message:  "amount is below the dust threshold",
		ExitCode: ExitInput,
	}

	ErrNoUTXOs = &SatchelError{
		Code:     "NO_UTXOS",
		Message:  "no UTXOs available",
		ExitCode: ExitFunds,
	}

	// Config-specific errors.
	ErrConfigInvalid = &SatchelError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	// ErrCanceled indicates the user declined a confirmation.
	ErrCanceled = &SatchelError{
		Code:     "CANCELED",
		Message:  "operation canceled",
		ExitCode: ExitGeneral,
	}
)

// New creates a new SatchelError with the given code and message.
func New(code, message string) *SatchelError {
	return &SatchelError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *SatchelError
	if errors.As(err, &se) {
		return &SatchelError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SatchelError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of a sentinel with cause attached.
func WithCause(sentinel *SatchelError, cause error) error {
	return &SatchelError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    maps.Clone(sentinel.Details),
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error. Existing details are kept; keys
// present in both are overwritten by the new value.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *SatchelError
	if errors.As(err, &se) {
		merged := make(map[string]string, len(se.Details)+len(details))
		maps.Copy(merged, se.Details)
		maps.Copy(merged, details)
		return &SatchelError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    merged,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SatchelError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *SatchelError
	if errors.As(err, &se) {
		return &SatchelError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &SatchelError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *SatchelError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *SatchelError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// Detail returns a single detail value, or "" when absent.
func Detail(err error, key string) string {
	var se *SatchelError
	if errors.As(err, &se) {
		return se.Details[key]
	}
	return ""
}

// Suggestion returns the suggestion attached to err, or "".
func Suggestion(err error) string {
	var se *SatchelError
	if errors.As(err, &se) {
		return se.Suggestion
	}
	return ""
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
