package discovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/wallet"
	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

// Scanner performs gap-limit discovery over one account.
type Scanner struct {
	stats   chain.StatsReader
	deriver KeyDeriver
	opts    *Options
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewScanner creates a new discovery scanner.
func NewScanner(stats chain.StatsReader, deriver KeyDeriver, opts *Options) *Scanner {
	if opts == nil {
		opts = DefaultOptions()
	}
	s := &Scanner{
		stats:   stats,
		deriver: deriver,
		opts:    opts,
		logger:  zerolog.Nop(),
		metrics: metrics.Global,
	}
	if opts.Logger != nil {
		s.logger = opts.Logger.With().Str("component", "discovery").Logger()
	}
	if opts.Metrics != nil {
		s.metrics = opts.Metrics
	}
	return s
}

// Scan walks the receiving chain and then the change chain of the
// configured account, stopping each after GapLimit consecutive unused
// addresses.
func (s *Scanner) Scan(ctx context.Context, seed []byte) (*Result, error) {
	if err := s.opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}

	startTime := time.Now()
	result := &Result{Account: s.opts.Account}

	chains := []wallet.ChainType{wallet.Receiving}
	if s.opts.ScanChange {
		chains = append(chains, wallet.Change)
	}

	var chainResults []*chainResult
	var err error
	if s.opts.ParallelChains && len(chains) > 1 {
		chainResults, err = s.scanChainsParallel(ctx, seed, chains)
	} else {
		chainResults, err = s.scanChainsSequential(ctx, seed, chains)
	}
	if err != nil {
		return nil, err
	}

	for _, cr := range chainResults {
		result.merge(cr)
	}
	result.Duration = time.Since(startTime)

	s.logger.Debug().
		Int("scanned", result.AddressesScanned()).
		Int("active", len(result.Active())).
		Uint64("balance", result.TotalBalance).
		Int("query_errors", len(result.Errors)).
		Dur("took", result.Duration).
		Msg("scan complete")
	return result, nil
}

func (s *Scanner) scanChainsSequential(ctx context.Context, seed []byte, chains []wallet.ChainType) ([]*chainResult, error) {
	results := make([]*chainResult, 0, len(chains))
	for _, ct := range chains {
		cr, err := s.scanChain(ctx, seed, ct)
		if err != nil {
			return nil, err
		}
		results = append(results, cr)
	}
	return results, nil
}

// chainResult holds results from scanning a single chain.
type chainResult struct {
	chain     wallet.ChainType
	addresses []ActiveAddress
	balance   uint64
	scanned   int
	nextIndex uint32
	errors    []*QueryError
}

func (r *Result) merge(cr *chainResult) {
	summary := ChainSummary{Scanned: cr.scanned, NextIndex: cr.nextIndex}
	if cr.chain == wallet.Change {
		r.Change = cr.addresses
		r.ChangeChain = summary
	} else {
		r.Receiving = cr.addresses
		r.ReceivingChain = summary
	}
	r.TotalBalance += cr.balance
	r.Errors = append(r.Errors, cr.errors...)
}

// scanChain runs the gap-limit state machine over one chain. The state
// is (index, consecutiveEmpty); an address with any transaction or a
// positive balance resets the counter, an unused address increments it
// and the chain ends when the counter reaches the gap limit.
//
//nolint:gocognit,funcorder // Address iteration with gap limit logic is inherently complex; grouped with caller
func (s *Scanner) scanChain(ctx context.Context, seed []byte, ct wallet.ChainType) (*chainResult, error) {
	result := &chainResult{chain: ct}
	consecutiveEmpty := 0
	consecutiveErrors := 0

	for index := uint32(0); consecutiveEmpty < s.opts.GapLimit; index++ {
		if ctx.Err() != nil {
			return nil, scanCanceled(ctx)
		}

		key, err := s.deriver.Derive(seed, s.opts.Account, ct, index)
		if err != nil {
			return nil, fmt.Errorf("deriving %s address at index %d: %w", ct, index, err)
		}
		address, path := key.Address(), key.Path()

		result.scanned++

		s.reportProgress(ProgressUpdate{
			Phase:            "scanning",
			Chain:            ct,
			Index:            index,
			AddressesScanned: result.scanned,
			BalanceFound:     result.balance,
			CurrentAddress:   address,
		})

		stats, err := s.stats.AddressStats(ctx, address)
		s.metrics.RecordAddressScanned(ct.String(), err)
		if err != nil {
			key.Zero()
			if ctx.Err() != nil {
				return nil, scanCanceled(ctx)
			}

			queryErr := satchelerr.WithDetails(satchelerr.WithCause(satchelerr.ErrQuery, err), map[string]string{
				"address": address,
				"path":    path,
			})
			if s.opts.StrictErrors {
				return nil, queryErr
			}

			result.errors = append(result.errors, &QueryError{
				Address: address,
				Path:    path,
				Chain:   ct,
				Index:   index,
				Reason:  err.Error(),
				Err:     queryErr,
			})
			s.logger.Warn().Str("address", address).Str("path", path).Err(err).Msg("address query failed, counting as unused")
			s.reportProgress(ProgressUpdate{
				Phase:          "error",
				Chain:          ct,
				Index:          index,
				CurrentAddress: address,
				Message:        fmt.Sprintf("Error scanning %s: %v", address, err),
			})

			consecutiveErrors++
			if s.opts.MaxConsecutiveErrors > 0 && consecutiveErrors >= s.opts.MaxConsecutiveErrors {
				return nil, satchelerr.WithDetails(satchelerr.WithCause(ErrTooManyQueryErrors, err), map[string]string{
					"chain":  ct.String(),
					"index":  strconv.FormatUint(uint64(index), 10),
					"errors": strconv.Itoa(consecutiveErrors),
				})
			}
			consecutiveEmpty++
			continue
		}
		consecutiveErrors = 0

		if !stats.Used() {
			key.Zero()
			consecutiveEmpty++
			continue
		}

		consecutiveEmpty = 0
		balance := stats.Balance()
		result.addresses = append(result.addresses, ActiveAddress{
			Address: address,
			Path:    path,
			Chain:   ct,
			Index:   index,
			Balance: balance,
			TxCount: stats.TotalTxCount(),
			Key:     key,
		})
		result.balance += balance
		result.nextIndex = index + 1

		if balance > 0 {
			s.reportProgress(ProgressUpdate{
				Phase:            "found",
				Chain:            ct,
				Index:            index,
				AddressesScanned: result.scanned,
				BalanceFound:     result.balance,
				CurrentAddress:   address,
				Message:          fmt.Sprintf("Found %s BTC at %s", chain.FormatBTC(balance), address),
			})
		}
	}

	s.reportProgress(ProgressUpdate{
		Phase:            "done",
		Chain:            ct,
		AddressesScanned: result.scanned,
		BalanceFound:     result.balance,
	})
	return result, nil
}

// reportProgress safely calls the progress callback if configured.
//
//nolint:funcorder // Helper method grouped with callers for readability
func (s *Scanner) reportProgress(update ProgressUpdate) {
	if s.opts.ProgressCallback != nil {
		s.opts.ProgressCallback(update)
	}
}
