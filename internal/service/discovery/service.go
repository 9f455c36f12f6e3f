// Package discovery runs a full wallet scan: gap-limit address discovery
// followed by collection of the unspent outputs of every active address.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/satchel/internal/chain"
	"github.com/mrz1836/satchel/internal/discovery"
	"github.com/mrz1836/satchel/internal/metrics"
	"github.com/mrz1836/satchel/internal/utxostore"
	"github.com/mrz1836/satchel/internal/wallet"
)

// ChainClient is the chain access a scan needs.
type ChainClient interface {
	chain.StatsReader
	chain.UTXOLister
}

// Config contains dependencies for creating a discovery service.
type Config struct {
	Chain   ChainClient
	Engine  *wallet.Engine
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
}

// Service provides wallet scans.
type Service struct {
	chain   ChainClient
	engine  *wallet.Engine
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

// NewService creates a new discovery service instance.
func NewService(cfg *Config) *Service {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global
	}
	return &Service{
		chain:   cfg.Chain,
		engine:  cfg.Engine,
		logger:  cfg.Logger,
		metrics: m,
	}
}

// ScanRequest specifies a wallet scan.
type ScanRequest struct {
	Seed    []byte
	Account uint32

	// GapLimit defaults to discovery.DefaultGapLimit when zero.
	GapLimit int

	// MaxConsecutiveErrors defaults to discovery.DefaultMaxConsecutiveErrors
	// when zero; negative disables the limit.
	MaxConsecutiveErrors int

	StrictErrors   bool
	ParallelChains bool

	// SkipUTXOs stops after discovery without collecting outputs.
	SkipUTXOs bool

	Progress discovery.ProgressCallback
}

// ScanResult is the outcome of a scan.
type ScanResult struct {
	Network string
	Scan    *discovery.Result
	Pool    *utxostore.Pool // nil when SkipUTXOs was set
}

// Scan discovers the active addresses of an account and collects their
// unspent outputs in scan order.
func (s *Service) Scan(ctx context.Context, req *ScanRequest) (result *ScanResult, err error) {
	defer func() { s.metrics.RecordWalletOp("scan", err) }()

	scanner := discovery.NewScanner(s.chain, s.engine, s.scanOptions(req))

	start := time.Now()
	scan, err := scanner.Scan(ctx, req.Seed)
	if err != nil {
		return nil, fmt.Errorf("scanning account %d: %w", req.Account, err)
	}

	result = &ScanResult{Network: s.engine.Network().Name, Scan: scan}
	if req.SkipUTXOs {
		return result, nil
	}

	collector := utxostore.NewCollector(s.chain, &utxostore.CollectorOptions{
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	pool, err := collector.Collect(ctx, scan.Active())
	if err != nil {
		return nil, fmt.Errorf("collecting outputs: %w", err)
	}
	result.Pool = pool

	if s.logger != nil {
		s.logger.Info().
			Str("network", result.Network).
			Uint32("account", req.Account).
			Int("addresses_scanned", scan.AddressesScanned()).
			Int("utxos", pool.Len()).
			Str("balance", chain.FormatBTC(pool.Total())).
			Dur("took", time.Since(start)).
			Msg("wallet scan complete")
	}
	return result, nil
}

// FindAddress locates address among the first maxIndex+1 indices of
// both chains of account. No chain queries are made.
func (s *Service) FindAddress(ctx context.Context, seed []byte, account uint32, address string, maxIndex uint32) (*wallet.DerivedKey, error) {
	opts := discovery.DefaultOptions()
	opts.Account = account
	opts.Logger = s.logger
	return discovery.NewScanner(s.chain, s.engine, opts).FindAddress(ctx, seed, address, maxIndex)
}

func (s *Service) scanOptions(req *ScanRequest) *discovery.Options {
	opts := discovery.DefaultOptions()
	opts.Account = req.Account
	if req.GapLimit != 0 {
		opts.GapLimit = req.GapLimit
	}
	switch {
	case req.MaxConsecutiveErrors > 0:
		opts.MaxConsecutiveErrors = req.MaxConsecutiveErrors
	case req.MaxConsecutiveErrors < 0:
		opts.MaxConsecutiveErrors = 0
	}
	opts.StrictErrors = req.StrictErrors
	opts.ParallelChains = req.ParallelChains
	opts.ProgressCallback = req.Progress
	opts.Logger = s.logger
	opts.Metrics = s.metrics
	return opts
}
